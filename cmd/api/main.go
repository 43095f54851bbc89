package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/georgemunganga/storesvc/internal/modules/auth"
	"github.com/georgemunganga/storesvc/internal/modules/messaging"
	"github.com/georgemunganga/storesvc/internal/modules/order"
	"github.com/georgemunganga/storesvc/internal/modules/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process environment")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	db, err := sql.Open("postgres", os.Getenv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("ping database", zap.Error(err))
	}
	logger.Info("connected to database")

	// ── Event bus ───────────────────────────────────────────
	bus := store.NewBus()
	if broker := os.Getenv("KAFKA_BROKER"); broker != "" {
		topic := os.Getenv("KAFKA_TOPIC")
		if topic == "" {
			topic = messaging.DefaultTopic
		}
		writer := &kafka.Writer{
			Addr:     kafka.TCP(broker),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		}
		defer writer.Close()

		publisher := messaging.NewPublisher(writer, logger)
		bus.Subscribe(store.EventApprovedOrder, publisher.HandleApprovedOrder)
		logger.Info("approved-order publisher registered", zap.String("topic", topic))
	}

	// ── Approval idempotency guard ──────────────────────────
	var guard store.ApprovalGuard
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("ping redis", zap.Error(err))
		}
		defer rdb.Close()
		guard = store.NewRedisApprovalGuard(rdb)
		logger.Info("connected to redis")
	}

	// ── Core wiring ─────────────────────────────────────────
	uow := store.NewPostgresUnitOfWork(db, bus, logger)
	provider := order.NewClient(os.Getenv("ORDER_SVC_URL"))
	storeService := store.NewService(uow, provider, guard, logger)

	// ── Router ──────────────────────────────────────────────
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)

	authMiddleware := auth.Middleware(os.Getenv("AUTH_TOKEN_SECRET"))
	store.NewHandler(storeService, authMiddleware).RegisterRoutes(router)

	// ── Start server ────────────────────────────────────────
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}
	logger.Info("store service listening", zap.String("port", port))
	if err := http.ListenAndServe(":"+port, router); err != nil {
		logger.Fatal("http server", zap.Error(err))
	}
}
