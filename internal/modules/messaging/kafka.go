package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/georgemunganga/storesvc/internal/modules/store"
)

// DefaultTopic is the topic approved-order messages are written to when
// none is configured.
const DefaultTopic = "store.approved-orders"

// Writer is the slice of kafka.Writer the publisher needs; tests inject
// a fake.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ApprovedOrderMessage is the payload written to the approved-orders
// topic. The downstream order service transitions the order to APPROVED
// on receipt.
type ApprovedOrderMessage struct {
	OrderID       string    `json:"order_id"`
	StoreID       string    `json:"store_id"`
	ItemIDs       []string  `json:"item_ids"`
	CustomerPhone string    `json:"customer_phone"`
	ApprovedAt    time.Time `json:"approved_at"`
}

// Publisher forwards approved-order domain events to Kafka. It is
// registered on the event bus and runs synchronously on the committing
// goroutine; a write failure propagates back through Commit.
type Publisher struct {
	writer Writer
	log    *zap.Logger
}

func NewPublisher(writer Writer, log *zap.Logger) *Publisher {
	return &Publisher{writer: writer, log: log}
}

// HandleApprovedOrder is the bus handler for store.EventApprovedOrder.
func (p *Publisher) HandleApprovedOrder(ctx context.Context, e store.Event) error {
	ev, ok := e.(store.ApprovedOrder)
	if !ok {
		return fmt.Errorf("unexpected event type for %s", e.Name())
	}

	payload, err := json.Marshal(ApprovedOrderMessage{
		OrderID:       ev.Order.ID,
		StoreID:       ev.Order.StoreID,
		ItemIDs:       ev.Order.ItemIDs,
		CustomerPhone: ev.Order.CustomerPhone,
		ApprovedAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode approved order %s: %w", ev.Order.ID, err)
	}

	// key by store id so all events of one store land on one partition
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Order.StoreID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publish approved order %s: %w", ev.Order.ID, err)
	}

	p.log.Info("approved order published",
		zap.String("order_id", ev.Order.ID),
		zap.String("store_id", ev.Order.StoreID))
	return nil
}
