package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	approvalKeyPrefix = "approval:"
	approvalKeyTTL    = 24 * time.Hour
)

// RedisApprovalGuard fences duplicate approval requests with a SET NX
// key per order id, shared across service instances.
type RedisApprovalGuard struct {
	client *redis.Client
}

func NewRedisApprovalGuard(client *redis.Client) *RedisApprovalGuard {
	return &RedisApprovalGuard{client: client}
}

func (g *RedisApprovalGuard) Acquire(ctx context.Context, orderID string) (bool, error) {
	return g.client.SetNX(ctx, approvalKeyPrefix+orderID, 1, approvalKeyTTL).Result()
}

func (g *RedisApprovalGuard) Release(ctx context.Context, orderID string) error {
	return g.client.Del(ctx, approvalKeyPrefix+orderID).Err()
}
