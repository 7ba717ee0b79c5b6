// Package events announces settlement changes to other services
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const Channel = "ledger_events"

const (
	TypeOrderCompleted   = "order.completed"
	TypeOrderCancelled   = "order.cancelled"
	TypeItemRefunded     = "order_item.refunded"
	TypeEarningsUnlocked = "earnings.unlocked"
)

type Event struct {
	Type        string          `json:"event_type"`
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	ItemID      *uuid.UUID      `json:"item_id,omitempty"`
	UserID      uuid.UUID       `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Publish events to redis pub/sub channel
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: Channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	return nil
}

// Used when redis is not configured
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
