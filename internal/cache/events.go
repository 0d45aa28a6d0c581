// internal/cache/events.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/arcade/internal/models"
)

// DefaultQueueName is the Redis list holding room journal entries.
const DefaultQueueName = "lobby_room_events"

// Connect creates a client for addr/db and pings it.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// EventPublisher pushes room events onto a Redis list for the historian.
type EventPublisher struct {
	rdb     *redis.Client
	queue   string
	timeout time.Duration
	logger  *logrus.Logger
}

// NewEventPublisher publishes to queue, DefaultQueueName when empty.
func NewEventPublisher(rdb *redis.Client, queue string, logger *logrus.Logger) *EventPublisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &EventPublisher{rdb: rdb, queue: queue, timeout: 2 * time.Second, logger: logger}
}

// Publish serializes ev and RPushes it. The journal is best effort: failures
// are logged and returned but never block room operations for long.
func (p *EventPublisher) Publish(ctx context.Context, ev models.RoomEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal room event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"queue":   p.queue,
			"room_id": ev.RoomID,
			"event":   ev.Type,
		}).Warn("failed to publish room event")
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}

// Queue returns the list name events are pushed to.
func (p *EventPublisher) Queue() string { return p.queue }
