// Package historian drains the lobby's room journal from Redis into the
// database in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/arcade/internal/models"
)

// Queue yields raw journal entries. Pop returns nil, nil when nothing
// arrived within timeout.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// Sink persists a batch of events. Inserting an event id twice must be
// harmless.
type Sink interface {
	InsertRoomEvents(ctx context.Context, events []models.RoomEvent) error
}

// RedisQueue pops from a Redis list with BLPop.
type RedisQueue struct {
	rdb  *redis.Client
	name string
}

func NewRedisQueue(rdb *redis.Client, name string) *RedisQueue {
	return &RedisQueue{rdb: rdb, name: name}
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// res[0] is the list name, res[1] the payload
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// Options tunes batching and the abandoned-room sweep.
type Options struct {
	BatchSize     int
	FlushInterval time.Duration
	PopTimeout    time.Duration
	// StaleAfter marks a room abandoned when it has had no events for this
	// long. Zero disables the sweep.
	StaleAfter time.Duration
	// MaxPending bounds events held across failed flushes; the oldest are
	// dropped beyond it.
	MaxPending int
}

func DefaultOptions() Options {
	return Options{
		BatchSize:     20,
		FlushInterval: 500 * time.Millisecond,
		PopTimeout:    time.Second,
		StaleAfter:    10 * time.Minute,
		MaxPending:    10000,
	}
}

type roomActivity struct {
	gameID int
	last   time.Time
}

// Historian is single-goroutine: Run owns every field.
type Historian struct {
	queue  Queue
	sink   Sink
	opts   Options
	logger *logrus.Logger
	now    func() time.Time

	batch     []models.RoomEvent
	lastFlush time.Time
	lastSweep time.Time
	open      map[string]roomActivity
}

func New(queue Queue, sink Sink, opts Options, logger *logrus.Logger) *Historian {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	return &Historian{
		queue:  queue,
		sink:   sink,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		open:   make(map[string]roomActivity),
	}
}

// Run pops, batches and flushes until ctx is cancelled, then flushes what
// is left.
func (h *Historian) Run(ctx context.Context) error {
	h.lastFlush = h.now()
	h.lastSweep = h.lastFlush
	h.logger.Info("historian started")

	for ctx.Err() == nil {
		data, err := h.queue.Pop(ctx, h.opts.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			h.logger.WithError(err).Error("failed to pop room event")
			time.Sleep(h.opts.PopTimeout)
			continue
		}
		if data != nil {
			h.accept(data)
		}

		now := h.now()
		if len(h.batch) >= h.opts.BatchSize || (len(h.batch) > 0 && now.Sub(h.lastFlush) >= h.opts.FlushInterval) {
			h.flush(ctx)
		}
		if h.opts.StaleAfter > 0 && now.Sub(h.lastSweep) >= h.opts.StaleAfter/10 {
			h.sweep(now)
			h.lastSweep = now
		}
	}

	h.flush(context.WithoutCancel(ctx))
	h.logger.Info("historian stopped")
	return nil
}

func (h *Historian) accept(data []byte) {
	var ev models.RoomEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		h.logger.WithError(err).Warn("discarding invalid room event")
		return
	}
	h.track(ev)
	h.batch = append(h.batch, ev)
	if over := len(h.batch) - h.opts.MaxPending; h.opts.MaxPending > 0 && over > 0 {
		h.logger.WithField("dropped", over).Error("pending room events over limit, dropping oldest")
		h.batch = append(h.batch[:0], h.batch[over:]...)
	}
}

func (h *Historian) track(ev models.RoomEvent) {
	switch ev.Type {
	case models.RoomClosed, models.RoomAbandoned:
		delete(h.open, ev.RoomID)
	default:
		h.open[ev.RoomID] = roomActivity{gameID: ev.GameID, last: h.now()}
	}
}

// sweep journals rooms that have been silent past StaleAfter.
func (h *Historian) sweep(now time.Time) {
	for roomID, act := range h.open {
		if now.Sub(act.last) <= h.opts.StaleAfter {
			continue
		}
		ev := models.NewRoomEvent(models.RoomAbandoned, roomID, act.gameID, nil)
		h.batch = append(h.batch, ev)
		delete(h.open, roomID)
		h.logger.WithFields(logrus.Fields{"room_id": roomID, "idle": now.Sub(act.last)}).Warn("room marked abandoned")
	}
}

// flush writes the batch. On failure the events stay queued for the next
// attempt.
func (h *Historian) flush(ctx context.Context) {
	h.lastFlush = h.now()
	if len(h.batch) == 0 {
		return
	}
	if err := h.sink.InsertRoomEvents(ctx, h.batch); err != nil {
		h.logger.WithError(err).WithField("pending", len(h.batch)).Error("failed to flush room events")
		return
	}
	h.logger.WithField("count", len(h.batch)).Debug("flushed room events")
	h.batch = h.batch[:0]
}

// Pending returns the number of events not yet written. Only valid once Run
// has returned.
func (h *Historian) Pending() int { return len(h.batch) }

// OpenRooms returns the number of rooms being watched for abandonment. Only
// valid once Run has returned.
func (h *Historian) OpenRooms() int { return len(h.open) }
