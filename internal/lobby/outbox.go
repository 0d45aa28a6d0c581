// internal/lobby/outbox.go
package lobby

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jason-s-yu/arcade/internal/models"
	"github.com/jason-s-yu/arcade/internal/supervisor"
)

type delivery struct {
	to  Peer
	msg any
}

// Outbox collects the side effects of one Manager operation that must run
// after the lock is released: pushes to room members, payload teardown and
// journal events. The caller flushes it once its own reply is written, so the
// requester always sees the reply before any push.
type Outbox struct {
	m          *Manager
	deliveries []delivery
	teardowns  []teardown
	events     []models.RoomEvent
}

// teardown is a closed room's process and port, released in that order.
type teardown struct {
	roomID  string
	port    int
	process supervisor.Handle
}

func (m *Manager) newOutbox() *Outbox {
	return &Outbox{m: m}
}

func (o *Outbox) push(msg any, peers ...Peer) {
	for _, p := range peers {
		o.deliveries = append(o.deliveries, delivery{to: p, msg: msg})
	}
}

func (o *Outbox) event(ev models.RoomEvent) {
	o.events = append(o.events, ev)
}

func (o *Outbox) merge(other *Outbox) {
	if other == nil {
		return
	}
	o.deliveries = append(o.deliveries, other.deliveries...)
	o.teardowns = append(o.teardowns, other.teardowns...)
	o.events = append(o.events, other.events...)
}

// Len reports how many pushes are pending.
func (o *Outbox) Len() int {
	if o == nil {
		return 0
	}
	return len(o.deliveries)
}

// Flush sends every pending push, stops closed rooms' payloads and returns
// their ports, then publishes journal events. Send failures are logged and
// skipped; a failed write already marks that connection dead. A nil Outbox
// is a no-op.
func (o *Outbox) Flush(ctx context.Context) {
	if o == nil {
		return
	}
	for _, d := range o.deliveries {
		if err := d.to.Send(d.msg); err != nil {
			o.m.logger.WithError(err).Debug("push to room member failed")
		}
	}
	o.deliveries = nil

	var g errgroup.Group
	for _, td := range o.teardowns {
		g.Go(func() error {
			o.m.stopAndRelease(td)
			return nil
		})
	}
	_ = g.Wait()
	o.teardowns = nil

	if o.m.events != nil {
		for _, ev := range o.events {
			if err := o.m.events.Publish(ctx, ev); err != nil {
				o.m.logger.WithError(err).WithFields(logrus.Fields{
					"room_id": ev.RoomID,
					"event":   ev.Type,
				}).Debug("room event dropped")
			}
		}
	}
	o.events = nil
}
