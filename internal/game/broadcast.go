// internal/game/broadcast.go
package game

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Sender writes one encoded message to one client's connection.
type Sender interface {
	Send(ctx context.Context, clientID uuid.UUID, data []byte) error
}

type delivery struct {
	kind       EventKind
	recipients []uuid.UUID
	data       []byte
}

// Broadcaster fans a room's messages out to its members from a single goroutine,
// so members observe messages in publish order. Each message is written to all
// recipients concurrently, each bounded by timeout.
type Broadcaster struct {
	sender    Sender
	timeout   time.Duration
	onFailure func(clientID uuid.UUID)
	log       *logrus.Entry

	mu    sync.Mutex
	queue []delivery
	limit int
	wake  chan struct{}

	dead map[uuid.UUID]struct{} // owned by Run
}

// NewBroadcaster builds a Broadcaster. onFailure is called once per recipient whose write fails or times out.
func NewBroadcaster(sender Sender, timeout time.Duration, onFailure func(uuid.UUID), log *logrus.Entry) *Broadcaster {
	return &Broadcaster{
		sender:    sender,
		timeout:   timeout,
		onFailure: onFailure,
		log:       log,
		limit:     DefaultBroadcastBacklog,
		wake:      make(chan struct{}, 1),
		dead:      make(map[uuid.UUID]struct{}),
	}
}

// Publish queues msg for recipients and returns immediately without waiting on delivery.
// Once the backlog reaches its limit, queued heartbeats and state syncs are discarded
// to make room, and a new heartbeat or state sync is dropped rather than queued.
// Game events are always queued. Publish reports whether msg was queued.
func (b *Broadcaster) Publish(msg BroadcastMessage, recipients []uuid.UUID) bool {
	if len(recipients) == 0 || b.sender == nil {
		return false
	}
	data := encodeMessage(msg)
	to := make([]uuid.UUID, len(recipients))
	copy(to, recipients)

	b.mu.Lock()
	if len(b.queue) >= b.limit {
		if shed := b.shedLocked(); shed > 0 {
			b.log.WithField("dropped", shed).Warn("Broadcast backlog full, dropped queued refreshes")
		}
		if len(b.queue) >= b.limit && isRefresh(msg.Kind) {
			b.mu.Unlock()
			b.log.WithField("event", msg.Kind).Warn("Broadcast backlog full, dropping message")
			return false
		}
	}
	b.queue = append(b.queue, delivery{kind: msg.Kind, recipients: to, data: data})
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return true
}

// Saturated reports whether the backlog has reached its limit.
func (b *Broadcaster) Saturated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue) >= b.limit
}

// shedLocked removes queued refreshes and returns how many were removed. b.mu must be held.
func (b *Broadcaster) shedLocked() int {
	kept := b.queue[:0]
	for _, d := range b.queue {
		if !isRefresh(d.kind) {
			kept = append(kept, d)
		}
	}
	shed := len(b.queue) - len(kept)
	for i := len(kept); i < len(b.queue); i++ {
		b.queue[i] = delivery{}
	}
	b.queue = kept
	return shed
}

// isRefresh reports whether a message only repeats state that a later message will carry again.
func isRefresh(kind EventKind) bool {
	return kind == EventHeartbeat || kind == EventStateSync
}

// Pending reports how many messages are queued but not yet delivered.
func (b *Broadcaster) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Run delivers queued messages in order until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.wake:
		}
		for {
			d, ok := b.next()
			if !ok {
				break
			}
			b.deliver(ctx, d)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (b *Broadcaster) next() (delivery, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return delivery{}, false
	}
	d := b.queue[0]
	b.queue[0] = delivery{}
	b.queue = b.queue[1:]
	return d, true
}

func (b *Broadcaster) deliver(ctx context.Context, d delivery) {
	failed := make([]error, len(d.recipients))
	var wg sync.WaitGroup
	for i, id := range d.recipients {
		if _, gone := b.dead[id]; gone {
			continue
		}
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, b.timeout)
			defer cancel()
			failed[i] = b.sender.Send(sendCtx, id, d.data)
		}(i, id)
	}
	wg.Wait()

	// A shutdown cancels every write; that is not the members' fault.
	if ctx.Err() != nil {
		return
	}
	for i, err := range failed {
		if err == nil {
			continue
		}
		id := d.recipients[i]
		b.dead[id] = struct{}{}
		b.log.WithFields(logrus.Fields{
			"client": id,
			"event":  d.kind,
		}).WithError(err).Warn("Broadcast delivery failed, removing member")
		if b.onFailure != nil {
			b.onFailure(id)
		}
	}
}
