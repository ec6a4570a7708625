// internal/cache/publisher.go
package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const pushTimeout = 2 * time.Second

// Publisher pushes action records to the historian queue from one goroutine,
// preserving the order in which rooms produced them.
type Publisher struct {
	rdb     Pusher
	queue   string
	records chan GameActionRecord
	log     *logrus.Entry
}

// NewPublisher creates a Publisher with room for buffer pending records.
func NewPublisher(rdb Pusher, queueName string, buffer int, logger *logrus.Logger) *Publisher {
	if queueName == "" {
		queueName = DefaultQueueName
	}
	if buffer <= 0 {
		buffer = 1024
	}
	return &Publisher{
		rdb:     rdb,
		queue:   queueName,
		records: make(chan GameActionRecord, buffer),
		log:     logger.WithField("component", "action_publisher"),
	}
}

// Publish queues rec without blocking. Records are dropped, with a warning, when the buffer is full.
func (p *Publisher) Publish(rec GameActionRecord) {
	select {
	case p.records <- rec:
	default:
		p.log.WithFields(logrus.Fields{
			"room":         rec.RoomID,
			"action_index": rec.ActionIndex,
		}).Warn("Action log buffer full, dropping record")
	}
}

// Run drains the buffer into Redis until ctx is cancelled, then flushes what is left.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.flush()
			return nil
		case rec := <-p.records:
			p.push(context.Background(), rec)
		}
	}
}

func (p *Publisher) flush() {
	for {
		select {
		case rec := <-p.records:
			p.push(context.Background(), rec)
		default:
			return
		}
	}
}

func (p *Publisher) push(parent context.Context, rec GameActionRecord) {
	ctx, cancel := context.WithTimeout(parent, pushTimeout)
	defer cancel()
	if err := PublishGameAction(ctx, p.rdb, p.queue, rec); err != nil {
		p.log.WithFields(logrus.Fields{
			"room":         rec.RoomID,
			"action_index": rec.ActionIndex,
		}).WithError(err).Error("Failed to publish action")
	}
}
