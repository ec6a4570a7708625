// internal/historian/historian.go
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/tycoon/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize     = 20
	DefaultFlushInterval = 500 * time.Millisecond
	DefaultInactivity    = 10 * time.Minute
	DefaultPopTimeout    = 3 * time.Second

	writeTimeout = 10 * time.Second
)

// Queue is the blocking pop the historian reads records with.
type Queue interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Sink persists batches of action records.
type Sink interface {
	InsertActions(ctx context.Context, records []cache.GameActionRecord) error
	MarkAbandoned(ctx context.Context, gameID uuid.UUID) error
}

// Config tunes batching and inactivity detection. Zero values take the defaults.
type Config struct {
	QueueName     string
	BatchSize     int
	FlushInterval time.Duration
	Inactivity    time.Duration // a game with no records for this long is marked abandoned
	PopTimeout    time.Duration
	Logger        *logrus.Logger
}

// Service pops action records off the queue, batches them and writes them to the sink.
type Service struct {
	queue Queue
	sink  Sink
	cfg   Config
	log   *logrus.Entry

	batchMu sync.Mutex
	batch   []cache.GameActionRecord

	lastActivity sync.Map // map[uuid.UUID]time.Time
}

// New builds a Service.
func New(queue Queue, sink Sink, cfg Config) *Service {
	if cfg.QueueName == "" {
		cfg.QueueName = cache.DefaultQueueName
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.Inactivity <= 0 {
		cfg.Inactivity = DefaultInactivity
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = DefaultPopTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Service{
		queue: queue,
		sink:  sink,
		cfg:   cfg,
		log:   cfg.Logger.WithField("component", "historian"),
		batch: make([]cache.GameActionRecord, 0, cfg.BatchSize),
	}
}

// Run reads, flushes and checks for abandoned games until ctx is cancelled.
// Whatever is still batched is flushed before it returns.
func (s *Service) Run(ctx context.Context) error {
	s.log.WithField("queue", s.cfg.QueueName).Info("Historian started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(ctx) })
	g.Go(func() error { return s.flushLoop(ctx) })
	g.Go(func() error { return s.inactivityLoop(ctx) })
	err := g.Wait()

	s.flush(context.Background())
	s.log.Info("Historian stopped")
	return err
}

func (s *Service) readLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		res, err := s.queue.BLPop(ctx, s.cfg.PopTimeout, s.cfg.QueueName).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			s.log.WithError(err).Error("BLPop failed")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		// res[0] is the queue name and res[1] the payload.
		if len(res) < 2 {
			continue
		}
		s.handle(ctx, res[1])
	}
	return nil
}

// handle decodes one payload and adds it to the batch.
func (s *Service) handle(ctx context.Context, payload string) {
	var rec cache.GameActionRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		s.log.WithError(err).Warn("Invalid action record")
		return
	}

	if rec.ActionType == cache.ActionEndGame {
		s.lastActivity.Delete(rec.RoomID)
	} else {
		s.lastActivity.Store(rec.RoomID, time.Now())
	}

	s.batchMu.Lock()
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.cfg.BatchSize
	s.batchMu.Unlock()

	if full {
		s.flush(ctx)
	}
}

func (s *Service) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

// flush writes the current batch in one call. A failed batch is logged and dropped.
func (s *Service) flush(parent context.Context) {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	batch := make([]cache.GameActionRecord, len(s.batch))
	copy(batch, s.batch)
	s.batch = s.batch[:0]
	s.batchMu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), writeTimeout)
	defer cancel()
	if err := s.sink.InsertActions(ctx, batch); err != nil {
		s.log.WithError(err).WithField("count", len(batch)).Error("Failed to flush actions")
		return
	}
	s.log.WithField("count", len(batch)).Debug("Flushed actions")
}

func (s *Service) inactivityLoop(ctx context.Context) error {
	interval := s.cfg.Inactivity / 10
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.markInactive(ctx, now)
		}
	}
}

// markInactive marks every game idle for longer than the inactivity threshold as abandoned.
func (s *Service) markInactive(ctx context.Context, now time.Time) int {
	marked := 0
	s.lastActivity.Range(func(key, val interface{}) bool {
		gameID, ok1 := key.(uuid.UUID)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= s.cfg.Inactivity {
			return true
		}
		// Pending records for the game must land before it is flagged.
		s.flush(ctx)
		if err := s.sink.MarkAbandoned(ctx, gameID); err != nil {
			s.log.WithField("game", gameID).WithError(err).Warn("Failed to mark game abandoned")
			return true
		}
		s.lastActivity.Delete(gameID)
		s.log.WithField("game", gameID).Info("Marked game abandoned due to inactivity")
		marked++
		return true
	})
	return marked
}
