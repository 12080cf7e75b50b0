// Package historian drains the action journal into Postgres and retires rooms that go quiet.
package historian

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coup/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Source yields journal records. Pop returns (nil, nil) when nothing arrived within timeout.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*models.ActionRecord, error)
}

// Sink persists batches and flags abandoned rooms.
type Sink interface {
	InsertActions(ctx context.Context, recs []models.ActionRecord) error
	MarkRoomAbandoned(ctx context.Context, roomID uuid.UUID) (bool, error)
}

// Options tune batching and inactivity. Zero fields take defaults.
type Options struct {
	BatchSize     int
	FlushInterval time.Duration
	InactiveAfter time.Duration
	PopTimeout    time.Duration
	SweepInterval time.Duration
}

func (o *Options) withDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 500 * time.Millisecond
	}
	if o.InactiveAfter <= 0 {
		o.InactiveAfter = 30 * time.Minute
	}
	if o.PopTimeout <= 0 {
		o.PopTimeout = 3 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
}

// terminalActions end a room's activity tracking.
var terminalActions = map[string]bool{
	"game_over": true,
}

// Service captures game actions and marks rooms abandoned after InactiveAfter without one.
type Service struct {
	src    Source
	sink   Sink
	opts   Options
	logger *logrus.Logger
	now    func() time.Time

	lastActivity sync.Map // uuid.UUID -> time.Time

	batchMu sync.Mutex
	batch   []models.ActionRecord
}

func NewService(src Source, sink Sink, opts Options, logger *logrus.Logger) *Service {
	opts.withDefaults()
	return &Service{
		src:    src,
		sink:   sink,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		batch:  make([]models.ActionRecord, 0, opts.BatchSize),
	}
}

// Run blocks until ctx is cancelled or a loop fails, then flushes what is buffered.
func (s *Service) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"batch":    s.opts.BatchSize,
		"flush":    s.opts.FlushInterval,
		"inactive": s.opts.InactiveAfter,
	}).Info("historian started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.flushLoop(gctx) })
	g.Go(func() error { return s.inactivityLoop(gctx) })
	err := g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Flush(flushCtx)
	s.logger.Info("historian stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Service) readLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := s.src.Pop(ctx, s.opts.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.WithError(err).Error("failed to pop action record")
			continue
		}
		if rec == nil {
			continue
		}
		s.Ingest(ctx, *rec)
	}
}

func (s *Service) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

func (s *Service) inactivityLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Ingest tracks the record's room activity and buffers it, flushing once the batch is full.
func (s *Service) Ingest(ctx context.Context, rec models.ActionRecord) {
	if terminalActions[rec.ActionType] {
		s.lastActivity.Delete(rec.RoomID)
	} else {
		s.lastActivity.Store(rec.RoomID, s.now())
	}

	s.batchMu.Lock()
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.opts.BatchSize
	s.batchMu.Unlock()

	if full {
		s.Flush(ctx)
	}
}

// Flush writes the buffered batch in one transaction. A failed batch is put back in front
// of anything buffered since, so ordering within a room holds.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	pending := make([]models.ActionRecord, len(s.batch))
	copy(pending, s.batch)
	s.batch = s.batch[:0]
	s.batchMu.Unlock()

	if err := s.sink.InsertActions(ctx, pending); err != nil {
		s.logger.WithError(err).WithField("count", len(pending)).Error("failed to flush action batch")
		s.batchMu.Lock()
		s.batch = append(pending, s.batch...)
		s.batchMu.Unlock()
		return
	}
	s.logger.WithField("count", len(pending)).Debug("flushed actions")
}

// Sweep marks rooms idle for longer than InactiveAfter as abandoned.
func (s *Service) Sweep(ctx context.Context) {
	now := s.now()
	s.lastActivity.Range(func(key, val interface{}) bool {
		roomID, ok1 := key.(uuid.UUID)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= s.opts.InactiveAfter {
			return true
		}
		changed, err := s.sink.MarkRoomAbandoned(ctx, roomID)
		if err != nil {
			s.logger.WithError(err).WithField("room", roomID).Error("failed to mark room abandoned")
			return true
		}
		s.lastActivity.Delete(roomID)
		if changed {
			s.logger.WithField("room", roomID).Info("marked room abandoned due to inactivity")
		}
		return true
	})
}

// Pending reports how many records are buffered.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}
