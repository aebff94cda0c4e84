package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/infrastructure/buffer"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// ProcessorConfig controls how frequently the inbox is drained.
type ProcessorConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int

	// DeadRetention bounds how long dead letters are kept. Zero keeps them.
	DeadRetention time.Duration
}

// BufferProcessor drains the durable inbox into the engine through the
// command dispatcher.
type BufferProcessor struct {
	store      *buffer.Store
	monitor    ConnectionHealth
	dispatcher *usecase.Dispatcher
	logger     *zap.Logger
	cron       *cron.Cron
	cfg        ProcessorConfig
}

func NewBufferProcessor(
	store *buffer.Store,
	monitor ConnectionHealth,
	dispatcher *usecase.Dispatcher,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *BufferProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bp := &BufferProcessor{
		store:      store,
		monitor:    monitor,
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		cron:       cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", max(int(cfg.Interval.Seconds()), 1))
	_, _ = bp.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if _, err := bp.Drain(ctx); err != nil {
			bp.logger.Error("inbox drain failed", zap.Error(err))
		}
	})
	if cfg.DeadRetention > 0 {
		_, _ = bp.cron.AddFunc("@hourly", bp.purgeDead)
	}

	return bp
}

// Start launches the cron scheduler.
func (bp *BufferProcessor) Start() {
	if bp == nil || bp.cron == nil {
		return
	}
	bp.cron.Start()
	bp.logger.Info("inbox processor started", zap.Duration("interval", bp.cfg.Interval))
}

// Stop waits for a running drain to finish or ctx to expire.
func (bp *BufferProcessor) Stop(ctx context.Context) {
	if bp == nil || bp.cron == nil {
		return
	}
	stopCtx := bp.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	bp.logger.Info("inbox processor stopped")
}

// Drain applies one batch of inbox items and returns how many succeeded.
// Failed items are retried on later drains; input errors are never
// retried and go straight to the dead-letter bucket.
func (bp *BufferProcessor) Drain(ctx context.Context) (int, error) {
	if bp == nil || bp.store == nil {
		return 0, nil
	}
	if bp.monitor != nil && !bp.monitor.IsOnline() {
		bp.logger.Debug("skipping inbox drain (offline)")
		return 0, nil
	}

	items, err := bp.store.Peek(bp.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		if err := bp.process(ctx, item); err != nil {
			bp.fail(item, err)
			continue
		}
		if err := bp.store.Ack(item); err != nil {
			bp.logger.Warn("failed to ack inbox item", zap.String("item_id", item.ID), zap.Error(err))
		}
		applied++
	}
	return applied, nil
}

func (bp *BufferProcessor) purgeDead() {
	purged, err := bp.store.PurgeDead(time.Now().Add(-bp.cfg.DeadRetention))
	if err != nil {
		bp.logger.Error("dead letter purge failed", zap.Error(err))
		return
	}
	if purged > 0 {
		bp.logger.Info("dead letters purged", zap.Int("count", purged))
	}
}

// Accept validates that the command is routable and persists the item.
func (bp *BufferProcessor) Accept(item buffer.Item) (buffer.Item, error) {
	if bp == nil || bp.store == nil {
		return item, fmt.Errorf("inbox processor not configured")
	}
	if !bp.dispatcher.Handles(item.Command) {
		return item, domain.Validation("command", "no handler registered for %q", item.Command)
	}
	return bp.store.Enqueue(item)
}

// Stats returns the inbox depth, zero when it cannot be read.
func (bp *BufferProcessor) Stats() buffer.Stats {
	if bp == nil || bp.store == nil {
		return buffer.Stats{}
	}
	st, err := bp.store.Stats()
	if err != nil {
		return buffer.Stats{}
	}
	return st
}

func (bp *BufferProcessor) process(ctx context.Context, item buffer.Item) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return bp.dispatcher.Execute(ctx, item.Command, item.Payload)
}

func (bp *BufferProcessor) fail(item buffer.Item, cause error) {
	limit := bp.cfg.MaxRetries
	if permanent(cause) {
		limit = item.Attempts + 1
	}
	dead, err := bp.store.Retry(item, cause, limit)
	if err != nil {
		bp.logger.Error("failed to reschedule inbox item", zap.String("item_id", item.ID), zap.Error(err))
		return
	}
	fields := []zap.Field{
		zap.String("item_id", item.ID),
		zap.String("command", item.Command),
		zap.Int("attempts", item.Attempts+1),
		zap.Error(cause),
	}
	if dead {
		bp.logger.Warn("inbox item dead-lettered", fields...)
		return
	}
	bp.logger.Info("inbox item will be retried", fields...)
}

func permanent(err error) bool {
	return domain.IsDomainError(err, domain.ErrCodeInvalid) ||
		domain.IsDomainError(err, domain.ErrCodeNotFound) ||
		domain.IsDomainError(err, domain.ErrCodeState)
}
