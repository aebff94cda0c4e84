package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

// Emitter writes domain events to the outbox and publishes them once the
// surrounding transaction committed.
type Emitter struct {
	outbox    repository.EventRepository
	publisher EventPublisher
	logger    *zap.Logger
}

func NewEmitter(outbox repository.EventRepository, publisher EventPublisher, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{outbox: outbox, publisher: publisher, logger: logger}
}

// Record appends events to the outbox using ctx, so they share the caller's
// transaction.
func (e *Emitter) Record(ctx context.Context, events ...domain.Event) error {
	if e == nil || e.outbox == nil {
		return nil
	}
	for _, ev := range events {
		if err := e.outbox.Append(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// Publish delivers events best-effort. The outbox row stays authoritative, so
// publisher failures are only logged.
func (e *Emitter) Publish(ctx context.Context, events ...domain.Event) {
	if e == nil || e.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := e.publisher.Publish(ctx, ev); err != nil {
			e.logger.Warn("event publish failed",
				zap.String("event", ev.Name),
				zap.String("aggregate_id", ev.AggregateID),
				zap.Error(err))
		}
	}
}
