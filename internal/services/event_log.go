package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase"
)

// LogPublisher writes domain events to the log. It stands in for the Redis
// channel when no Redis is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.Event) error {
	p.logger.Info(event.Name,
		zap.String("event_id", event.ID),
		zap.String("aggregate_kind", event.AggregateKind),
		zap.String("aggregate_id", event.AggregateID),
		zap.Int("version", event.Version),
		zap.ByteString("payload", event.Payload))
	return nil
}

var _ usecase.EventPublisher = (*LogPublisher)(nil)
