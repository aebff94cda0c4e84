package repository

import (
	"context"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

type EventFilter struct {
	AggregateID string
	Name        string
	Limit       int
	Offset      int
}

// EventRepository is the append-only domain event outbox.
type EventRepository interface {
	Append(ctx context.Context, event domain.Event) error
	List(ctx context.Context, filter EventFilter) ([]domain.Event, error)
}
