package repository

import (
	"context"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

type UsageListFilter struct {
	DealID       string
	IngredientID string
	Limit        int
	Offset       int
}

// UsageRepository is the append-only usage ledger.
type UsageRepository interface {
	// Append stores the event and folds it into the running summary. It
	// reports false without error when the event id was already recorded.
	Append(ctx context.Context, event domain.UsageEvent) (bool, error)
	List(ctx context.Context, filter UsageListFilter) ([]domain.UsageEvent, error)
	Summaries(ctx context.Context, filter domain.UsageFilter) ([]domain.UsageSummary, error)
}
