package repository

import (
	"context"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

type DealFilter struct {
	ParticipantID string
	Limit         int
	Offset        int
}

type DealRepository interface {
	Get(ctx context.Context, id string) (*domain.Deal, error)
	List(ctx context.Context, filter DealFilter) ([]domain.Deal, error)
	Create(ctx context.Context, deal *domain.Deal) error
	// Update persists the deal when its Version still matches the stored row
	// and increments Version.
	Update(ctx context.Context, deal *domain.Deal) error
}
