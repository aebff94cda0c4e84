package repository

import (
	"context"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

type CreditFilter struct {
	DealID        string
	ParticipantID string
	Tier          string
}

type CreditRepository interface {
	Get(ctx context.Context, id string) (*domain.Credit, error)
	List(ctx context.Context, filter CreditFilter) ([]domain.Credit, error)
	Create(ctx context.Context, credit *domain.Credit) error
	Update(ctx context.Context, credit *domain.Credit) error
}
