package repository

import (
	"context"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

type RuleFilter struct {
	DealID        string
	FormulationID string
	ParticipantID string
	ActiveOnly    bool
}

type RuleRepository interface {
	Get(ctx context.Context, id string) (*domain.AttributionRule, error)
	// List returns rules in creation order.
	List(ctx context.Context, filter RuleFilter) ([]domain.AttributionRule, error)
	Create(ctx context.Context, rule *domain.AttributionRule) error
	Update(ctx context.Context, rule *domain.AttributionRule) error
}
