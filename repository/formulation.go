package repository

import (
	"context"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

type FormulationFilter struct {
	DealID string
	Status string
	Limit  int
	Offset int
}

// FormulationRepository persists formulations together with their
// composition edges.
type FormulationRepository interface {
	Get(ctx context.Context, id string) (*domain.Formulation, error)
	List(ctx context.Context, filter FormulationFilter) ([]domain.Formulation, error)
	// GetActive returns domain.ErrNoActiveFormulation when the deal has none.
	GetActive(ctx context.Context, dealID string) (*domain.Formulation, error)
	Create(ctx context.Context, formulation *domain.Formulation) error
	// Update replaces fields and edges when Version matches, then increments it.
	Update(ctx context.Context, formulation *domain.Formulation) error
}
