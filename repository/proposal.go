package repository

import (
	"context"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

type ProposalFilter struct {
	DealID        string
	FormulationID string
	Status        string
	Limit         int
	Offset        int
}

type ProposalRepository interface {
	Get(ctx context.Context, id string) (*domain.ChangeProposal, error)
	List(ctx context.Context, filter ProposalFilter) ([]domain.ChangeProposal, error)
	Create(ctx context.Context, proposal *domain.ChangeProposal) error
	// Update fails with domain.ErrVersionConflict when another vote landed
	// since the proposal was read.
	Update(ctx context.Context, proposal *domain.ChangeProposal) error
}
