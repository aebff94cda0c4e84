package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

type proposalRepository struct {
	s *Store
}

// NewProposalRepository returns a ProposalRepository backed by the store.
func NewProposalRepository(s *Store) repository.ProposalRepository {
	return &proposalRepository{s: s}
}

func (r *proposalRepository) Get(_ context.Context, id string) (*domain.ChangeProposal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.state.proposals[id]
	if !ok {
		return nil, domain.ErrProposalNotFound
	}
	out := cloneProposal(p)
	return &out, nil
}

func (r *proposalRepository) List(_ context.Context, filter repository.ProposalFilter) ([]domain.ChangeProposal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var ids []string
	for id, p := range r.s.state.proposals {
		if filter.DealID != "" && p.DealID != filter.DealID {
			continue
		}
		if filter.FormulationID != "" && p.FormulationID != filter.FormulationID {
			continue
		}
		if filter.Status != "" && string(p.Status) != filter.Status {
			continue
		}
		ids = append(ids, id)
	}
	var out []domain.ChangeProposal
	for _, id := range r.s.sorted("proposal", ids, true) {
		out = append(out, cloneProposal(r.s.state.proposals[id]))
	}
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *proposalRepository) Create(ctx context.Context, p *domain.ChangeProposal) error {
	if p == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := r.s.state.proposals[p.ID]; exists {
		return domain.ErrDuplicate
	}
	if p.Version == 0 {
		p.Version = 1
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.s.now()
	}
	put(ctx, r.s.state.proposals, p.ID, cloneProposal(*p))
	r.s.stamp(ctx, "proposal", p.ID)
	return nil
}

func (r *proposalRepository) Update(ctx context.Context, p *domain.ChangeProposal) error {
	if p == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.state.proposals[p.ID]
	if !ok {
		return domain.ErrProposalNotFound
	}
	if stored.Version != p.Version {
		return domain.ErrVersionConflict
	}
	p.Version++
	stored.Status = p.Status
	stored.Approvals = p.Approvals
	stored.ResolvedAt = p.ResolvedAt
	stored.IngredientID = p.IngredientID
	stored.RuleID = p.RuleID
	stored.Version = p.Version
	put(ctx, r.s.state.proposals, p.ID, cloneProposal(stored))
	return nil
}
