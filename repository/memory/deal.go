package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

type dealRepository struct {
	s *Store
}

// NewDealRepository returns a DealRepository backed by the store.
func NewDealRepository(s *Store) repository.DealRepository {
	return &dealRepository{s: s}
}

func (r *dealRepository) Get(_ context.Context, id string) (*domain.Deal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.state.deals[id]
	if !ok {
		return nil, domain.ErrDealNotFound
	}
	out := cloneDeal(d)
	return &out, nil
}

func (r *dealRepository) List(_ context.Context, filter repository.DealFilter) ([]domain.Deal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var ids []string
	for id, d := range r.s.state.deals {
		if filter.ParticipantID != "" && !d.HasParticipant(filter.ParticipantID) {
			continue
		}
		ids = append(ids, id)
	}
	var out []domain.Deal
	for _, id := range r.s.sorted("deal", ids, true) {
		out = append(out, cloneDeal(r.s.state.deals[id]))
	}
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *dealRepository) Create(ctx context.Context, d *domain.Deal) error {
	if d == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if _, exists := r.s.state.deals[d.ID]; exists {
		return domain.ErrDuplicate
	}
	if d.Version == 0 {
		d.Version = 1
	}
	now := r.s.now()
	d.CreatedAt, d.UpdatedAt = now, now
	put(ctx, r.s.state.deals, d.ID, cloneDeal(*d))
	r.s.stamp(ctx, "deal", d.ID)
	return nil
}

func (r *dealRepository) Update(ctx context.Context, d *domain.Deal) error {
	if d == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.state.deals[d.ID]
	if !ok {
		return domain.ErrDealNotFound
	}
	if stored.Version != d.Version {
		return domain.ErrVersionConflict
	}
	d.Version++
	d.CreatedAt = stored.CreatedAt
	d.UpdatedAt = r.s.now()
	put(ctx, r.s.state.deals, d.ID, cloneDeal(*d))
	return nil
}
