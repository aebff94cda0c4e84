package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

type formulationRepository struct {
	s *Store
}

// NewFormulationRepository returns a FormulationRepository backed by the store.
func NewFormulationRepository(s *Store) repository.FormulationRepository {
	return &formulationRepository{s: s}
}

func (r *formulationRepository) Get(_ context.Context, id string) (*domain.Formulation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	f, ok := r.s.state.formulations[id]
	if !ok {
		return nil, domain.ErrFormulationNotFound
	}
	out := cloneFormulation(f)
	return &out, nil
}

func (r *formulationRepository) GetActive(_ context.Context, dealID string) (*domain.Formulation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, f := range r.s.state.formulations {
		if f.DealID == dealID && f.Status == domain.FormulationActive {
			out := cloneFormulation(f)
			return &out, nil
		}
	}
	return nil, domain.ErrNoActiveFormulation
}

func (r *formulationRepository) List(_ context.Context, filter repository.FormulationFilter) ([]domain.Formulation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var ids []string
	for id, f := range r.s.state.formulations {
		if filter.DealID != "" && f.DealID != filter.DealID {
			continue
		}
		if filter.Status != "" && string(f.Status) != filter.Status {
			continue
		}
		ids = append(ids, id)
	}
	var out []domain.Formulation
	for _, id := range r.s.sorted("formulation", ids, true) {
		out = append(out, cloneFormulation(r.s.state.formulations[id]))
	}
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *formulationRepository) Create(ctx context.Context, f *domain.Formulation) error {
	if f == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if _, exists := r.s.state.formulations[f.ID]; exists {
		return domain.ErrDuplicate
	}
	if f.Version == 0 {
		f.Version = 1
	}
	now := r.s.now()
	f.CreatedAt, f.UpdatedAt = now, now
	for i := range f.Ingredients {
		f.Ingredients[i].FormulationID = f.ID
	}
	put(ctx, r.s.state.formulations, f.ID, cloneFormulation(*f))
	r.s.stamp(ctx, "formulation", f.ID)
	return nil
}

func (r *formulationRepository) Update(ctx context.Context, f *domain.Formulation) error {
	if f == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.state.formulations[f.ID]
	if !ok {
		return domain.ErrFormulationNotFound
	}
	if stored.Version != f.Version {
		return domain.ErrVersionConflict
	}
	if f.Status == domain.FormulationActive {
		for id, other := range r.s.state.formulations {
			if id != f.ID && other.DealID == f.DealID && other.Status == domain.FormulationActive {
				return domain.ErrDuplicate
			}
		}
	}
	f.Version++
	f.CreatedAt = stored.CreatedAt
	f.UpdatedAt = r.s.now()
	for i := range f.Ingredients {
		f.Ingredients[i].FormulationID = f.ID
	}
	put(ctx, r.s.state.formulations, f.ID, cloneFormulation(*f))
	return nil
}
