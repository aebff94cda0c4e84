package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

type creditRepository struct {
	s *Store
}

// NewCreditRepository returns a CreditRepository backed by the store.
func NewCreditRepository(s *Store) repository.CreditRepository {
	return &creditRepository{s: s}
}

func (r *creditRepository) Get(_ context.Context, id string) (*domain.Credit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.state.credits[id]
	if !ok {
		return nil, domain.ErrCreditNotFound
	}
	return &c, nil
}

func (r *creditRepository) List(_ context.Context, filter repository.CreditFilter) ([]domain.Credit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var ids []string
	for id, c := range r.s.state.credits {
		if filter.DealID != "" && c.DealID != filter.DealID {
			continue
		}
		if filter.ParticipantID != "" && c.ParticipantID != filter.ParticipantID {
			continue
		}
		if filter.Tier != "" && string(c.Tier) != filter.Tier {
			continue
		}
		ids = append(ids, id)
	}
	var out []domain.Credit
	for _, id := range r.s.sorted("credit", ids, false) {
		out = append(out, r.s.state.credits[id])
	}
	return out, nil
}

func (r *creditRepository) Create(ctx context.Context, c *domain.Credit) error {
	if c == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, exists := r.s.state.credits[c.ID]; exists {
		return domain.ErrDuplicate
	}
	if c.RecordedAt.IsZero() {
		c.RecordedAt = r.s.now()
	}
	put(ctx, r.s.state.credits, c.ID, *c)
	r.s.stamp(ctx, "credit", c.ID)
	return nil
}

func (r *creditRepository) Update(ctx context.Context, c *domain.Credit) error {
	if c == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.state.credits[c.ID]; !ok {
		return domain.ErrCreditNotFound
	}
	put(ctx, r.s.state.credits, c.ID, *c)
	return nil
}
