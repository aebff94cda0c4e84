package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

type contractRepository struct {
	s *Store
}

// NewContractRepository returns a ContractRepository backed by the store.
func NewContractRepository(s *Store) repository.ContractRepository {
	return &contractRepository{s: s}
}

func (r *contractRepository) Get(_ context.Context, id string) (*domain.SettlementContract, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.state.contracts[id]
	if !ok {
		return nil, domain.ErrContractNotFound
	}
	out := cloneContract(c)
	return &out, nil
}

func (r *contractRepository) List(_ context.Context, filter repository.ContractFilter) ([]domain.SettlementContract, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var ids []string
	for id, c := range r.s.state.contracts {
		if filter.DealID != "" && c.DealID != filter.DealID {
			continue
		}
		if filter.TriggerType != "" && string(c.TriggerType) != filter.TriggerType {
			continue
		}
		if filter.ActiveOnly && !c.IsActive {
			continue
		}
		ids = append(ids, id)
	}
	var out []domain.SettlementContract
	for _, id := range r.s.sorted("contract", ids, false) {
		out = append(out, cloneContract(r.s.state.contracts[id]))
	}
	return out, nil
}

func (r *contractRepository) Create(ctx context.Context, c *domain.SettlementContract) error {
	if c == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, exists := r.s.state.contracts[c.ID]; exists {
		return domain.ErrDuplicate
	}
	if c.Version == 0 {
		c.Version = 1
	}
	now := r.s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	put(ctx, r.s.state.contracts, c.ID, cloneContract(*c))
	r.s.stamp(ctx, "contract", c.ID)
	return nil
}

func (r *contractRepository) Update(ctx context.Context, c *domain.SettlementContract) error {
	if c == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.state.contracts[c.ID]
	if !ok {
		return domain.ErrContractNotFound
	}
	if stored.Version != c.Version {
		return domain.ErrVersionConflict
	}
	c.Version++
	c.CreatedAt = stored.CreatedAt
	c.UpdatedAt = r.s.now()
	put(ctx, r.s.state.contracts, c.ID, cloneContract(*c))
	return nil
}

type executionRepository struct {
	s *Store
}

// NewExecutionRepository returns an ExecutionRepository backed by the store.
func NewExecutionRepository(s *Store) repository.ExecutionRepository {
	return &executionRepository{s: s}
}

func (r *executionRepository) Get(_ context.Context, id string) (*domain.SettlementExecution, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.state.executions[id]
	if !ok {
		return nil, domain.ErrExecutionNotFound
	}
	out := cloneExecution(e)
	return &out, nil
}

func (r *executionRepository) List(_ context.Context, filter repository.ExecutionFilter) ([]domain.SettlementExecution, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var ids []string
	for id, e := range r.s.state.executions {
		if filter.DealID != "" && e.DealID != filter.DealID {
			continue
		}
		if filter.ContractID != "" && e.ContractID != filter.ContractID {
			continue
		}
		if filter.Status != "" && string(e.Status) != filter.Status {
			continue
		}
		ids = append(ids, id)
	}
	var out []domain.SettlementExecution
	for _, id := range r.s.sorted("execution", ids, true) {
		out = append(out, cloneExecution(r.s.state.executions[id]))
	}
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *executionRepository) Create(ctx context.Context, e *domain.SettlementExecution) error {
	if e == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, exists := r.s.state.executions[e.ID]; exists {
		return domain.ErrDuplicate
	}
	now := r.s.now()
	e.CreatedAt, e.UpdatedAt = now, now
	put(ctx, r.s.state.executions, e.ID, cloneExecution(*e))
	r.s.stamp(ctx, "execution", e.ID)
	return nil
}

func (r *executionRepository) Update(ctx context.Context, e *domain.SettlementExecution) error {
	if e == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.state.executions[e.ID]
	if !ok {
		return domain.ErrExecutionNotFound
	}
	e.CreatedAt = stored.CreatedAt
	e.UpdatedAt = r.s.now()
	put(ctx, r.s.state.executions, e.ID, cloneExecution(*e))
	return nil
}

type payoutRepository struct {
	s *Store
}

// NewPayoutRepository returns a PayoutRepository backed by the store.
func NewPayoutRepository(s *Store) repository.PayoutRepository {
	return &payoutRepository{s: s}
}

func (r *payoutRepository) Get(_ context.Context, id string) (*domain.SettlementPayout, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.state.payouts[id]
	if !ok {
		return nil, domain.ErrPayoutNotFound
	}
	return &p, nil
}

func (r *payoutRepository) ListByExecution(_ context.Context, executionID string) ([]domain.SettlementPayout, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var ids []string
	for id, p := range r.s.state.payouts {
		if p.ExecutionID == executionID {
			ids = append(ids, id)
		}
	}
	var out []domain.SettlementPayout
	for _, id := range r.s.sorted("payout", ids, false) {
		out = append(out, r.s.state.payouts[id])
	}
	return out, nil
}

func (r *payoutRepository) Create(ctx context.Context, p *domain.SettlementPayout) error {
	if p == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := r.s.state.payouts[p.ID]; exists {
		return domain.ErrDuplicate
	}
	p.CreatedAt = r.s.now()
	put(ctx, r.s.state.payouts, p.ID, *p)
	r.s.stamp(ctx, "payout", p.ID)
	return nil
}

func (r *payoutRepository) Update(ctx context.Context, p *domain.SettlementPayout) error {
	if p == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.state.payouts[p.ID]; !ok {
		return domain.ErrPayoutNotFound
	}
	put(ctx, r.s.state.payouts, p.ID, *p)
	return nil
}
