package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

type ruleRepository struct {
	s *Store
}

// NewRuleRepository returns a RuleRepository backed by the store.
func NewRuleRepository(s *Store) repository.RuleRepository {
	return &ruleRepository{s: s}
}

func (r *ruleRepository) Get(_ context.Context, id string) (*domain.AttributionRule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rule, ok := r.s.state.rules[id]
	if !ok {
		return nil, domain.ErrRuleNotFound
	}
	out := cloneRule(rule)
	return &out, nil
}

func (r *ruleRepository) List(_ context.Context, filter repository.RuleFilter) ([]domain.AttributionRule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var ids []string
	for id, rule := range r.s.state.rules {
		if filter.DealID != "" && rule.DealID != filter.DealID {
			continue
		}
		if filter.FormulationID != "" && rule.FormulationID != filter.FormulationID {
			continue
		}
		if filter.ParticipantID != "" && rule.ParticipantID != filter.ParticipantID {
			continue
		}
		if filter.ActiveOnly && !rule.IsActive {
			continue
		}
		ids = append(ids, id)
	}
	var out []domain.AttributionRule
	for _, id := range r.s.sorted("rule", ids, false) {
		out = append(out, cloneRule(r.s.state.rules[id]))
	}
	return out, nil
}

func (r *ruleRepository) Create(ctx context.Context, rule *domain.AttributionRule) error {
	if rule == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if _, exists := r.s.state.rules[rule.ID]; exists {
		return domain.ErrDuplicate
	}
	now := r.s.now()
	rule.CreatedAt, rule.UpdatedAt = now, now
	put(ctx, r.s.state.rules, rule.ID, cloneRule(*rule))
	r.s.stamp(ctx, "rule", rule.ID)
	return nil
}

func (r *ruleRepository) Update(ctx context.Context, rule *domain.AttributionRule) error {
	if rule == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.state.rules[rule.ID]
	if !ok {
		return domain.ErrRuleNotFound
	}
	rule.CreatedAt = stored.CreatedAt
	rule.UpdatedAt = r.s.now()
	put(ctx, r.s.state.rules, rule.ID, cloneRule(*rule))
	return nil
}
