package memory

import (
	"context"
	"sort"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

type usageRepository struct {
	s *Store
}

// NewUsageRepository returns a UsageRepository backed by the store.
func NewUsageRepository(s *Store) repository.UsageRepository {
	return &usageRepository{s: s}
}

func (r *usageRepository) Append(ctx context.Context, event domain.UsageEvent) (bool, error) {
	if event.ID == "" {
		return false, domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.state.usage[event.ID]; exists {
		return false, nil
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = r.s.now()
	}
	put(ctx, r.s.state.usage, event.ID, event)
	r.s.stamp(ctx, "usage", event.ID)

	key := summaryKey{dealID: event.DealID, ingredientID: event.IngredientID, usageType: event.UsageType}
	summary, ok := r.s.state.summaries[key]
	if !ok {
		summary = domain.UsageSummary{
			DealID:       event.DealID,
			IngredientID: event.IngredientID,
			UsageType:    event.UsageType,
		}
	}
	summary.Apply(event)
	r.s.state.summaries[key] = summary
	id := event.ID
	onRollback(ctx, func(st *state) { st.rebuildSummary(key, id) })
	return true, nil
}

// rebuildSummary recomputes the summary of key from the stored events,
// leaving out excluded. Other callers may have folded events into the same
// summary since excluded was recorded.
func (st *state) rebuildSummary(key summaryKey, excluded string) {
	summary := domain.UsageSummary{
		DealID:       key.dealID,
		IngredientID: key.ingredientID,
		UsageType:    key.usageType,
	}
	for id, ev := range st.usage {
		if id == excluded || ev.DealID != key.dealID || ev.IngredientID != key.ingredientID || ev.UsageType != key.usageType {
			continue
		}
		summary.Apply(ev)
	}
	if summary.EventCount == 0 {
		delete(st.summaries, key)
		return
	}
	st.summaries[key] = summary
}

func (r *usageRepository) List(_ context.Context, filter repository.UsageListFilter) ([]domain.UsageEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var ids []string
	for id, e := range r.s.state.usage {
		if filter.DealID != "" && e.DealID != filter.DealID {
			continue
		}
		if filter.IngredientID != "" && e.IngredientID != filter.IngredientID {
			continue
		}
		ids = append(ids, id)
	}
	var out []domain.UsageEvent
	for _, id := range r.s.sorted("usage", ids, true) {
		out = append(out, r.s.state.usage[id])
	}
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *usageRepository) Summaries(_ context.Context, filter domain.UsageFilter) ([]domain.UsageSummary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.UsageSummary
	for _, s := range r.s.state.summaries {
		if filter.Matches(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DealID != out[j].DealID {
			return out[i].DealID < out[j].DealID
		}
		if out[i].IngredientID != out[j].IngredientID {
			return out[i].IngredientID < out[j].IngredientID
		}
		return out[i].UsageType < out[j].UsageType
	})
	return out, nil
}
