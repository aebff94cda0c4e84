package memory

import (
	"context"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

type eventRepository struct {
	s *Store
}

// NewEventRepository returns an EventRepository backed by the store.
func NewEventRepository(s *Store) repository.EventRepository {
	return &eventRepository{s: s}
}

func (r *eventRepository) Append(ctx context.Context, event domain.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.s.now()
	}
	r.s.state.events = append(r.s.state.events, cloneEvent(event))
	id := event.ID
	onRollback(ctx, func(st *state) {
		for i := len(st.events) - 1; i >= 0; i-- {
			if st.events[i].ID == id {
				st.events = append(st.events[:i], st.events[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (r *eventRepository) List(_ context.Context, filter repository.EventFilter) ([]domain.Event, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Event
	for _, e := range r.s.state.events {
		if filter.AggregateID != "" && e.AggregateID != filter.AggregateID {
			continue
		}
		if filter.Name != "" && e.Name != filter.Name {
			continue
		}
		out = append(out, cloneEvent(e))
	}
	return page(out, filter.Limit, filter.Offset), nil
}
