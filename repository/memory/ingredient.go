package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

type ingredientRepository struct {
	s *Store
}

// NewIngredientRepository returns an IngredientRepository backed by the store.
func NewIngredientRepository(s *Store) repository.IngredientRepository {
	return &ingredientRepository{s: s}
}

func (r *ingredientRepository) Get(_ context.Context, id string) (*domain.Ingredient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ing, ok := r.s.state.ingredients[id]
	if !ok {
		return nil, domain.ErrIngredientNotFound
	}
	return &ing, nil
}

func (r *ingredientRepository) List(_ context.Context, filter repository.IngredientFilter) ([]domain.Ingredient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var ids []string
	for id, ing := range r.s.state.ingredients {
		if filter.DealID != "" && ing.DealID != filter.DealID {
			continue
		}
		if filter.Type != "" && string(ing.Type) != filter.Type {
			continue
		}
		if filter.OwnerID != "" && ing.OwnerID != filter.OwnerID {
			continue
		}
		ids = append(ids, id)
	}
	var out []domain.Ingredient
	for _, id := range r.s.sorted("ingredient", ids, false) {
		out = append(out, r.s.state.ingredients[id])
	}
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *ingredientRepository) Create(ctx context.Context, ing *domain.Ingredient) error {
	if ing == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if ing.ID == "" {
		ing.ID = uuid.NewString()
	}
	if _, exists := r.s.state.ingredients[ing.ID]; exists {
		return domain.ErrDuplicate
	}
	if ing.Version == 0 {
		ing.Version = 1
	}
	now := r.s.now()
	ing.CreatedAt, ing.UpdatedAt = now, now
	put(ctx, r.s.state.ingredients, ing.ID, *ing)
	r.s.stamp(ctx, "ingredient", ing.ID)
	return nil
}

func (r *ingredientRepository) Update(ctx context.Context, ing *domain.Ingredient) error {
	if ing == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.state.ingredients[ing.ID]
	if !ok {
		return domain.ErrIngredientNotFound
	}
	if stored.Version != ing.Version {
		return domain.ErrVersionConflict
	}
	ing.Version++
	ing.CreatedAt = stored.CreatedAt
	ing.UpdatedAt = r.s.now()
	put(ctx, r.s.state.ingredients, ing.ID, *ing)
	return nil
}
