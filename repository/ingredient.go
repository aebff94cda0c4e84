package repository

import (
	"context"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

type IngredientFilter struct {
	DealID  string
	Type    string
	OwnerID string
	Limit   int
	Offset  int
}

type IngredientRepository interface {
	Get(ctx context.Context, id string) (*domain.Ingredient, error)
	List(ctx context.Context, filter IngredientFilter) ([]domain.Ingredient, error)
	Create(ctx context.Context, ingredient *domain.Ingredient) error
	Update(ctx context.Context, ingredient *domain.Ingredient) error
}
