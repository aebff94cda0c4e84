package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

type ingredientRepository struct {
	pool *pgxpool.Pool
}

// NewIngredientRepository returns a Postgres-backed implementation of IngredientRepository.
func NewIngredientRepository(pool *pgxpool.Pool) repository.IngredientRepository {
	return &ingredientRepository{pool: pool}
}

const ingredientColumns = `id, deal_id, name, type, ownership_status, owner_id, value_category,
	contribution_weight, credit_multiplier, created_by, version, created_at, updated_at`

func (r *ingredientRepository) Get(ctx context.Context, id string) (*domain.Ingredient, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+ingredientColumns+` FROM ingredients WHERE id = $1`, id)
	return scanIngredient(row)
}

func (r *ingredientRepository) List(ctx context.Context, filter repository.IngredientFilter) ([]domain.Ingredient, error) {
	const query = `
	SELECT ` + ingredientColumns + `
	FROM ingredients
	WHERE ($1 = '' OR deal_id = $1)
	  AND ($2 = '' OR type = $2)
	  AND ($3 = '' OR owner_id = $3)
	ORDER BY created_at ASC
	LIMIT $4 OFFSET $5
	`
	rows, err := conn(ctx, r.pool).Query(ctx, query, filter.DealID, filter.Type, filter.OwnerID, clampLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Ingredient
	for rows.Next() {
		ing, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *ing)
	}
	return items, rows.Err()
}

func (r *ingredientRepository) Create(ctx context.Context, ing *domain.Ingredient) error {
	if ing == nil {
		return domain.ErrInvalidPayload
	}
	if ing.ID == "" {
		ing.ID = uuid.NewString()
	}
	if ing.Version == 0 {
		ing.Version = 1
	}

	const query = `
	INSERT INTO ingredients (id, deal_id, name, type, ownership_status, owner_id, value_category,
		contribution_weight, credit_multiplier, created_by, version)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING created_at, updated_at
	`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		ing.ID,
		ing.DealID,
		ing.Name,
		ing.Type,
		ing.OwnershipStatus,
		ing.OwnerID,
		ing.Classification.ValueCategory,
		ing.Classification.ContributionWeight,
		ing.Classification.CreditMultiplier,
		ing.CreatedBy,
		ing.Version,
	).Scan(&ing.CreatedAt, &ing.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	return err
}

func (r *ingredientRepository) Update(ctx context.Context, ing *domain.Ingredient) error {
	if ing == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	UPDATE ingredients
	SET name = $2,
		type = $3,
		ownership_status = $4,
		owner_id = $5,
		value_category = $6,
		contribution_weight = $7,
		credit_multiplier = $8,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1 AND version = $9
	RETURNING version, updated_at
	`
	q := conn(ctx, r.pool)
	err := q.QueryRow(ctx, query,
		ing.ID,
		ing.Name,
		ing.Type,
		ing.OwnershipStatus,
		ing.OwnerID,
		ing.Classification.ValueCategory,
		ing.Classification.ContributionWeight,
		ing.Classification.CreditMultiplier,
		ing.Version,
	).Scan(&ing.Version, &ing.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return versionMiss(ctx, q, "ingredients", ing.ID, domain.ErrIngredientNotFound)
	}
	return err
}

func scanIngredient(row rowScanner) (*domain.Ingredient, error) {
	var ing domain.Ingredient
	if err := row.Scan(
		&ing.ID,
		&ing.DealID,
		&ing.Name,
		&ing.Type,
		&ing.OwnershipStatus,
		&ing.OwnerID,
		&ing.Classification.ValueCategory,
		&ing.Classification.ContributionWeight,
		&ing.Classification.CreditMultiplier,
		&ing.CreatedBy,
		&ing.Version,
		&ing.CreatedAt,
		&ing.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIngredientNotFound
		}
		return nil, err
	}
	return &ing, nil
}
