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

type formulationRepository struct {
	pool *pgxpool.Pool
}

// NewFormulationRepository returns a Postgres-backed implementation of FormulationRepository.
func NewFormulationRepository(pool *pgxpool.Pool) repository.FormulationRepository {
	return &formulationRepository{pool: pool}
}

const formulationColumns = `id, deal_id, name, description, version, status, activated_at, activated_by,
	archived_at, created_at, updated_at`

func (r *formulationRepository) Get(ctx context.Context, id string) (*domain.Formulation, error) {
	q := conn(ctx, r.pool)
	f, err := scanFormulation(q.QueryRow(ctx, `SELECT `+formulationColumns+` FROM formulations WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadIngredients(ctx, q, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *formulationRepository) GetActive(ctx context.Context, dealID string) (*domain.Formulation, error) {
	q := conn(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+formulationColumns+` FROM formulations WHERE deal_id = $1 AND status = 'active'`, dealID)
	f, err := scanFormulation(row)
	if err != nil {
		if errors.Is(err, domain.ErrFormulationNotFound) {
			return nil, domain.ErrNoActiveFormulation
		}
		return nil, err
	}
	if err := r.loadIngredients(ctx, q, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *formulationRepository) List(ctx context.Context, filter repository.FormulationFilter) ([]domain.Formulation, error) {
	const query = `
	SELECT ` + formulationColumns + `
	FROM formulations
	WHERE ($1 = '' OR deal_id = $1)
	  AND ($2 = '' OR status = $2)
	ORDER BY created_at DESC
	LIMIT $3 OFFSET $4
	`
	q := conn(ctx, r.pool)
	rows, err := q.Query(ctx, query, filter.DealID, filter.Status, clampLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}

	var out []domain.Formulation
	for rows.Next() {
		f, err := scanFormulation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if err := r.loadIngredients(ctx, q, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *formulationRepository) Create(ctx context.Context, f *domain.Formulation) error {
	if f == nil {
		return domain.ErrInvalidPayload
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Version == 0 {
		f.Version = 1
	}

	const query = `
	INSERT INTO formulations (id, deal_id, name, description, version, status, activated_at, activated_by, archived_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING created_at, updated_at
	`
	return inTx(ctx, r.pool, func(q querier) error {
		if err := q.QueryRow(ctx, query,
			f.ID,
			f.DealID,
			f.Name,
			f.Description,
			f.Version,
			f.Status,
			nullTimePtr(f.ActivatedAt),
			f.ActivatedBy,
			nullTimePtr(f.ArchivedAt),
		).Scan(&f.CreatedAt, &f.UpdatedAt); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicate
			}
			return err
		}
		return replaceEdges(ctx, q, f)
	})
}

func (r *formulationRepository) Update(ctx context.Context, f *domain.Formulation) error {
	if f == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	UPDATE formulations
	SET name = $2,
		description = $3,
		status = $4,
		activated_at = $5,
		activated_by = $6,
		archived_at = $7,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1 AND version = $8
	RETURNING version, updated_at
	`
	return inTx(ctx, r.pool, func(q querier) error {
		err := q.QueryRow(ctx, query,
			f.ID,
			f.Name,
			f.Description,
			f.Status,
			nullTimePtr(f.ActivatedAt),
			f.ActivatedBy,
			nullTimePtr(f.ArchivedAt),
			f.Version,
		).Scan(&f.Version, &f.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return versionMiss(ctx, q, "formulations", f.ID, domain.ErrFormulationNotFound)
		}
		if err != nil {
			return err
		}
		return replaceEdges(ctx, q, f)
	})
}

func replaceEdges(ctx context.Context, q querier, f *domain.Formulation) error {
	if _, err := q.Exec(ctx, `DELETE FROM formulation_ingredients WHERE formulation_id = $1`, f.ID); err != nil {
		return err
	}

	const insert = `
	INSERT INTO formulation_ingredients (formulation_id, ingredient_id, position, contributor_id,
		ownership_percent, value_weight, credit_multiplier)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i := range f.Ingredients {
		fi := &f.Ingredients[i]
		fi.FormulationID = f.ID
		if _, err := q.Exec(ctx, insert,
			f.ID,
			fi.IngredientID,
			i,
			fi.ContributorID,
			fi.OwnershipPercent,
			fi.ValueWeight,
			fi.CreditMultiplier,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *formulationRepository) loadIngredients(ctx context.Context, q querier, f *domain.Formulation) error {
	const query = `
	SELECT formulation_id, ingredient_id, contributor_id, ownership_percent, value_weight, credit_multiplier
	FROM formulation_ingredients
	WHERE formulation_id = $1
	ORDER BY position ASC
	`
	rows, err := q.Query(ctx, query, f.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	f.Ingredients = f.Ingredients[:0]
	for rows.Next() {
		var fi domain.FormulationIngredient
		if err := rows.Scan(
			&fi.FormulationID,
			&fi.IngredientID,
			&fi.ContributorID,
			&fi.OwnershipPercent,
			&fi.ValueWeight,
			&fi.CreditMultiplier,
		); err != nil {
			return err
		}
		f.Ingredients = append(f.Ingredients, fi)
	}
	return rows.Err()
}

func scanFormulation(row rowScanner) (*domain.Formulation, error) {
	var f domain.Formulation
	if err := row.Scan(
		&f.ID,
		&f.DealID,
		&f.Name,
		&f.Description,
		&f.Version,
		&f.Status,
		&f.ActivatedAt,
		&f.ActivatedBy,
		&f.ArchivedAt,
		&f.CreatedAt,
		&f.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFormulationNotFound
		}
		return nil, err
	}
	return &f, nil
}
