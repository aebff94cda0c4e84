package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

type usageRepository struct {
	pool *pgxpool.Pool
}

// NewUsageRepository returns a Postgres-backed implementation of UsageRepository.
func NewUsageRepository(pool *pgxpool.Pool) repository.UsageRepository {
	return &usageRepository{pool: pool}
}

func (r *usageRepository) Append(ctx context.Context, event domain.UsageEvent) (bool, error) {
	const insert = `
	INSERT INTO usage_events (id, deal_id, ingredient_id, usage_type, quantity, cost_incurred, recorded_at)
	VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
	ON CONFLICT (id) DO NOTHING
	`
	const fold = `
	INSERT INTO usage_summaries (deal_id, ingredient_id, usage_type, total_quantity, total_cost, event_count, last_recorded_at)
	VALUES ($1, $2, $3, $4, $5, 1, COALESCE($6, NOW()))
	ON CONFLICT (deal_id, ingredient_id, usage_type) DO UPDATE
	SET total_quantity = usage_summaries.total_quantity + EXCLUDED.total_quantity,
		total_cost = usage_summaries.total_cost + EXCLUDED.total_cost,
		event_count = usage_summaries.event_count + 1,
		last_recorded_at = GREATEST(usage_summaries.last_recorded_at, EXCLUDED.last_recorded_at)
	`

	inserted := false
	err := inTx(ctx, r.pool, func(q querier) error {
		tag, err := q.Exec(ctx, insert,
			event.ID,
			event.DealID,
			event.IngredientID,
			event.UsageType,
			event.Quantity,
			event.CostIncurred,
			nullTime(event.RecordedAt),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		inserted = true
		_, err = q.Exec(ctx, fold,
			event.DealID,
			event.IngredientID,
			event.UsageType,
			event.Quantity,
			event.CostIncurred,
			nullTime(event.RecordedAt),
		)
		return err
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (r *usageRepository) List(ctx context.Context, filter repository.UsageListFilter) ([]domain.UsageEvent, error) {
	const query = `
	SELECT id, deal_id, ingredient_id, usage_type, quantity, cost_incurred, recorded_at
	FROM usage_events
	WHERE ($1 = '' OR deal_id = $1)
	  AND ($2 = '' OR ingredient_id = $2)
	ORDER BY recorded_at DESC
	LIMIT $3 OFFSET $4
	`
	rows, err := conn(ctx, r.pool).Query(ctx, query, filter.DealID, filter.IngredientID, clampLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.UsageEvent
	for rows.Next() {
		var e domain.UsageEvent
		if err := rows.Scan(
			&e.ID,
			&e.DealID,
			&e.IngredientID,
			&e.UsageType,
			&e.Quantity,
			&e.CostIncurred,
			&e.RecordedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *usageRepository) Summaries(ctx context.Context, filter domain.UsageFilter) ([]domain.UsageSummary, error) {
	const query = `
	SELECT deal_id, ingredient_id, usage_type, total_quantity, total_cost, event_count, last_recorded_at
	FROM usage_summaries
	WHERE ($1 = '' OR deal_id = $1)
	  AND ($2 = '' OR ingredient_id = $2)
	  AND ($3 = '' OR usage_type = $3)
	ORDER BY deal_id, ingredient_id, usage_type
	`
	rows, err := conn(ctx, r.pool).Query(ctx, query, filter.DealID, filter.IngredientID, filter.UsageType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []domain.UsageSummary
	for rows.Next() {
		var s domain.UsageSummary
		if err := rows.Scan(
			&s.DealID,
			&s.IngredientID,
			&s.UsageType,
			&s.TotalQuantity,
			&s.TotalCost,
			&s.EventCount,
			&s.LastRecordedAt,
		); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
