package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

type eventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a Postgres-backed event outbox.
func NewEventRepository(pool *pgxpool.Pool) repository.EventRepository {
	return &eventRepository{pool: pool}
}

func (r *eventRepository) Append(ctx context.Context, event domain.Event) error {
	const query = `
	INSERT INTO domain_events (id, aggregate_id, aggregate_kind, name, version, payload, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))
	`

	payload, err := marshalJSON(event.Payload)
	if err != nil {
		return err
	}

	_, err = conn(ctx, r.pool).Exec(ctx, query,
		event.ID,
		event.AggregateID,
		event.AggregateKind,
		event.Name,
		event.Version,
		payload,
		marshalMap(event.Metadata),
		nullTime(event.CreatedAt),
	)
	return err
}

func (r *eventRepository) List(ctx context.Context, filter repository.EventFilter) ([]domain.Event, error) {
	const query = `
	SELECT id, aggregate_id, aggregate_kind, name, version, payload, metadata, created_at
	FROM domain_events
	WHERE ($1 = '' OR aggregate_id = $1)
	  AND ($2 = '' OR name = $2)
	ORDER BY created_at ASC, seq ASC
	LIMIT $3 OFFSET $4
	`
	rows, err := conn(ctx, r.pool).Query(ctx, query, filter.AggregateID, filter.Name, clampLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			e        domain.Event
			payload  []byte
			metadata []byte
		)
		if err := rows.Scan(
			&e.ID,
			&e.AggregateID,
			&e.AggregateKind,
			&e.Name,
			&e.Version,
			&payload,
			&metadata,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.Payload = append(json.RawMessage(nil), payload...)
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &e.Metadata)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
