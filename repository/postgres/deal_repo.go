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

type dealRepository struct {
	pool *pgxpool.Pool
}

// NewDealRepository returns a Postgres-backed implementation of DealRepository.
func NewDealRepository(pool *pgxpool.Pool) repository.DealRepository {
	return &dealRepository{pool: pool}
}

const dealColumns = `id, name, currency, participants, version, created_at, updated_at`

func (r *dealRepository) Get(ctx context.Context, id string) (*domain.Deal, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1`, id)
	return scanDeal(row)
}

func (r *dealRepository) List(ctx context.Context, filter repository.DealFilter) ([]domain.Deal, error) {
	const query = `
	SELECT ` + dealColumns + `
	FROM deals
	WHERE ($1 = '' OR $1 = ANY(participants))
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3
	`
	rows, err := conn(ctx, r.pool).Query(ctx, query, filter.ParticipantID, clampLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []domain.Deal
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, *deal)
	}
	return deals, rows.Err()
}

func (r *dealRepository) Create(ctx context.Context, deal *domain.Deal) error {
	if deal == nil {
		return domain.ErrInvalidPayload
	}
	if deal.ID == "" {
		deal.ID = uuid.NewString()
	}
	if deal.Version == 0 {
		deal.Version = 1
	}

	const query = `
	INSERT INTO deals (id, name, currency, participants, version)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING created_at, updated_at
	`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		deal.ID,
		deal.Name,
		deal.Currency,
		deal.Participants,
		deal.Version,
	).Scan(&deal.CreatedAt, &deal.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	return err
}

func (r *dealRepository) Update(ctx context.Context, deal *domain.Deal) error {
	if deal == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	UPDATE deals
	SET name = $2,
		currency = $3,
		participants = $4,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1 AND version = $5
	RETURNING version, updated_at
	`
	q := conn(ctx, r.pool)
	err := q.QueryRow(ctx, query,
		deal.ID,
		deal.Name,
		deal.Currency,
		deal.Participants,
		deal.Version,
	).Scan(&deal.Version, &deal.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return versionMiss(ctx, q, "deals", deal.ID, domain.ErrDealNotFound)
	}
	return err
}

func scanDeal(row rowScanner) (*domain.Deal, error) {
	var deal domain.Deal
	if err := row.Scan(
		&deal.ID,
		&deal.Name,
		&deal.Currency,
		&deal.Participants,
		&deal.Version,
		&deal.CreatedAt,
		&deal.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDealNotFound
		}
		return nil, err
	}
	return &deal, nil
}
