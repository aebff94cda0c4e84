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

type creditRepository struct {
	pool *pgxpool.Pool
}

// NewCreditRepository returns a Postgres-backed implementation of CreditRepository.
func NewCreditRepository(pool *pgxpool.Pool) repository.CreditRepository {
	return &creditRepository{pool: pool}
}

const creditColumns = `id, deal_id, participant_id, tier, amount, classification, description,
	recorded_at, verified_at, verified_by`

func (r *creditRepository) Get(ctx context.Context, id string) (*domain.Credit, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+creditColumns+` FROM credits WHERE id = $1`, id)
	return scanCredit(row)
}

func (r *creditRepository) List(ctx context.Context, filter repository.CreditFilter) ([]domain.Credit, error) {
	const query = `
	SELECT ` + creditColumns + `
	FROM credits
	WHERE ($1 = '' OR deal_id = $1)
	  AND ($2 = '' OR participant_id = $2)
	  AND ($3 = '' OR tier = $3)
	ORDER BY recorded_at ASC
	`
	rows, err := conn(ctx, r.pool).Query(ctx, query, filter.DealID, filter.ParticipantID, filter.Tier)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var credits []domain.Credit
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		credits = append(credits, *c)
	}
	return credits, rows.Err()
}

func (r *creditRepository) Create(ctx context.Context, c *domain.Credit) error {
	if c == nil {
		return domain.ErrInvalidPayload
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO credits (id, deal_id, participant_id, tier, amount, classification, description,
		recorded_at, verified_at, verified_by)
	VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()), $9, $10)
	RETURNING recorded_at
	`
	return conn(ctx, r.pool).QueryRow(ctx, query,
		c.ID,
		c.DealID,
		c.ParticipantID,
		c.Tier,
		c.Amount,
		c.Classification,
		c.Description,
		nullTime(c.RecordedAt),
		nullTimePtr(c.VerifiedAt),
		c.VerifiedBy,
	).Scan(&c.RecordedAt)
}

func (r *creditRepository) Update(ctx context.Context, c *domain.Credit) error {
	if c == nil {
		return domain.ErrInvalidPayload
	}
	const query = `
	UPDATE credits
	SET classification = $2,
		description = $3,
		verified_at = $4,
		verified_by = $5
	WHERE id = $1
	`
	tag, err := conn(ctx, r.pool).Exec(ctx, query,
		c.ID,
		c.Classification,
		c.Description,
		nullTimePtr(c.VerifiedAt),
		c.VerifiedBy,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCreditNotFound
	}
	return nil
}

func scanCredit(row rowScanner) (*domain.Credit, error) {
	var c domain.Credit
	if err := row.Scan(
		&c.ID,
		&c.DealID,
		&c.ParticipantID,
		&c.Tier,
		&c.Amount,
		&c.Classification,
		&c.Description,
		&c.RecordedAt,
		&c.VerifiedAt,
		&c.VerifiedBy,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCreditNotFound
		}
		return nil, err
	}
	return &c, nil
}
