package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

type ruleRepository struct {
	pool *pgxpool.Pool
}

// NewRuleRepository returns a Postgres-backed implementation of RuleRepository.
func NewRuleRepository(pool *pgxpool.Pool) repository.RuleRepository {
	return &ruleRepository{pool: pool}
}

const ruleColumns = `id, deal_id, formulation_id, participant_id, credit_type, payout_percentage,
	min_payout, max_payout, is_active, created_at, updated_at`

func (r *ruleRepository) Get(ctx context.Context, id string) (*domain.AttributionRule, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+ruleColumns+` FROM attribution_rules WHERE id = $1`, id)
	return scanRule(row)
}

func (r *ruleRepository) List(ctx context.Context, filter repository.RuleFilter) ([]domain.AttributionRule, error) {
	const query = `
	SELECT ` + ruleColumns + `
	FROM attribution_rules
	WHERE ($1 = '' OR deal_id = $1)
	  AND ($2 = '' OR formulation_id = $2)
	  AND ($3 = '' OR participant_id = $3)
	  AND (NOT $4 OR is_active)
	ORDER BY created_at ASC, seq ASC
	`
	rows, err := conn(ctx, r.pool).Query(ctx, query, filter.DealID, filter.FormulationID, filter.ParticipantID, filter.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.AttributionRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

func (r *ruleRepository) Create(ctx context.Context, rule *domain.AttributionRule) error {
	if rule == nil {
		return domain.ErrInvalidPayload
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO attribution_rules (id, deal_id, formulation_id, participant_id, credit_type,
		payout_percentage, min_payout, max_payout, is_active)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING created_at, updated_at
	`
	return conn(ctx, r.pool).QueryRow(ctx, query,
		rule.ID,
		rule.DealID,
		rule.FormulationID,
		rule.ParticipantID,
		rule.CreditType,
		rule.PayoutPercentage,
		nullDecimal(rule.MinPayout),
		nullDecimal(rule.MaxPayout),
		rule.IsActive,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
}

func (r *ruleRepository) Update(ctx context.Context, rule *domain.AttributionRule) error {
	if rule == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	UPDATE attribution_rules
	SET participant_id = $2,
		credit_type = $3,
		payout_percentage = $4,
		min_payout = $5,
		max_payout = $6,
		is_active = $7,
		updated_at = NOW()
	WHERE id = $1
	RETURNING updated_at
	`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		rule.ID,
		rule.ParticipantID,
		rule.CreditType,
		rule.PayoutPercentage,
		nullDecimal(rule.MinPayout),
		nullDecimal(rule.MaxPayout),
		rule.IsActive,
	).Scan(&rule.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrRuleNotFound
	}
	return err
}

func scanRule(row rowScanner) (*domain.AttributionRule, error) {
	var (
		rule     domain.AttributionRule
		minPayout, maxPayout decimal.NullDecimal
	)
	if err := row.Scan(
		&rule.ID,
		&rule.DealID,
		&rule.FormulationID,
		&rule.ParticipantID,
		&rule.CreditType,
		&rule.PayoutPercentage,
		&minPayout,
		&maxPayout,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, err
	}
	rule.MinPayout = decimalPtr(minPayout)
	rule.MaxPayout = decimalPtr(maxPayout)
	return &rule, nil
}
