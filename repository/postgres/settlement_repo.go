package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

type contractRepository struct {
	pool *pgxpool.Pool
}

// NewContractRepository returns a Postgres-backed implementation of ContractRepository.
func NewContractRepository(pool *pgxpool.Pool) repository.ContractRepository {
	return &contractRepository{pool: pool}
}

const contractColumns = `id, deal_id, name, trigger_type, trigger_conditions, distribution_logic, currency,
	is_active, total_distributed, last_triggered_at, version, created_at, updated_at`

func (r *contractRepository) Get(ctx context.Context, id string) (*domain.SettlementContract, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+contractColumns+` FROM settlement_contracts WHERE id = $1`, id)
	return scanContract(row)
}

func (r *contractRepository) List(ctx context.Context, filter repository.ContractFilter) ([]domain.SettlementContract, error) {
	const query = `
	SELECT ` + contractColumns + `
	FROM settlement_contracts
	WHERE ($1 = '' OR deal_id = $1)
	  AND ($2 = '' OR trigger_type = $2)
	  AND (NOT $3 OR is_active)
	ORDER BY created_at ASC
	`
	rows, err := conn(ctx, r.pool).Query(ctx, query, filter.DealID, filter.TriggerType, filter.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []domain.SettlementContract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, *c)
	}
	return contracts, rows.Err()
}

func (r *contractRepository) Create(ctx context.Context, c *domain.SettlementContract) error {
	if c == nil {
		return domain.ErrInvalidPayload
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Version == 0 {
		c.Version = 1
	}
	conditions, err := json.Marshal(c.TriggerConditions)
	if err != nil {
		return err
	}

	const query = `
	INSERT INTO settlement_contracts (id, deal_id, name, trigger_type, trigger_conditions, distribution_logic,
		currency, is_active, total_distributed, last_triggered_at, version)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING created_at, updated_at
	`
	return conn(ctx, r.pool).QueryRow(ctx, query,
		c.ID,
		c.DealID,
		c.Name,
		c.TriggerType,
		conditions,
		c.DistributionLogic,
		c.Currency,
		c.IsActive,
		c.TotalDistributed,
		nullTimePtr(c.LastTriggeredAt),
		c.Version,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *contractRepository) Update(ctx context.Context, c *domain.SettlementContract) error {
	if c == nil {
		return domain.ErrInvalidPayload
	}
	conditions, err := json.Marshal(c.TriggerConditions)
	if err != nil {
		return err
	}

	const query = `
	UPDATE settlement_contracts
	SET name = $2,
		trigger_conditions = $3,
		distribution_logic = $4,
		currency = $5,
		is_active = $6,
		total_distributed = $7,
		last_triggered_at = $8,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1 AND version = $9
	RETURNING version, updated_at
	`
	q := conn(ctx, r.pool)
	err = q.QueryRow(ctx, query,
		c.ID,
		c.Name,
		conditions,
		c.DistributionLogic,
		c.Currency,
		c.IsActive,
		c.TotalDistributed,
		nullTimePtr(c.LastTriggeredAt),
		c.Version,
	).Scan(&c.Version, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return versionMiss(ctx, q, "settlement_contracts", c.ID, domain.ErrContractNotFound)
	}
	return err
}

func scanContract(row rowScanner) (*domain.SettlementContract, error) {
	var (
		c          domain.SettlementContract
		conditions []byte
	)
	if err := row.Scan(
		&c.ID,
		&c.DealID,
		&c.Name,
		&c.TriggerType,
		&conditions,
		&c.DistributionLogic,
		&c.Currency,
		&c.IsActive,
		&c.TotalDistributed,
		&c.LastTriggeredAt,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrContractNotFound
		}
		return nil, err
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &c.TriggerConditions); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

type executionRepository struct {
	pool *pgxpool.Pool
}

// NewExecutionRepository returns a Postgres-backed implementation of ExecutionRepository.
func NewExecutionRepository(pool *pgxpool.Pool) repository.ExecutionRepository {
	return &executionRepository{pool: pool}
}

const executionColumns = `id, contract_id, deal_id, trigger_event, total_amount, currency, status,
	failure_reason, executed_at, created_at, updated_at`

func (r *executionRepository) Get(ctx context.Context, id string) (*domain.SettlementExecution, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+executionColumns+` FROM settlement_executions WHERE id = $1`, id)
	return scanExecution(row)
}

func (r *executionRepository) List(ctx context.Context, filter repository.ExecutionFilter) ([]domain.SettlementExecution, error) {
	const query = `
	SELECT ` + executionColumns + `
	FROM settlement_executions
	WHERE ($1 = '' OR deal_id = $1)
	  AND ($2 = '' OR contract_id = $2)
	  AND ($3 = '' OR status = $3)
	ORDER BY created_at DESC
	LIMIT $4 OFFSET $5
	`
	rows, err := conn(ctx, r.pool).Query(ctx, query, filter.DealID, filter.ContractID, filter.Status, clampLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []domain.SettlementExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *e)
	}
	return executions, rows.Err()
}

func (r *executionRepository) Create(ctx context.Context, e *domain.SettlementExecution) error {
	if e == nil {
		return domain.ErrInvalidPayload
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	trigger, err := marshalJSON(e.TriggerEvent)
	if err != nil {
		return err
	}

	const query = `
	INSERT INTO settlement_executions (id, contract_id, deal_id, trigger_event, total_amount, currency,
		status, failure_reason, executed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING created_at, updated_at
	`
	return conn(ctx, r.pool).QueryRow(ctx, query,
		e.ID,
		e.ContractID,
		e.DealID,
		trigger,
		e.TotalAmount,
		e.Currency,
		e.Status,
		e.FailureReason,
		nullTimePtr(e.ExecutedAt),
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *executionRepository) Update(ctx context.Context, e *domain.SettlementExecution) error {
	if e == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	UPDATE settlement_executions
	SET total_amount = $2,
		status = $3,
		failure_reason = $4,
		executed_at = $5,
		updated_at = NOW()
	WHERE id = $1
	RETURNING updated_at
	`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		e.ID,
		e.TotalAmount,
		e.Status,
		e.FailureReason,
		nullTimePtr(e.ExecutedAt),
	).Scan(&e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrExecutionNotFound
	}
	return err
}

func scanExecution(row rowScanner) (*domain.SettlementExecution, error) {
	var (
		e       domain.SettlementExecution
		trigger []byte
	)
	if err := row.Scan(
		&e.ID,
		&e.ContractID,
		&e.DealID,
		&trigger,
		&e.TotalAmount,
		&e.Currency,
		&e.Status,
		&e.FailureReason,
		&e.ExecutedAt,
		&e.CreatedAt,
		&e.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrExecutionNotFound
		}
		return nil, err
	}
	e.TriggerEvent = append(json.RawMessage(nil), trigger...)
	return &e, nil
}

type payoutRepository struct {
	pool *pgxpool.Pool
}

// NewPayoutRepository returns a Postgres-backed implementation of PayoutRepository.
func NewPayoutRepository(pool *pgxpool.Pool) repository.PayoutRepository {
	return &payoutRepository{pool: pool}
}

const payoutColumns = `id, execution_id, participant_id, amount, currency, attribution_percentage,
	min_applied, max_applied, status, paid_at, payment_reference, created_at`

func (r *payoutRepository) Get(ctx context.Context, id string) (*domain.SettlementPayout, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+payoutColumns+` FROM settlement_payouts WHERE id = $1`, id)
	return scanPayout(row)
}

func (r *payoutRepository) ListByExecution(ctx context.Context, executionID string) ([]domain.SettlementPayout, error) {
	const query = `
	SELECT ` + payoutColumns + `
	FROM settlement_payouts
	WHERE execution_id = $1
	ORDER BY seq ASC
	`
	rows, err := conn(ctx, r.pool).Query(ctx, query, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []domain.SettlementPayout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, *p)
	}
	return payouts, rows.Err()
}

func (r *payoutRepository) Create(ctx context.Context, p *domain.SettlementPayout) error {
	if p == nil {
		return domain.ErrInvalidPayload
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO settlement_payouts (id, execution_id, participant_id, amount, currency, attribution_percentage,
		min_applied, max_applied, status, paid_at, payment_reference)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING created_at
	`
	return conn(ctx, r.pool).QueryRow(ctx, query,
		p.ID,
		p.ExecutionID,
		p.ParticipantID,
		p.Amount,
		p.Currency,
		p.AttributionPercentage,
		p.MinApplied,
		p.MaxApplied,
		p.Status,
		nullTimePtr(p.PaidAt),
		p.PaymentReference,
	).Scan(&p.CreatedAt)
}

func (r *payoutRepository) Update(ctx context.Context, p *domain.SettlementPayout) error {
	if p == nil {
		return domain.ErrInvalidPayload
	}
	const query = `
	UPDATE settlement_payouts
	SET status = $2,
		paid_at = $3,
		payment_reference = $4
	WHERE id = $1
	`
	tag, err := conn(ctx, r.pool).Exec(ctx, query, p.ID, p.Status, nullTimePtr(p.PaidAt), p.PaymentReference)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPayoutNotFound
	}
	return nil
}

func scanPayout(row rowScanner) (*domain.SettlementPayout, error) {
	var p domain.SettlementPayout
	if err := row.Scan(
		&p.ID,
		&p.ExecutionID,
		&p.ParticipantID,
		&p.Amount,
		&p.Currency,
		&p.AttributionPercentage,
		&p.MinApplied,
		&p.MaxApplied,
		&p.Status,
		&p.PaidAt,
		&p.PaymentReference,
		&p.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPayoutNotFound
		}
		return nil, err
	}
	return &p, nil
}
