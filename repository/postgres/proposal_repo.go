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

type proposalRepository struct {
	pool *pgxpool.Pool
}

// NewProposalRepository returns a Postgres-backed implementation of ProposalRepository.
func NewProposalRepository(pool *pgxpool.Pool) repository.ProposalRepository {
	return &proposalRepository{pool: pool}
}

const proposalColumns = `id, deal_id, formulation_id, target, ingredient_id, rule_id, change_type,
	proposed_changes, justification, proposer_id, status, approvals, version, created_at, resolved_at`

func (r *proposalRepository) Get(ctx context.Context, id string) (*domain.ChangeProposal, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+proposalColumns+` FROM change_proposals WHERE id = $1`, id)
	return scanProposal(row)
}

func (r *proposalRepository) List(ctx context.Context, filter repository.ProposalFilter) ([]domain.ChangeProposal, error) {
	const query = `
	SELECT ` + proposalColumns + `
	FROM change_proposals
	WHERE ($1 = '' OR deal_id = $1)
	  AND ($2 = '' OR formulation_id = $2)
	  AND ($3 = '' OR status = $3)
	ORDER BY created_at DESC
	LIMIT $4 OFFSET $5
	`
	rows, err := conn(ctx, r.pool).Query(ctx, query, filter.DealID, filter.FormulationID, filter.Status, clampLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proposals []domain.ChangeProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, *p)
	}
	return proposals, rows.Err()
}

func (r *proposalRepository) Create(ctx context.Context, p *domain.ChangeProposal) error {
	if p == nil {
		return domain.ErrInvalidPayload
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Version == 0 {
		p.Version = 1
	}

	changes, err := marshalJSON(p.ProposedChanges)
	if err != nil {
		return err
	}
	approvals, err := json.Marshal(p.Approvals)
	if err != nil {
		return err
	}

	const query = `
	INSERT INTO change_proposals (id, deal_id, formulation_id, target, ingredient_id, rule_id, change_type,
		proposed_changes, justification, proposer_id, status, approvals, version, created_at, resolved_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, COALESCE($14, NOW()), $15)
	RETURNING created_at
	`
	return conn(ctx, r.pool).QueryRow(ctx, query,
		p.ID,
		p.DealID,
		nullString(p.FormulationID),
		p.Target,
		p.IngredientID,
		p.RuleID,
		p.ChangeType,
		changes,
		p.Justification,
		p.ProposerID,
		p.Status,
		approvals,
		p.Version,
		nullTime(p.CreatedAt),
		nullTimePtr(p.ResolvedAt),
	).Scan(&p.CreatedAt)
}

func (r *proposalRepository) Update(ctx context.Context, p *domain.ChangeProposal) error {
	if p == nil {
		return domain.ErrInvalidPayload
	}

	approvals, err := json.Marshal(p.Approvals)
	if err != nil {
		return err
	}

	const query = `
	UPDATE change_proposals
	SET status = $2,
		approvals = $3,
		resolved_at = $4,
		ingredient_id = $6,
		rule_id = $7,
		version = version + 1
	WHERE id = $1 AND version = $5
	RETURNING version
	`
	q := conn(ctx, r.pool)
	err = q.QueryRow(ctx, query,
		p.ID,
		p.Status,
		approvals,
		nullTimePtr(p.ResolvedAt),
		p.Version,
		p.IngredientID,
		p.RuleID,
	).Scan(&p.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return versionMiss(ctx, q, "change_proposals", p.ID, domain.ErrProposalNotFound)
	}
	return err
}

func scanProposal(row rowScanner) (*domain.ChangeProposal, error) {
	var (
		p             domain.ChangeProposal
		formulationID *string
		changes       []byte
		approvals     []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.DealID,
		&formulationID,
		&p.Target,
		&p.IngredientID,
		&p.RuleID,
		&p.ChangeType,
		&changes,
		&p.Justification,
		&p.ProposerID,
		&p.Status,
		&approvals,
		&p.Version,
		&p.CreatedAt,
		&p.ResolvedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProposalNotFound
		}
		return nil, err
	}

	p.FormulationID = stringPtr(formulationID)
	p.ProposedChanges = append(json.RawMessage(nil), changes...)
	p.Approvals = domain.Approvals{}
	if len(approvals) > 0 {
		if err := json.Unmarshal(approvals, &p.Approvals); err != nil {
			return nil, err
		}
	}
	return &p, nil
}
