package repository

import (
	"context"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

type ContractFilter struct {
	DealID      string
	TriggerType string
	ActiveOnly  bool
}

type ContractRepository interface {
	Get(ctx context.Context, id string) (*domain.SettlementContract, error)
	List(ctx context.Context, filter ContractFilter) ([]domain.SettlementContract, error)
	Create(ctx context.Context, contract *domain.SettlementContract) error
	Update(ctx context.Context, contract *domain.SettlementContract) error
}

type ExecutionFilter struct {
	DealID     string
	ContractID string
	Status     string
	Limit      int
	Offset     int
}

type ExecutionRepository interface {
	Get(ctx context.Context, id string) (*domain.SettlementExecution, error)
	List(ctx context.Context, filter ExecutionFilter) ([]domain.SettlementExecution, error)
	Create(ctx context.Context, execution *domain.SettlementExecution) error
	Update(ctx context.Context, execution *domain.SettlementExecution) error
}

type PayoutRepository interface {
	Get(ctx context.Context, id string) (*domain.SettlementPayout, error)
	ListByExecution(ctx context.Context, executionID string) ([]domain.SettlementPayout, error)
	Create(ctx context.Context, payout *domain.SettlementPayout) error
	Update(ctx context.Context, payout *domain.SettlementPayout) error
}
