package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
)

// NewRepositories wires every Postgres repository to pool.
func NewRepositories(pool *pgxpool.Pool, logger *zap.Logger) repository.Registry {
	return repository.Registry{
		Deals:        NewDealRepository(pool),
		Ingredients:  NewIngredientRepository(pool),
		Formulations: NewFormulationRepository(pool),
		Rules:        NewRuleRepository(pool),
		Proposals:    NewProposalRepository(pool),
		Usage:        NewUsageRepository(pool),
		Credits:      NewCreditRepository(pool),
		Contracts:    NewContractRepository(pool),
		Executions:   NewExecutionRepository(pool),
		Payouts:      NewPayoutRepository(pool),
		Events:       NewEventRepository(pool),
		Tx:           NewTransactor(pool, logger),
	}
}
