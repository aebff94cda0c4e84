package repository

// Registry bundles the repositories of one storage driver.
type Registry struct {
	Deals        DealRepository
	Ingredients  IngredientRepository
	Formulations FormulationRepository
	Rules        RuleRepository
	Proposals    ProposalRepository
	Usage        UsageRepository
	Credits      CreditRepository
	Contracts    ContractRepository
	Executions   ExecutionRepository
	Payouts      PayoutRepository
	Events       EventRepository
	Tx           Transactor
}
