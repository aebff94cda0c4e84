package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/pprofhandler"

	apiHandler "github.com/xQBCx/biz-dev-app-firebase-sub001/api/handler"
)

type Handlers struct {
	Deal        *apiHandler.DealHandler
	Ingredient  *apiHandler.IngredientHandler
	Formulation *apiHandler.FormulationHandler
	Rule        *apiHandler.RuleHandler
	Proposal    *apiHandler.ProposalHandler
	Ledger      *apiHandler.LedgerHandler
	Settlement  *apiHandler.SettlementHandler
	Health      *apiHandler.HealthHandler

	// Metrics is mounted at /metrics when set.
	Metrics fasthttp.RequestHandler
}

type Options struct {
	EnablePprof bool
}

func New(handlers Handlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler, opts Options) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)
	if handlers.Metrics != nil {
		r.GET("/metrics", handlers.Metrics)
	}
	if opts.EnablePprof {
		r.GET("/debug/pprof/{profile:*}", pprofhandler.PprofHandler)
	}

	api := r.Group("/api/v1")
	protected := func(method, path string, h fasthttp.RequestHandler) {
		api.Handle(method, path, authMiddleware(h))
	}

	// Deals
	protected(fasthttp.MethodPost, "/deals", handlers.Deal.Create)
	protected(fasthttp.MethodGet, "/deals", handlers.Deal.List)
	protected(fasthttp.MethodGet, "/deals/{id}", handlers.Deal.Get)
	protected(fasthttp.MethodPost, "/deals/{id}/participants", handlers.Deal.AddParticipant)
	protected(fasthttp.MethodGet, "/deals/{id}/participants", handlers.Deal.Participants)

	// Ingredients
	protected(fasthttp.MethodPost, "/deals/{id}/ingredients", handlers.Ingredient.Register)
	protected(fasthttp.MethodGet, "/deals/{id}/ingredients", handlers.Ingredient.List)
	protected(fasthttp.MethodGet, "/ingredients/{id}", handlers.Ingredient.Get)
	protected(fasthttp.MethodPatch, "/ingredients/{id}", handlers.Ingredient.Update)
	protected(fasthttp.MethodGet, "/ingredients/{id}/lock", handlers.Ingredient.LockStatus)

	// Formulations
	protected(fasthttp.MethodPost, "/deals/{id}/formulations", handlers.Formulation.Create)
	protected(fasthttp.MethodGet, "/deals/{id}/formulations", handlers.Formulation.List)
	protected(fasthttp.MethodGet, "/deals/{id}/formulations/active", handlers.Formulation.GetActive)
	protected(fasthttp.MethodGet, "/formulations/{id}", handlers.Formulation.Get)
	protected(fasthttp.MethodGet, "/formulations/{id}/composition", handlers.Formulation.Composition)
	protected(fasthttp.MethodPost, "/formulations/{id}/ingredients", handlers.Formulation.AddIngredient)
	protected(fasthttp.MethodPatch, "/formulations/{id}/ingredients/{ingredient_id}", handlers.Formulation.UpdateIngredient)
	protected(fasthttp.MethodDelete, "/formulations/{id}/ingredients/{ingredient_id}", handlers.Formulation.RemoveIngredient)
	protected(fasthttp.MethodPost, "/formulations/{id}/submit", handlers.Formulation.Submit)
	protected(fasthttp.MethodPost, "/formulations/{id}/activate", handlers.Formulation.Activate)
	protected(fasthttp.MethodPost, "/formulations/{id}/archive", handlers.Formulation.Archive)

	// Attribution rules
	protected(fasthttp.MethodPost, "/formulations/{id}/rules", handlers.Rule.Create)
	protected(fasthttp.MethodGet, "/formulations/{id}/rules", handlers.Rule.List)
	protected(fasthttp.MethodGet, "/formulations/{id}/allocation", handlers.Rule.Allocation)
	protected(fasthttp.MethodGet, "/rules/{id}", handlers.Rule.Get)
	protected(fasthttp.MethodPatch, "/rules/{id}", handlers.Rule.Update)
	protected(fasthttp.MethodDelete, "/rules/{id}", handlers.Rule.Deactivate)

	// Proposals
	protected(fasthttp.MethodPost, "/deals/{id}/proposals", handlers.Proposal.Create)
	protected(fasthttp.MethodGet, "/deals/{id}/proposals", handlers.Proposal.List)
	protected(fasthttp.MethodGet, "/proposals/{id}", handlers.Proposal.Get)
	protected(fasthttp.MethodPost, "/proposals/{id}/votes", handlers.Proposal.Vote)

	// Usage and credits
	protected(fasthttp.MethodPost, "/deals/{id}/usage", handlers.Ledger.RecordUsage)
	protected(fasthttp.MethodGet, "/deals/{id}/usage", handlers.Ledger.ListUsage)
	protected(fasthttp.MethodGet, "/deals/{id}/usage/summary", handlers.Ledger.Summaries)
	protected(fasthttp.MethodPost, "/deals/{id}/credits", handlers.Ledger.AddCredit)
	protected(fasthttp.MethodGet, "/deals/{id}/credits", handlers.Ledger.ListCredits)
	protected(fasthttp.MethodGet, "/deals/{id}/credits/summary", handlers.Ledger.CreditSummary)
	protected(fasthttp.MethodPost, "/credits/{id}/verify", handlers.Ledger.VerifyCredit)

	// Settlement
	protected(fasthttp.MethodPost, "/deals/{id}/contracts", handlers.Settlement.CreateContract)
	protected(fasthttp.MethodGet, "/deals/{id}/contracts", handlers.Settlement.ListContracts)
	protected(fasthttp.MethodPost, "/deals/{id}/triggers", handlers.Settlement.Trigger)
	protected(fasthttp.MethodGet, "/deals/{id}/executions", handlers.Settlement.ListExecutions)
	protected(fasthttp.MethodGet, "/contracts/{id}", handlers.Settlement.GetContract)
	protected(fasthttp.MethodDelete, "/contracts/{id}", handlers.Settlement.DeactivateContract)
	protected(fasthttp.MethodPost, "/contracts/{id}/execute", handlers.Settlement.Execute)
	protected(fasthttp.MethodGet, "/executions/{id}", handlers.Settlement.GetExecution)
	protected(fasthttp.MethodGet, "/executions/{id}/payouts", handlers.Settlement.ListPayouts)
	protected(fasthttp.MethodPost, "/payouts/{id}/paid", handlers.Settlement.MarkPaid)

	return r
}
