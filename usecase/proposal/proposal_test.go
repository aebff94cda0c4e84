package proposal_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/infrastructure/locker"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository/memory"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase"
	attributionUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/attribution"
	formulationUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/formulation"
	ingredientUC "github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/ingredient"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/proposal"
)

type resolvedCounter struct {
	usecase.NopMetrics
	mu       sync.Mutex
	resolved map[domain.ProposalStatus]int
}

func (c *resolvedCounter) ProposalResolved(status domain.ProposalStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved == nil {
		c.resolved = make(map[domain.ProposalStatus]int)
	}
	c.resolved[status]++
}

type fixture struct {
	repos       repository.Registry
	uc          *proposal.UseCase
	rules       *attributionUC.UseCase
	metrics     *resolvedCounter
	deal        *domain.Deal
	formulation *domain.Formulation
	ingredient  *domain.Ingredient
	rule        *domain.AttributionRule
}

// newFixture builds a deal with an active formulation holding one
// ingredient and one capped rule.
func newFixture(t *testing.T, opts proposal.Options, participants ...string) *fixture {
	t.Helper()
	return newLoggedFixture(t, zap.NewNop(), opts, participants...)
}

func newLoggedFixture(t *testing.T, logger *zap.Logger, opts proposal.Options, participants ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	repos := memory.NewRepositories(memory.NewStore())
	l := locker.NewLocal()
	emitter := usecase.NewEmitter(repos.Events, nil, zap.NewNop())

	d := &domain.Deal{Name: "Joint venture", Currency: "USD", Participants: participants}
	require.NoError(t, repos.Deals.Create(ctx, d))

	formulations := formulationUC.New(repos, l, emitter, formulationUC.Options{}, logger)
	ingredients := ingredientUC.New(repos, l, logger)
	rules := attributionUC.New(repos, l, logger)

	ing, err := ingredients.Register(ctx, ingredientUC.RegisterInput{DealID: d.ID, Name: "Dataset", OwnerID: participants[0]})
	require.NoError(t, err)
	f, err := formulations.Create(ctx, d.ID, "Blend", "")
	require.NoError(t, err)
	_, err = formulations.AddIngredient(ctx, f.ID, formulationUC.EdgeInput{
		IngredientID:     ing.ID,
		OwnershipPercent: decimal.NewFromInt(100),
		ValueWeight:      decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	ceiling := decimal.NewFromInt(100)
	rule, err := rules.CreateRule(ctx, attributionUC.RuleInput{
		FormulationID:    f.ID,
		ParticipantID:    participants[0],
		CreditType:       domain.CreditContribution,
		PayoutPercentage: decimal.NewFromInt(60),
		MaxPayout:        &ceiling,
	})
	require.NoError(t, err)
	_, _, err = formulations.SubmitForReview(ctx, f.ID)
	require.NoError(t, err)
	f, err = formulations.Activate(ctx, f.ID, participants[0])
	require.NoError(t, err)

	metrics := &resolvedCounter{}
	uc, err := proposal.New(repos, l, emitter, metrics, formulations, rules, opts, zap.NewNop())
	require.NoError(t, err)
	return &fixture{
		repos:       repos,
		uc:          uc,
		rules:       rules,
		metrics:     metrics,
		deal:        d,
		formulation: f,
		ingredient:  ing,
		rule:        rule,
	}
}

func (fx *fixture) renameProposal(t *testing.T, proposer, name string) *domain.ChangeProposal {
	t.Helper()
	changes, err := json.Marshal(map[string]string{"name": name})
	require.NoError(t, err)
	id := fx.ingredient.ID
	p, err := fx.uc.Create(context.Background(), proposal.CreateInput{
		DealID:          fx.deal.ID,
		FormulationID:   fx.formulation.ID,
		Target:          domain.TargetIngredient,
		IngredientID:    &id,
		ChangeType:      domain.ChangeModify,
		ProposedChanges: changes,
		ProposerID:      proposer,
	})
	require.NoError(t, err)
	return p
}

func (fx *fixture) ingredientName(t *testing.T) string {
	t.Helper()
	ing, err := fx.repos.Ingredients.Get(context.Background(), fx.ingredient.ID)
	require.NoError(t, err)
	return ing.Name
}

func TestCreateSnapshotsParticipants(t *testing.T) {
	fx := newFixture(t, proposal.Options{}, "alice", "bob", "carol")
	p := fx.renameProposal(t, "bob", "Curated dataset")

	assert.Equal(t, domain.ProposalPending, p.Status)
	assert.Equal(t, domain.Approvals{
		"alice": domain.VoteUnset,
		"bob":   domain.VoteApproved,
		"carol": domain.VoteUnset,
	}, p.Approvals)
	assert.Equal(t, "Dataset", fx.ingredientName(t))
}

func TestUnanimousApprovalAppliesToLockedFormulation(t *testing.T) {
	fx := newFixture(t, proposal.Options{}, "alice", "bob", "carol")
	ctx := context.Background()
	p := fx.renameProposal(t, "alice", "Curated dataset")

	p, err := fx.uc.Vote(ctx, p.ID, "bob", true)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalPending, p.Status)
	assert.Equal(t, "Dataset", fx.ingredientName(t))

	p, err = fx.uc.Vote(ctx, p.ID, "carol", true)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalApproved, p.Status)
	assert.NotNil(t, p.ResolvedAt)
	assert.Equal(t, "Curated dataset", fx.ingredientName(t))

	f, err := fx.repos.Formulations.Get(ctx, fx.formulation.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FormulationActive, f.Status)
	assert.Greater(t, f.Version, fx.formulation.Version, "applied change bumps the formulation version")

	_, err = fx.uc.Vote(ctx, p.ID, "carol", false)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConsensus), "resolved proposals refuse votes")
	assert.Equal(t, 1, fx.metrics.resolved[domain.ProposalApproved])
}

func TestSingleRejectionVetoes(t *testing.T) {
	fx := newFixture(t, proposal.Options{}, "alice", "bob", "carol")
	ctx := context.Background()
	p := fx.renameProposal(t, "alice", "Curated dataset")

	p, err := fx.uc.Vote(ctx, p.ID, "bob", false)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalRejected, p.Status)

	_, err = fx.uc.Vote(ctx, p.ID, "carol", true)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConsensus))
	assert.Equal(t, "Dataset", fx.ingredientName(t))
	assert.Equal(t, 1, fx.metrics.resolved[domain.ProposalRejected])

	events, err := fx.repos.Events.List(ctx, repository.EventFilter{AggregateID: p.ID, Name: domain.EventProposalResolved})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestVoteOrderDoesNotMatter(t *testing.T) {
	orders := [][]string{{"bob", "carol"}, {"carol", "bob"}}
	for _, order := range orders {
		fx := newFixture(t, proposal.Options{}, "alice", "bob", "carol")
		p := fx.renameProposal(t, "alice", "Curated dataset")
		var err error
		for _, voter := range order {
			p, err = fx.uc.Vote(context.Background(), p.ID, voter, true)
			require.NoError(t, err)
		}
		assert.Equal(t, domain.ProposalApproved, p.Status, "order %v", order)
		assert.Equal(t, "Curated dataset", fx.ingredientName(t))
	}
}

func TestConcurrentVotesResolveOnce(t *testing.T) {
	for i := 0; i < 25; i++ {
		fx := newFixture(t, proposal.Options{}, "alice", "bob", "carol")
		p := fx.renameProposal(t, "alice", "Curated dataset")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for n, vote := range []struct {
			voter   string
			approve bool
		}{{"bob", true}, {"carol", false}} {
			wg.Add(1)
			go func(n int, voter string, approve bool) {
				defer wg.Done()
				_, errs[n] = fx.uc.Vote(context.Background(), p.ID, voter, approve)
			}(n, vote.voter, vote.approve)
		}
		wg.Wait()

		require.NoError(t, errs[1], "the veto always lands")
		if errs[0] != nil {
			assert.True(t, domain.IsDomainError(errs[0], domain.ErrCodeConsensus), "late approval: %v", errs[0])
		}

		stored, err := fx.uc.Get(context.Background(), p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ProposalRejected, stored.Status)
		assert.Equal(t, "Dataset", fx.ingredientName(t), "rejected changes never apply")

		fx.metrics.mu.Lock()
		assert.Equal(t, map[domain.ProposalStatus]int{domain.ProposalRejected: 1}, fx.metrics.resolved)
		fx.metrics.mu.Unlock()
	}
}

func TestRevotePolicy(t *testing.T) {
	ctx := context.Background()

	strict := newFixture(t, proposal.Options{}, "alice", "bob", "carol")
	p := strict.renameProposal(t, "alice", "Curated dataset")
	_, err := strict.uc.Vote(ctx, p.ID, "bob", true)
	require.NoError(t, err)
	_, err = strict.uc.Vote(ctx, p.ID, "bob", false)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConsensus))

	lenient := newFixture(t, proposal.Options{AllowRevote: true}, "alice", "bob", "carol")
	p = lenient.renameProposal(t, "alice", "Curated dataset")
	_, err = lenient.uc.Vote(ctx, p.ID, "bob", true)
	require.NoError(t, err)
	p, err = lenient.uc.Vote(ctx, p.ID, "bob", false)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalRejected, p.Status)
}

func TestVoteEligibility(t *testing.T) {
	fx := newFixture(t, proposal.Options{}, "alice", "bob")
	ctx := context.Background()
	p := fx.renameProposal(t, "alice", "Curated dataset")

	_, err := fx.uc.Vote(ctx, p.ID, "mallory", true)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConsensus))

	_, err = fx.uc.Vote(ctx, "missing", "bob", true)
	assert.ErrorIs(t, err, domain.ErrProposalNotFound)

	id := fx.ingredient.ID
	_, err = fx.uc.Create(ctx, proposal.CreateInput{
		DealID:          fx.deal.ID,
		IngredientID:    &id,
		ChangeType:      domain.ChangeModify,
		ProposedChanges: json.RawMessage(`{"name":"x"}`),
		ProposerID:      "mallory",
	})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConsensus))
}

func TestSoleParticipantResolvesImmediately(t *testing.T) {
	fx := newFixture(t, proposal.Options{}, "alice")
	p := fx.renameProposal(t, "alice", "Curated dataset")
	assert.Equal(t, domain.ProposalApproved, p.Status)
	assert.Equal(t, "Curated dataset", fx.ingredientName(t))
}

func TestImmediateApplyLogsProposalID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	fx := newLoggedFixture(t, zap.New(core), proposal.Options{}, "alice")

	p := fx.renameProposal(t, "alice", "Curated dataset")
	require.NotEmpty(t, p.ID)

	applied := logs.FilterMessage("proposal applied to formulation").All()
	require.Len(t, applied, 1)
	assert.Equal(t, p.ID, applied[0].ContextMap()["proposal_id"])

	stored, err := fx.uc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalApproved, stored.Status)
}

func TestProposedChangesAreSchemaChecked(t *testing.T) {
	fx := newFixture(t, proposal.Options{}, "alice", "bob")
	id := fx.ingredient.ID
	cases := map[string]string{
		"unknown field":  `{"colour":"blue"}`,
		"empty diff":     `{}`,
		"bad percentage": `{"ownership_percent":"140"}`,
		"not an object":  `[1,2]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := fx.uc.Create(context.Background(), proposal.CreateInput{
				DealID:          fx.deal.ID,
				IngredientID:    &id,
				ChangeType:      domain.ChangeModify,
				ProposedChanges: json.RawMessage(raw),
				ProposerID:      "alice",
			})
			assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid), "got %v", err)
		})
	}
}

func TestRuleAdditionThroughProposal(t *testing.T) {
	fx := newFixture(t, proposal.Options{}, "alice", "bob")
	ctx := context.Background()

	p, err := fx.uc.Create(ctx, proposal.CreateInput{
		DealID:          fx.deal.ID,
		FormulationID:   fx.formulation.ID,
		Target:          domain.TargetRule,
		ChangeType:      domain.ChangeAdd,
		ProposedChanges: json.RawMessage(`{"participant_id":"bob","credit_type":"usage","payout_percentage":"40"}`),
		ProposerID:      "bob",
	})
	require.NoError(t, err)
	assert.Nil(t, p.RuleID)

	p, err = fx.uc.Vote(ctx, p.ID, "alice", true)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalApproved, p.Status)
	require.NotNil(t, p.RuleID)

	allocation, err := fx.rules.TotalActivePercentage(ctx, fx.formulation.ID)
	require.NoError(t, err)
	assert.True(t, allocation.Total.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, domain.AllocationExact, allocation.Status)
}

func TestFailedApplyLeavesProposalPending(t *testing.T) {
	fx := newFixture(t, proposal.Options{}, "alice", "bob")
	ctx := context.Background()
	ruleID := fx.rule.ID

	// min above the rule's existing max fails validation once applied.
	p, err := fx.uc.Create(ctx, proposal.CreateInput{
		DealID:          fx.deal.ID,
		Target:          domain.TargetRule,
		RuleID:          &ruleID,
		ChangeType:      domain.ChangeModify,
		ProposedChanges: json.RawMessage(`{"min_payout":"500"}`),
		ProposerID:      "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, fx.formulation.ID, p.FormulationID)

	_, err = fx.uc.Vote(ctx, p.ID, "bob", true)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	stored, err := fx.uc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalPending, stored.Status)
	assert.Equal(t, domain.VoteUnset, stored.Approvals["bob"])

	rule, err := fx.rules.Get(ctx, ruleID)
	require.NoError(t, err)
	assert.Nil(t, rule.MinPayout)
}
