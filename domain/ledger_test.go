package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

func TestUsageSummaryAndCumulative(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []domain.UsageEvent{
		{DealID: "d", IngredientID: "i1", UsageType: "api_call", Quantity: decimal.NewFromInt(3), CostIncurred: decimal.RequireFromString("0.30"), RecordedAt: t0},
		{DealID: "d", IngredientID: "i1", UsageType: "api_call", Quantity: decimal.NewFromInt(2), CostIncurred: decimal.RequireFromString("0.20"), RecordedAt: t0.Add(time.Hour)},
		{DealID: "d", IngredientID: "i2", UsageType: "render", Quantity: decimal.NewFromInt(7), RecordedAt: t0},
	}
	byKey := map[string]*domain.UsageSummary{}
	for _, e := range events {
		key := e.IngredientID + "/" + e.UsageType
		s, ok := byKey[key]
		if !ok {
			s = &domain.UsageSummary{DealID: e.DealID, IngredientID: e.IngredientID, UsageType: e.UsageType}
			byKey[key] = s
		}
		s.Apply(e)
	}
	api := byKey["i1/api_call"]
	assert.Equal(t, "5", api.TotalQuantity.String())
	assert.Equal(t, "0.5", api.TotalCost.String())
	assert.Equal(t, int64(2), api.EventCount)
	assert.Equal(t, t0.Add(time.Hour), api.LastRecordedAt)

	summaries := []domain.UsageSummary{*byKey["i1/api_call"], *byKey["i2/render"]}
	assert.Equal(t, "12", domain.CumulativeQuantity(summaries, domain.UsageFilter{DealID: "d"}).String())
	assert.Equal(t, "5", domain.CumulativeQuantity(summaries, domain.UsageFilter{IngredientID: "i1"}).String())
	assert.Equal(t, "7", domain.CumulativeQuantity(summaries, domain.UsageFilter{UsageType: "render"}).String())
	assert.True(t, domain.CumulativeQuantity(summaries, domain.UsageFilter{DealID: "other"}).IsZero())
}

func TestUsageEventValidate(t *testing.T) {
	e := domain.UsageEvent{DealID: "d", IngredientID: "i", UsageType: "api_call", Quantity: decimal.NewFromInt(1)}
	assert.NoError(t, e.Validate())

	e.Quantity = decimal.NewFromInt(-1)
	assert.Error(t, e.Validate())

	e.Quantity = decimal.Zero
	e.UsageType = "  "
	assert.Error(t, e.Validate())
}

func TestCreditsCountOnlyWhenVerified(t *testing.T) {
	now := time.Now()
	value := domain.Credit{ID: "c-3", DealID: "d", ParticipantID: "bob", Tier: domain.CreditValue, Amount: decimal.NewFromInt(50)}
	credits := []domain.Credit{
		{ID: "c-1", DealID: "d", ParticipantID: "alice", Tier: domain.CreditContribution, Amount: decimal.NewFromInt(10)},
		{ID: "c-2", DealID: "d", ParticipantID: "alice", Tier: domain.CreditUsage, Amount: decimal.NewFromInt(4)},
		value,
	}

	summary := domain.SummarizeCredits(credits)
	require.Len(t, summary, 2)
	assert.Equal(t, "alice", summary[0].ParticipantID)
	assert.Equal(t, "10", summary[0].Contribution.String())
	assert.Equal(t, "4", summary[0].Usage.String())
	assert.True(t, summary[1].Value.IsZero())
	assert.Equal(t, "50", summary[1].Pending.String())

	require.NoError(t, credits[2].Verify("carol", now))
	summary = domain.SummarizeCredits(credits)
	assert.Equal(t, "50", summary[1].Value.String())
	assert.True(t, summary[1].Pending.IsZero())

	assert.Error(t, credits[2].Verify("carol", now), "verifying twice")
	assert.Error(t, credits[0].Verify("carol", now), "only value credits verify")
}

func TestAttributionRuleValidate(t *testing.T) {
	r := domain.AttributionRule{ParticipantID: "alice", CreditType: domain.CreditContribution, PayoutPercentage: decimal.NewFromInt(40)}
	assert.NoError(t, r.Validate())

	r.PayoutPercentage = decimal.NewFromInt(101)
	assert.Error(t, r.Validate())

	r.PayoutPercentage = decimal.NewFromInt(40)
	r.MinPayout = dec("100")
	r.MaxPayout = dec("50")
	assert.Error(t, r.Validate())
}

func TestTotalActivePercentage(t *testing.T) {
	rules := []domain.AttributionRule{
		{PayoutPercentage: decimal.NewFromInt(60), IsActive: true},
		{PayoutPercentage: decimal.NewFromInt(40), IsActive: true},
		{PayoutPercentage: decimal.NewFromInt(25), IsActive: false},
	}
	total, status := domain.TotalActivePercentage(rules)
	assert.Equal(t, "100", total.String())
	assert.Equal(t, domain.AllocationExact, status)

	rules[1].IsActive = false
	_, status = domain.TotalActivePercentage(rules)
	assert.Equal(t, domain.AllocationUnder, status)

	rules[2].IsActive = true
	rules[1].IsActive = true
	_, status = domain.TotalActivePercentage(rules)
	assert.Equal(t, domain.AllocationOver, status)
}
