// Package payout turns a value pool and attribution rules into
// per-participant payout amounts. Every function is pure.
package payout

import (
	"github.com/shopspring/decimal"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

// Calculate distributes pool across the participants of the active rules.
//
// Rules are grouped by participant in first-seen order and their percentages
// summed. The raw payout is pool * total / 100. Each of the participant's
// rules is then applied in order, min clamp before max clamp, so the last
// conflicting rule wins. The result is rounded half-up to the currency's
// minor unit.
func Calculate(pool decimal.Decimal, rules []domain.AttributionRule, currency string) ([]domain.PayoutCalculation, error) {
	if pool.IsNegative() {
		return nil, domain.Calculation("pool value %s is negative", pool)
	}

	type group struct {
		participantID string
		total         decimal.Decimal
		rules         []domain.AttributionRule
	}

	index := make(map[string]int)
	var groups []group
	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		i, ok := index[r.ParticipantID]
		if !ok {
			i = len(groups)
			index[r.ParticipantID] = i
			groups = append(groups, group{participantID: r.ParticipantID})
		}
		groups[i].total = groups[i].total.Add(r.PayoutPercentage)
		groups[i].rules = append(groups[i].rules, r)
	}
	if len(groups) == 0 {
		return nil, domain.Calculation("no active attribution rules to distribute %s", pool)
	}

	scale := domain.CurrencyScale(currency)
	out := make([]domain.PayoutCalculation, 0, len(groups))
	for _, g := range groups {
		raw := pool.Mul(g.total).Div(domain.Hundred)
		amount, minApplied, maxApplied := Clamp(raw, g.rules)
		out = append(out, domain.PayoutCalculation{
			ParticipantID:         g.participantID,
			AttributionPercentage: g.total,
			RawPayout:             raw,
			CalculatedPayout:      amount.Round(scale),
			MinApplied:            minApplied,
			MaxApplied:            maxApplied,
			Status:                domain.CalculationPending,
		})
	}
	return out, nil
}

// Clamp applies each rule's bounds to amount in rule order, min then max.
func Clamp(amount decimal.Decimal, rules []domain.AttributionRule) (decimal.Decimal, bool, bool) {
	var minApplied, maxApplied bool
	for _, r := range rules {
		if r.MinPayout != nil && amount.LessThan(*r.MinPayout) {
			amount = *r.MinPayout
			minApplied = true
		}
		if r.MaxPayout != nil && amount.GreaterThan(*r.MaxPayout) {
			amount = *r.MaxPayout
			maxApplied = true
		}
	}
	return amount, minApplied, maxApplied
}

// Equal splits pool evenly. Amounts are truncated to the currency's minor
// unit and the remainder goes to the first participant, so the sum always
// equals the rounded pool.
func Equal(pool decimal.Decimal, participants []string, currency string) ([]domain.PayoutCalculation, error) {
	if pool.IsNegative() {
		return nil, domain.Calculation("pool value %s is negative", pool)
	}
	if len(participants) == 0 {
		return nil, domain.Calculation("no participants to distribute %s", pool)
	}

	scale := domain.CurrencyScale(currency)
	n := decimal.NewFromInt(int64(len(participants)))
	share := pool.Div(n).Truncate(scale)
	percent := domain.Hundred.Div(n).Round(4)
	remainder := pool.Round(scale).Sub(share.Mul(n))

	out := make([]domain.PayoutCalculation, 0, len(participants))
	for i, id := range participants {
		amount := share
		if i == 0 {
			amount = amount.Add(remainder)
		}
		out = append(out, domain.PayoutCalculation{
			ParticipantID:         id,
			AttributionPercentage: percent,
			RawPayout:             pool.Div(n),
			CalculatedPayout:      amount,
			Status:                domain.CalculationPending,
		})
	}
	return out, nil
}

// Total sums the calculated payouts.
func Total(calcs []domain.PayoutCalculation) decimal.Decimal {
	total := decimal.Zero
	for _, c := range calcs {
		total = total.Add(c.CalculatedPayout)
	}
	return total
}
