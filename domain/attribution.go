package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreditType is the credit tier a rule converts into payout.
type CreditType string

const (
	CreditContribution CreditType = "contribution"
	CreditUsage        CreditType = "usage"
	CreditValue        CreditType = "value"
)

// Valid reports whether c is a known credit type.
func (c CreditType) Valid() bool {
	switch c {
	case CreditContribution, CreditUsage, CreditValue:
		return true
	}
	return false
}

// AttributionRule maps a participant's credit type to a payout percentage
// with optional bounds. Several rules may target one participant.
type AttributionRule struct {
	ID               string           `json:"id"`
	DealID           string           `json:"deal_id"`
	FormulationID    string           `json:"formulation_id"`
	ParticipantID    string           `json:"participant_id"`
	CreditType       CreditType       `json:"credit_type"`
	PayoutPercentage decimal.Decimal  `json:"payout_percentage"`
	MinPayout        *decimal.Decimal `json:"min_payout,omitempty"`
	MaxPayout        *decimal.Decimal `json:"max_payout,omitempty"`
	IsActive         bool             `json:"is_active"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Validate checks percentage range and bounds.
func (r *AttributionRule) Validate() error {
	if r.ParticipantID == "" {
		return Validation("participant_id", "must not be empty")
	}
	if !r.CreditType.Valid() {
		return Validation("credit_type", "unknown credit type %q", r.CreditType)
	}
	if r.PayoutPercentage.IsNegative() || r.PayoutPercentage.GreaterThan(Hundred) {
		return Validation("payout_percentage", "must be within [0,100], got %s", r.PayoutPercentage)
	}
	if r.MinPayout != nil && r.MinPayout.IsNegative() {
		return Validation("min_payout", "must not be negative")
	}
	if r.MaxPayout != nil && r.MaxPayout.IsNegative() {
		return Validation("max_payout", "must not be negative")
	}
	if r.MinPayout != nil && r.MaxPayout != nil && r.MinPayout.GreaterThan(*r.MaxPayout) {
		return Validation("min_payout", "min %s exceeds max %s", r.MinPayout, r.MaxPayout)
	}
	return nil
}

// AllocationStatus classifies the sum of active percentages.
type AllocationStatus string

const (
	AllocationUnder AllocationStatus = "under"
	AllocationExact AllocationStatus = "exact"
	AllocationOver  AllocationStatus = "over"
)

// TotalActivePercentage sums the percentages of active rules.
func TotalActivePercentage(rules []AttributionRule) (decimal.Decimal, AllocationStatus) {
	total := decimal.Zero
	for _, r := range rules {
		if r.IsActive {
			total = total.Add(r.PayoutPercentage)
		}
	}
	switch total.Cmp(Hundred) {
	case -1:
		return total, AllocationUnder
	case 1:
		return total, AllocationOver
	default:
		return total, AllocationExact
	}
}
