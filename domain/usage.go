package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UsageEvent is an append-only consumption signal for an ingredient.
// ID doubles as the idempotency key; duplicates are ignored by the ledger.
type UsageEvent struct {
	ID           string          `json:"id"`
	DealID       string          `json:"deal_id"`
	IngredientID string          `json:"ingredient_id"`
	UsageType    string          `json:"usage_type"`
	Quantity     decimal.Decimal `json:"quantity"`
	CostIncurred decimal.Decimal `json:"cost_incurred"`
	RecordedAt   time.Time       `json:"recorded_at"`
}

// Validate checks the event's fields.
func (e *UsageEvent) Validate() error {
	if e.DealID == "" {
		return Validation("deal_id", "must not be empty")
	}
	if e.IngredientID == "" {
		return Validation("ingredient_id", "must not be empty")
	}
	if strings.TrimSpace(e.UsageType) == "" {
		return Validation("usage_type", "must not be empty")
	}
	if e.Quantity.IsNegative() {
		return Validation("quantity", "must not be negative")
	}
	if e.CostIncurred.IsNegative() {
		return Validation("cost_incurred", "must not be negative")
	}
	return nil
}

// UsageSummary is the running aggregate of usage per ingredient and type.
type UsageSummary struct {
	DealID         string          `json:"deal_id"`
	IngredientID   string          `json:"ingredient_id"`
	UsageType      string          `json:"usage_type"`
	TotalQuantity  decimal.Decimal `json:"total_quantity"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	EventCount     int64           `json:"event_count"`
	LastRecordedAt time.Time       `json:"last_recorded_at"`
}

// Apply folds an event into the summary.
func (s *UsageSummary) Apply(e UsageEvent) {
	s.TotalQuantity = s.TotalQuantity.Add(e.Quantity)
	s.TotalCost = s.TotalCost.Add(e.CostIncurred)
	s.EventCount++
	if e.RecordedAt.After(s.LastRecordedAt) {
		s.LastRecordedAt = e.RecordedAt
	}
}

// UsageFilter narrows usage aggregation. Empty fields match everything.
type UsageFilter struct {
	DealID       string
	IngredientID string
	UsageType    string
}

// Matches reports whether a summary falls under the filter.
func (f UsageFilter) Matches(s UsageSummary) bool {
	if f.DealID != "" && s.DealID != f.DealID {
		return false
	}
	if f.IngredientID != "" && s.IngredientID != f.IngredientID {
		return false
	}
	if f.UsageType != "" && s.UsageType != f.UsageType {
		return false
	}
	return true
}

// CumulativeQuantity sums quantities of the summaries matching the filter.
func CumulativeQuantity(summaries []UsageSummary, filter UsageFilter) decimal.Decimal {
	total := decimal.Zero
	for _, s := range summaries {
		if filter.Matches(s) {
			total = total.Add(s.TotalQuantity)
		}
	}
	return total
}
