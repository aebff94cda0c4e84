package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Credit is an entry in one of the three credit tiers. Value credits count
// only once verified.
type Credit struct {
	ID             string          `json:"id"`
	DealID         string          `json:"deal_id"`
	ParticipantID  string          `json:"participant_id"`
	Tier           CreditType      `json:"tier"`
	Amount         decimal.Decimal `json:"amount"`
	Classification string          `json:"classification,omitempty"`
	Description    string          `json:"description,omitempty"`
	RecordedAt     time.Time       `json:"recorded_at"`
	VerifiedAt     *time.Time      `json:"verified_at,omitempty"`
	VerifiedBy     string          `json:"verified_by,omitempty"`
}

// Validate checks the credit's fields.
func (c *Credit) Validate() error {
	if c.DealID == "" {
		return Validation("deal_id", "must not be empty")
	}
	if c.ParticipantID == "" {
		return Validation("participant_id", "must not be empty")
	}
	if !c.Tier.Valid() {
		return Validation("tier", "unknown credit tier %q", c.Tier)
	}
	if !c.Amount.IsPositive() {
		return Validation("amount", "must be positive")
	}
	return nil
}

// Counts reports whether the credit contributes to summaries.
func (c *Credit) Counts() bool {
	if c.Tier == CreditValue {
		return c.VerifiedAt != nil
	}
	return true
}

// Verify marks a value credit as verified.
func (c *Credit) Verify(by string, at time.Time) error {
	if c.Tier != CreditValue {
		return StateErr("credit", "only value credits are verified, %s is a %s credit", c.ID, c.Tier)
	}
	if c.VerifiedAt != nil {
		return StateErr("credit", "credit %s is already verified", c.ID)
	}
	if by == "" {
		return Validation("verified_by", "must not be empty")
	}
	c.VerifiedAt = &at
	c.VerifiedBy = by
	return nil
}

// CreditSummary totals counted credits of a participant per tier.
type CreditSummary struct {
	ParticipantID string          `json:"participant_id"`
	Contribution  decimal.Decimal `json:"contribution"`
	Usage         decimal.Decimal `json:"usage"`
	Value         decimal.Decimal `json:"value"`
	Pending       decimal.Decimal `json:"pending_value"`
}

// SummarizeCredits groups credits by participant in first-seen order.
func SummarizeCredits(credits []Credit) []CreditSummary {
	index := make(map[string]int)
	var out []CreditSummary
	for _, c := range credits {
		i, ok := index[c.ParticipantID]
		if !ok {
			i = len(out)
			index[c.ParticipantID] = i
			out = append(out, CreditSummary{ParticipantID: c.ParticipantID})
		}
		s := &out[i]
		switch c.Tier {
		case CreditContribution:
			s.Contribution = s.Contribution.Add(c.Amount)
		case CreditUsage:
			s.Usage = s.Usage.Add(c.Amount)
		case CreditValue:
			if c.Counts() {
				s.Value = s.Value.Add(c.Amount)
			} else {
				s.Pending = s.Pending.Add(c.Amount)
			}
		}
	}
	return out
}
