package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TriggerType is the condition family that fires a settlement contract.
type TriggerType string

const (
	TriggerRevenueReceived TriggerType = "revenue_received"
	TriggerInvoicePaid     TriggerType = "invoice_paid"
	TriggerSavingsVerified TriggerType = "savings_verified"
	TriggerMilestoneHit    TriggerType = "milestone_hit"
	TriggerUsageThreshold  TriggerType = "usage_threshold"
	TriggerTimeBased       TriggerType = "time_based"
	TriggerManualApproval  TriggerType = "manual_approval"
)

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerRevenueReceived, TriggerInvoicePaid, TriggerSavingsVerified, TriggerMilestoneHit,
		TriggerUsageThreshold, TriggerTimeBased, TriggerManualApproval:
		return true
	}
	return false
}

// IsMonetary reports whether the trigger carries its own amount.
func (t TriggerType) IsMonetary() bool {
	return t == TriggerRevenueReceived || t == TriggerInvoicePaid || t == TriggerSavingsVerified
}

// DistributionLogic selects how a pool is split.
type DistributionLogic string

const (
	DistributionProportional DistributionLogic = "proportional"
	DistributionEqual        DistributionLogic = "equal"
)

// Valid reports whether d is a known distribution logic.
func (d DistributionLogic) Valid() bool {
	return d == DistributionProportional || d == DistributionEqual
}

// TriggerConditions is the structured predicate of a contract.
type TriggerConditions struct {
	MinAmount    *decimal.Decimal `json:"min_amount,omitempty"`
	Threshold    *decimal.Decimal `json:"threshold,omitempty"`
	UsageType    string           `json:"usage_type,omitempty"`
	IngredientID string           `json:"ingredient_id,omitempty"`
	Schedule     string           `json:"schedule,omitempty"`
	Milestone    string           `json:"milestone,omitempty"`
	PoolAmount   *decimal.Decimal `json:"pool_amount,omitempty"`
	Expression   string           `json:"expression,omitempty"`
}

// SettlementContract is a standing rule that distributes a pool when its
// trigger condition is met.
type SettlementContract struct {
	ID                string            `json:"id"`
	DealID            string            `json:"deal_id"`
	Name              string            `json:"name"`
	TriggerType       TriggerType       `json:"trigger_type"`
	TriggerConditions TriggerConditions `json:"trigger_conditions"`
	DistributionLogic DistributionLogic `json:"distribution_logic"`
	Currency          string            `json:"currency"`
	IsActive          bool              `json:"is_active"`
	TotalDistributed  decimal.Decimal   `json:"total_distributed"`
	LastTriggeredAt   *time.Time        `json:"last_triggered_at,omitempty"`
	Version           int               `json:"version"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Validate checks that the conditions required by the trigger type exist.
func (c *SettlementContract) Validate() error {
	if c.DealID == "" {
		return Validation("deal_id", "must not be empty")
	}
	if strings.TrimSpace(c.Name) == "" {
		return Validation("name", "must not be empty")
	}
	if !c.TriggerType.Valid() {
		return Validation("trigger_type", "unknown trigger type %q", c.TriggerType)
	}
	if !c.DistributionLogic.Valid() {
		return Validation("distribution_logic", "unknown distribution logic %q", c.DistributionLogic)
	}
	cond := c.TriggerConditions
	if cond.MinAmount != nil && cond.MinAmount.IsNegative() {
		return Validation("trigger_conditions.min_amount", "must not be negative")
	}
	if cond.PoolAmount != nil && !cond.PoolAmount.IsPositive() {
		return Validation("trigger_conditions.pool_amount", "must be positive")
	}
	switch c.TriggerType {
	case TriggerUsageThreshold:
		if cond.Threshold == nil || !cond.Threshold.IsPositive() {
			return Validation("trigger_conditions.threshold", "usage_threshold contracts need a positive threshold")
		}
	case TriggerTimeBased:
		if strings.TrimSpace(cond.Schedule) == "" {
			return Validation("trigger_conditions.schedule", "time_based contracts need a schedule")
		}
	case TriggerMilestoneHit:
		if strings.TrimSpace(cond.Milestone) == "" {
			return Validation("trigger_conditions.milestone", "milestone_hit contracts need a milestone")
		}
	}
	if !c.TriggerType.IsMonetary() && cond.PoolAmount == nil {
		return Validation("trigger_conditions.pool_amount", "%s contracts need a pool_amount", c.TriggerType)
	}
	return nil
}

// TriggerEvent is the payload that may fire contracts of a deal.
type TriggerEvent struct {
	DealID     string                 `json:"deal_id"`
	Type       TriggerType            `json:"type"`
	Amount     decimal.Decimal        `json:"amount"`
	Currency   string                 `json:"currency,omitempty"`
	Milestone  string                 `json:"milestone,omitempty"`
	Verified   bool                   `json:"verified,omitempty"`
	Reference  string                 `json:"reference,omitempty"`
	ApprovedBy string                 `json:"approved_by,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`

	// Usage crossing data, filled by the ledger consumer.
	PreviousUsage *decimal.Decimal `json:"previous_usage,omitempty"`
	CurrentUsage  *decimal.Decimal `json:"current_usage,omitempty"`
}

// ExecutionStatus is the state of a settlement execution.
type ExecutionStatus string

const (
	ExecutionPending    ExecutionStatus = "pending"
	ExecutionProcessing ExecutionStatus = "processing"
	ExecutionCompleted  ExecutionStatus = "completed"
	ExecutionFailed     ExecutionStatus = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// SettlementExecution is one triggered run of a contract.
type SettlementExecution struct {
	ID            string          `json:"id"`
	ContractID    string          `json:"contract_id"`
	DealID        string          `json:"deal_id"`
	TriggerEvent  json.RawMessage `json:"trigger_event"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency"`
	Status        ExecutionStatus `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	ExecutedAt    *time.Time      `json:"executed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Transition moves the execution along pending → processing → completed|failed.
func (e *SettlementExecution) Transition(to ExecutionStatus, at time.Time) error {
	allowed := false
	switch e.Status {
	case ExecutionPending:
		allowed = to == ExecutionProcessing || to == ExecutionFailed
	case ExecutionProcessing:
		allowed = to == ExecutionCompleted || to == ExecutionFailed
	}
	if !allowed {
		return IllegalTransition("execution", e.Status, to)
	}
	e.Status = to
	e.UpdatedAt = at
	if to.IsTerminal() {
		e.ExecutedAt = &at
	}
	return nil
}

// PayoutStatus is the payment state of a payout record.
type PayoutStatus string

const (
	PayoutPending PayoutStatus = "pending"
	PayoutPaid    PayoutStatus = "paid"
)

// SettlementPayout is the amount owed to one participant by an execution.
type SettlementPayout struct {
	ID                    string          `json:"id"`
	ExecutionID           string          `json:"execution_id"`
	ParticipantID         string          `json:"participant_id"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	AttributionPercentage decimal.Decimal `json:"attribution_percentage"`
	MinApplied            bool            `json:"min_applied"`
	MaxApplied            bool            `json:"max_applied"`
	Status                PayoutStatus    `json:"status"`
	PaidAt                *time.Time      `json:"paid_at,omitempty"`
	PaymentReference      string          `json:"payment_reference,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}

// CalculationStatus is the state of a calculated payout.
type CalculationStatus string

const CalculationPending CalculationStatus = "pending"

// PayoutCalculation is the calculator output for one participant.
type PayoutCalculation struct {
	ParticipantID         string            `json:"participant_id"`
	AttributionPercentage decimal.Decimal   `json:"attribution_percentage"`
	RawPayout             decimal.Decimal   `json:"raw_payout"`
	CalculatedPayout      decimal.Decimal   `json:"calculated_payout"`
	MinApplied            bool              `json:"min_applied"`
	MaxApplied            bool              `json:"max_applied"`
	Status                CalculationStatus `json:"status"`
}

// MarkPaid records the external payment of a pending payout.
func (p *SettlementPayout) MarkPaid(reference string, at time.Time) error {
	if p.Status == PayoutPaid {
		return StateErr("payout", "payout %s is already paid", p.ID)
	}
	if strings.TrimSpace(reference) == "" {
		return Validation("payment_reference", "must not be empty")
	}
	p.Status = PayoutPaid
	p.PaidAt = &at
	p.PaymentReference = strings.TrimSpace(reference)
	return nil
}
