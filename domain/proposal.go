package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ChangeType is the kind of mutation a proposal requests.
type ChangeType string

const (
	ChangeModify ChangeType = "modify"
	ChangeRemove ChangeType = "remove"
	ChangeAdd    ChangeType = "add"
)

// Valid reports whether c is a known change type.
func (c ChangeType) Valid() bool {
	switch c {
	case ChangeModify, ChangeRemove, ChangeAdd:
		return true
	}
	return false
}

// ProposalStatus is the resolution state of a proposal.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
)

// IsTerminal reports whether the status can no longer change.
func (s ProposalStatus) IsTerminal() bool {
	return s == ProposalApproved || s == ProposalRejected
}

// ProposalTarget is what an approved proposal mutates.
type ProposalTarget string

const (
	TargetIngredient ProposalTarget = "ingredient"
	TargetRule       ProposalTarget = "rule"
)

// Vote is a participant's position on a proposal.
type Vote int

const (
	VoteUnset Vote = iota
	VoteApproved
	VoteRejected
)

func (v Vote) String() string {
	switch v {
	case VoteUnset:
		return "unset"
	case VoteApproved:
		return "approved"
	case VoteRejected:
		return "rejected"
	}
	return fmt.Sprintf("vote(%d)", int(v))
}

// VoteFromBool converts an approve flag into a cast vote.
func VoteFromBool(approve bool) Vote {
	if approve {
		return VoteApproved
	}
	return VoteRejected
}

func (v Vote) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *Vote) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseVote(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseVote parses the string form of a vote.
func ParseVote(s string) (Vote, error) {
	switch s {
	case "unset", "":
		return VoteUnset, nil
	case "approved":
		return VoteApproved, nil
	case "rejected":
		return VoteRejected, nil
	}
	return VoteUnset, fmt.Errorf("unknown vote %q", s)
}

// Approvals maps participant ids to their vote.
type Approvals map[string]Vote

// Clone returns an independent copy.
func (a Approvals) Clone() Approvals {
	out := make(Approvals, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// ResolveApprovals applies the unanimity rule: any rejection vetoes, all
// approvals approve, anything else stays pending. An empty map is pending.
func ResolveApprovals(approvals Approvals) ProposalStatus {
	if len(approvals) == 0 {
		return ProposalPending
	}
	approved := 0
	for _, v := range approvals {
		switch v {
		case VoteRejected:
			return ProposalRejected
		case VoteApproved:
			approved++
		case VoteUnset:
		default:
			// unknown values never count toward unanimity
		}
	}
	if approved == len(approvals) {
		return ProposalApproved
	}
	return ProposalPending
}

// ChangeProposal is a votable request to mutate an ingredient or rule of a
// formulation's context.
type ChangeProposal struct {
	ID              string          `json:"id"`
	DealID          string          `json:"deal_id"`
	FormulationID   string          `json:"formulation_id,omitempty"`
	Target          ProposalTarget  `json:"target"`
	IngredientID    *string         `json:"ingredient_id,omitempty"`
	RuleID          *string         `json:"rule_id,omitempty"`
	ChangeType      ChangeType      `json:"change_type"`
	ProposedChanges json.RawMessage `json:"proposed_changes"`
	Justification   string          `json:"justification,omitempty"`
	ProposerID      string          `json:"proposer_id"`
	Status          ProposalStatus  `json:"status"`
	Approvals       Approvals       `json:"approvals"`
	Version         int             `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

// CastVote records a vote and recomputes the status. Once the proposal is
// terminal it refuses further votes. allowRevote controls whether an already
// cast vote may be overwritten while pending.
func (p *ChangeProposal) CastVote(participantID string, vote Vote, allowRevote bool, at time.Time) error {
	if p.Status.IsTerminal() {
		return Consensus("proposal %s is already %s", p.ID, p.Status)
	}
	current, ok := p.Approvals[participantID]
	if !ok {
		return Consensus("participant %s is not eligible to vote on proposal %s", participantID, p.ID)
	}
	if vote == VoteUnset {
		return Validation("approve", "a vote must approve or reject")
	}
	if current != VoteUnset && !allowRevote {
		return Consensus("participant %s has already voted on proposal %s", participantID, p.ID)
	}
	p.Approvals[participantID] = vote
	p.resolve(at)
	return nil
}

func (p *ChangeProposal) resolve(at time.Time) {
	status := ResolveApprovals(p.Approvals)
	if status.IsTerminal() {
		p.Status = status
		p.ResolvedAt = &at
	}
}

// Open snapshots participants as unset votes and records the proposer's
// implicit approval.
func (p *ChangeProposal) Open(participants []string, at time.Time) {
	p.Approvals = make(Approvals, len(participants))
	for _, id := range participants {
		p.Approvals[id] = VoteUnset
	}
	p.Approvals[p.ProposerID] = VoteApproved
	p.Status = ProposalPending
	p.CreatedAt = at
	p.resolve(at)
}

// Tally counts votes by kind.
func (p *ChangeProposal) Tally() (approved, rejected, unset int) {
	for _, v := range p.Approvals {
		switch v {
		case VoteApproved:
			approved++
		case VoteRejected:
			rejected++
		case VoteUnset:
			unset++
		}
	}
	return approved, rejected, unset
}

// IngredientChanges is the structured diff applied to an ingredient and its
// composition edge. Nil fields are left untouched.
type IngredientChanges struct {
	Name               *string          `json:"name,omitempty"`
	Type               *IngredientType  `json:"type,omitempty"`
	OwnershipStatus    *OwnershipStatus `json:"ownership_status,omitempty"`
	OwnerID            *string          `json:"owner_id,omitempty"`
	ValueCategory      *string          `json:"value_category,omitempty"`
	ContributionWeight *decimal.Decimal `json:"contribution_weight,omitempty"`
	CreditMultiplier   *decimal.Decimal `json:"credit_multiplier,omitempty"`
	ContributorID      *string          `json:"contributor_id,omitempty"`
	OwnershipPercent   *decimal.Decimal `json:"ownership_percent,omitempty"`
	ValueWeight        *decimal.Decimal `json:"value_weight,omitempty"`
}

// ApplyTo mutates the ingredient fields named in the diff.
func (c IngredientChanges) ApplyTo(ing *Ingredient) {
	if c.Name != nil {
		ing.Name = *c.Name
	}
	if c.Type != nil {
		ing.Type = *c.Type
	}
	if c.OwnershipStatus != nil {
		ing.OwnershipStatus = *c.OwnershipStatus
	}
	if c.OwnerID != nil {
		ing.OwnerID = *c.OwnerID
	}
	if c.ValueCategory != nil {
		ing.Classification.ValueCategory = *c.ValueCategory
	}
	if c.ContributionWeight != nil {
		ing.Classification.ContributionWeight = *c.ContributionWeight
	}
	if c.CreditMultiplier != nil {
		ing.Classification.CreditMultiplier = *c.CreditMultiplier
	}
}

// ApplyToEdge mutates the composition edge fields named in the diff and
// reports whether anything changed.
func (c IngredientChanges) ApplyToEdge(fi *FormulationIngredient) bool {
	changed := false
	if c.ContributorID != nil {
		fi.ContributorID = *c.ContributorID
		changed = true
	}
	if c.OwnershipPercent != nil {
		fi.OwnershipPercent = *c.OwnershipPercent
		changed = true
	}
	if c.ValueWeight != nil {
		fi.ValueWeight = *c.ValueWeight
		changed = true
	}
	if c.CreditMultiplier != nil {
		fi.CreditMultiplier = *c.CreditMultiplier
		changed = true
	}
	return changed
}

// RuleChanges is the structured diff applied to an attribution rule.
type RuleChanges struct {
	ParticipantID    *string          `json:"participant_id,omitempty"`
	CreditType       *CreditType      `json:"credit_type,omitempty"`
	PayoutPercentage *decimal.Decimal `json:"payout_percentage,omitempty"`
	MinPayout        *decimal.Decimal `json:"min_payout,omitempty"`
	MaxPayout        *decimal.Decimal `json:"max_payout,omitempty"`
}

// ApplyTo mutates the rule fields named in the diff.
func (c RuleChanges) ApplyTo(r *AttributionRule) {
	if c.ParticipantID != nil {
		r.ParticipantID = *c.ParticipantID
	}
	if c.CreditType != nil {
		r.CreditType = *c.CreditType
	}
	if c.PayoutPercentage != nil {
		r.PayoutPercentage = *c.PayoutPercentage
	}
	if c.MinPayout != nil {
		v := *c.MinPayout
		r.MinPayout = &v
	}
	if c.MaxPayout != nil {
		v := *c.MaxPayout
		r.MaxPayout = &v
	}
}
