package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// IngredientType enumerates the categories of contributable assets.
type IngredientType string

const (
	IngredientData           IngredientType = "data"
	IngredientModel          IngredientType = "model"
	IngredientSoftware       IngredientType = "software"
	IngredientContent        IngredientType = "content"
	IngredientCapital        IngredientType = "capital"
	IngredientExpertise      IngredientType = "expertise"
	IngredientInfrastructure IngredientType = "infrastructure"
	IngredientOther          IngredientType = "other"
)

// Valid reports whether t is a known ingredient type.
func (t IngredientType) Valid() bool {
	switch t {
	case IngredientData, IngredientModel, IngredientSoftware, IngredientContent,
		IngredientCapital, IngredientExpertise, IngredientInfrastructure, IngredientOther:
		return true
	}
	return false
}

// OwnershipStatus describes how the contributor holds the asset.
type OwnershipStatus string

const (
	OwnershipOwned    OwnershipStatus = "owned"
	OwnershipLicensed OwnershipStatus = "licensed"
	OwnershipShared   OwnershipStatus = "shared"
	OwnershipRetired  OwnershipStatus = "retired"
)

// Valid reports whether s is a known ownership status.
func (s OwnershipStatus) Valid() bool {
	switch s {
	case OwnershipOwned, OwnershipLicensed, OwnershipShared, OwnershipRetired:
		return true
	}
	return false
}

// Classification holds the valuation metadata of an ingredient.
type Classification struct {
	ValueCategory      string          `json:"value_category,omitempty"`
	ContributionWeight decimal.Decimal `json:"contribution_weight"`
	CreditMultiplier   decimal.Decimal `json:"credit_multiplier"`
}

// Ingredient is a contributable asset registered against a deal.
type Ingredient struct {
	ID              string          `json:"id"`
	DealID          string          `json:"deal_id"`
	Name            string          `json:"name"`
	Type            IngredientType  `json:"type"`
	OwnershipStatus OwnershipStatus `json:"ownership_status"`
	OwnerID         string          `json:"owner_id,omitempty"`
	Classification  Classification  `json:"classification"`
	CreatedBy       string          `json:"created_by,omitempty"`
	Version         int             `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Normalize fills defaults for optional fields.
func (i *Ingredient) Normalize() {
	if i.Type == "" {
		i.Type = IngredientOther
	}
	if i.OwnershipStatus == "" {
		i.OwnershipStatus = OwnershipOwned
	}
	if i.Classification.CreditMultiplier.IsZero() {
		i.Classification.CreditMultiplier = decimal.NewFromInt(1)
	}
}

// Validate checks the ingredient's fields.
func (i *Ingredient) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return Validation("name", "must not be empty")
	}
	if i.DealID == "" {
		return Validation("deal_id", "must not be empty")
	}
	if !i.Type.Valid() {
		return Validation("type", "unknown ingredient type %q", i.Type)
	}
	if !i.OwnershipStatus.Valid() {
		return Validation("ownership_status", "unknown ownership status %q", i.OwnershipStatus)
	}
	if i.Classification.ContributionWeight.IsNegative() {
		return Validation("contribution_weight", "must not be negative")
	}
	if i.Classification.CreditMultiplier.IsNegative() {
		return Validation("credit_multiplier", "must not be negative")
	}
	return nil
}

// IsRetired reports whether the ingredient was removed through a proposal.
func (i *Ingredient) IsRetired() bool {
	return i != nil && i.OwnershipStatus == OwnershipRetired
}
