package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormulationStatus is the lifecycle state of a formulation.
type FormulationStatus string

const (
	FormulationDraft         FormulationStatus = "draft"
	FormulationPendingReview FormulationStatus = "pending_review"
	FormulationActive        FormulationStatus = "active"
	FormulationArchived      FormulationStatus = "archived"
)

// Hundred is the expected ownership total of a balanced composition.
var Hundred = decimal.NewFromInt(100)

// FormulationIngredient is the composition edge between a formulation and an
// ingredient contributed by a participant.
type FormulationIngredient struct {
	FormulationID    string          `json:"formulation_id"`
	IngredientID     string          `json:"ingredient_id"`
	ContributorID    string          `json:"contributor_id,omitempty"`
	OwnershipPercent decimal.Decimal `json:"ownership_percent"`
	ValueWeight      decimal.Decimal `json:"value_weight"`
	CreditMultiplier decimal.Decimal `json:"credit_multiplier"`
}

// Validate checks the edge's numeric bounds.
func (fi FormulationIngredient) Validate() error {
	if fi.IngredientID == "" {
		return Validation("ingredient_id", "must not be empty")
	}
	if fi.OwnershipPercent.IsNegative() || fi.OwnershipPercent.GreaterThan(Hundred) {
		return Validation("ownership_percent", "must be within [0,100], got %s", fi.OwnershipPercent)
	}
	if fi.ValueWeight.IsNegative() {
		return Validation("value_weight", "must not be negative")
	}
	if fi.CreditMultiplier.IsNegative() {
		return Validation("credit_multiplier", "must not be negative")
	}
	return nil
}

// Formulation is a versioned, lockable agreement combining ingredients.
type Formulation struct {
	ID          string                  `json:"id"`
	DealID      string                  `json:"deal_id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	Version     int                     `json:"version"`
	Status      FormulationStatus       `json:"status"`
	Ingredients []FormulationIngredient `json:"ingredients"`
	ActivatedAt *time.Time              `json:"activated_at,omitempty"`
	ActivatedBy string                  `json:"activated_by,omitempty"`
	ArchivedAt  *time.Time              `json:"archived_at,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// NewFormulation returns a draft formulation at version 1.
func NewFormulation(dealID, name, description string) (*Formulation, error) {
	if strings.TrimSpace(name) == "" {
		return nil, Validation("name", "must not be empty")
	}
	if dealID == "" {
		return nil, Validation("deal_id", "must not be empty")
	}
	now := time.Now().UTC()
	return &Formulation{
		DealID:      dealID,
		Name:        strings.TrimSpace(name),
		Description: description,
		Version:     1,
		Status:      FormulationDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsLocked reports whether the composition is immutable.
func (f *Formulation) IsLocked() bool {
	return f != nil && f.Status == FormulationActive
}

// EnsureEditable returns LockedError for active formulations and StateError
// for any other state besides draft.
func (f *Formulation) EnsureEditable() error {
	switch f.Status {
	case FormulationDraft:
		return nil
	case FormulationActive:
		return Locked("formulation", f.ID)
	default:
		return StateErr("formulation", "composition of %s formulation %s cannot change", f.Status, f.ID)
	}
}

// Ingredient returns the composition edge for ingredientID.
func (f *Formulation) Ingredient(ingredientID string) (FormulationIngredient, bool) {
	for _, fi := range f.Ingredients {
		if fi.IngredientID == ingredientID {
			return fi, true
		}
	}
	return FormulationIngredient{}, false
}

// PutIngredient inserts or replaces a composition edge without lock checks.
func (f *Formulation) PutIngredient(fi FormulationIngredient) {
	fi.FormulationID = f.ID
	for i := range f.Ingredients {
		if f.Ingredients[i].IngredientID == fi.IngredientID {
			f.Ingredients[i] = fi
			return
		}
	}
	f.Ingredients = append(f.Ingredients, fi)
}

// DropIngredient removes a composition edge without lock checks.
func (f *Formulation) DropIngredient(ingredientID string) bool {
	for i := range f.Ingredients {
		if f.Ingredients[i].IngredientID == ingredientID {
			f.Ingredients = append(f.Ingredients[:i], f.Ingredients[i+1:]...)
			return true
		}
	}
	return false
}

// Submit moves a draft into review.
func (f *Formulation) Submit() error {
	if f.Status != FormulationDraft {
		return IllegalTransition("formulation", f.Status, FormulationPendingReview)
	}
	if len(f.Ingredients) == 0 {
		return Validation("ingredients", "formulation %s needs at least one ingredient before review", f.ID)
	}
	f.Status = FormulationPendingReview
	return nil
}

// Activate locks the formulation. It reports false without error when the
// formulation is already active so retries stay harmless.
func (f *Formulation) Activate(actor string, at time.Time, allowFromDraft bool) (bool, error) {
	switch f.Status {
	case FormulationActive:
		return false, nil
	case FormulationPendingReview:
	case FormulationDraft:
		if !allowFromDraft {
			return false, StateErr("formulation", "formulation %s must be submitted for review before activation", f.ID)
		}
		if len(f.Ingredients) == 0 {
			return false, Validation("ingredients", "formulation %s has no ingredients", f.ID)
		}
	default:
		return false, IllegalTransition("formulation", f.Status, FormulationActive)
	}
	if strings.TrimSpace(actor) == "" {
		return false, Validation("actor", "activation requires an actor")
	}
	f.Status = FormulationActive
	f.ActivatedAt = &at
	f.ActivatedBy = actor
	return true, nil
}

// Archive retires the formulation. Active formulations need admin.
func (f *Formulation) Archive(at time.Time, admin bool) error {
	switch f.Status {
	case FormulationArchived:
		return IllegalTransition("formulation", f.Status, FormulationArchived)
	case FormulationActive:
		if !admin {
			return StateErr("formulation", "archiving active formulation %s requires an admin action", f.ID)
		}
	}
	f.Status = FormulationArchived
	f.ArchivedAt = &at
	return nil
}

// CompositionReport summarizes ownership allocation of a formulation.
type CompositionReport struct {
	FormulationID   string          `json:"formulation_id"`
	Version         int             `json:"version"`
	IngredientCount int             `json:"ingredient_count"`
	TotalOwnership  decimal.Decimal `json:"total_ownership"`
	Delta           decimal.Decimal `json:"delta"`
	Balanced        bool            `json:"balanced"`
	Warnings        []string        `json:"warnings,omitempty"`
}

// Composition computes the ownership report over a snapshot of edges.
func Composition(f *Formulation) CompositionReport {
	report := CompositionReport{
		FormulationID:   f.ID,
		Version:         f.Version,
		IngredientCount: len(f.Ingredients),
		TotalOwnership:  decimal.Zero,
	}
	for _, fi := range f.Ingredients {
		report.TotalOwnership = report.TotalOwnership.Add(fi.OwnershipPercent)
	}
	report.Delta = report.TotalOwnership.Sub(Hundred)
	report.Balanced = report.Delta.IsZero()
	if len(f.Ingredients) == 0 {
		report.Warnings = append(report.Warnings, "formulation has no ingredients")
	}
	if !report.Balanced {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("ownership totals %s%%, expected 100%%", report.TotalOwnership.String()))
	}
	return report
}
