package formulation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase"
)

// Options carries the lifecycle policy switches.
type Options struct {
	// AllowDraftActivation lets an actor activate a draft without review.
	AllowDraftActivation bool
}

type UseCase struct {
	deals        repository.DealRepository
	ingredients  repository.IngredientRepository
	formulations repository.FormulationRepository
	tx           repository.Transactor
	locker       usecase.Locker
	emitter      *usecase.Emitter
	opts         Options
	logger       *zap.Logger
	now          func() time.Time
}

func New(repos repository.Registry, locker usecase.Locker, emitter *usecase.Emitter, opts Options, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		deals:        repos.Deals,
		ingredients:  repos.Ingredients,
		formulations: repos.Formulations,
		tx:           repos.Tx,
		locker:       locker,
		emitter:      emitter,
		opts:         opts,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Create starts a draft formulation at version 1.
func (uc *UseCase) Create(ctx context.Context, dealID, name, description string) (*domain.Formulation, error) {
	f, err := domain.NewFormulation(dealID, name, description)
	if err != nil {
		return nil, err
	}
	if _, err := uc.deals.Get(ctx, dealID); err != nil {
		return nil, err
	}
	if err := uc.formulations.Create(ctx, f); err != nil {
		return nil, err
	}
	uc.logger.Info("formulation created", zap.String("formulation_id", f.ID), zap.String("deal_id", dealID))
	return f, nil
}

func (uc *UseCase) Get(ctx context.Context, id string) (*domain.Formulation, error) {
	return uc.formulations.Get(ctx, id)
}

func (uc *UseCase) List(ctx context.Context, filter repository.FormulationFilter) ([]domain.Formulation, error) {
	return uc.formulations.List(ctx, filter)
}

// GetActive returns the deal's active formulation or domain.ErrNoActiveFormulation.
func (uc *UseCase) GetActive(ctx context.Context, dealID string) (*domain.Formulation, error) {
	return uc.formulations.GetActive(ctx, dealID)
}

// Composition reports the ownership allocation of a formulation.
func (uc *UseCase) Composition(ctx context.Context, id string) (domain.CompositionReport, error) {
	f, err := uc.formulations.Get(ctx, id)
	if err != nil {
		return domain.CompositionReport{}, err
	}
	return domain.Composition(f), nil
}

// EdgeInput describes an ingredient joining a formulation.
type EdgeInput struct {
	IngredientID     string          `json:"ingredient_id"`
	ContributorID    string          `json:"contributor_id"`
	OwnershipPercent decimal.Decimal `json:"ownership_percent"`
	ValueWeight      decimal.Decimal `json:"value_weight"`
	CreditMultiplier decimal.Decimal `json:"credit_multiplier"`
}

func (uc *UseCase) AddIngredient(ctx context.Context, formulationID string, in EdgeInput) (*domain.Formulation, error) {
	return uc.mutateDraft(ctx, formulationID, func(f *domain.Formulation) error {
		if _, exists := f.Ingredient(in.IngredientID); exists {
			return domain.Validation("ingredient_id", "ingredient %s is already part of formulation %s", in.IngredientID, f.ID)
		}
		ing, err := uc.ingredients.Get(ctx, in.IngredientID)
		if err != nil {
			return err
		}
		if ing.DealID != f.DealID {
			return domain.Validation("ingredient_id", "ingredient %s belongs to another deal", ing.ID)
		}
		if ing.IsRetired() {
			return domain.StateErr("ingredient", "ingredient %s is retired", ing.ID)
		}
		edge := domain.FormulationIngredient{
			IngredientID:     ing.ID,
			ContributorID:    in.ContributorID,
			OwnershipPercent: in.OwnershipPercent,
			ValueWeight:      in.ValueWeight,
			CreditMultiplier: in.CreditMultiplier,
		}
		if edge.ContributorID == "" {
			edge.ContributorID = ing.OwnerID
		}
		if edge.CreditMultiplier.IsZero() {
			edge.CreditMultiplier = ing.Classification.CreditMultiplier
		}
		if err := edge.Validate(); err != nil {
			return err
		}
		f.PutIngredient(edge)
		return nil
	})
}

func (uc *UseCase) UpdateIngredient(ctx context.Context, formulationID, ingredientID string, changes domain.IngredientChanges) (*domain.Formulation, error) {
	return uc.mutateDraft(ctx, formulationID, func(f *domain.Formulation) error {
		edge, ok := f.Ingredient(ingredientID)
		if !ok {
			return domain.ErrIngredientNotFound
		}
		changes.ApplyToEdge(&edge)
		if err := edge.Validate(); err != nil {
			return err
		}
		f.PutIngredient(edge)
		return nil
	})
}

func (uc *UseCase) RemoveIngredient(ctx context.Context, formulationID, ingredientID string) (*domain.Formulation, error) {
	return uc.mutateDraft(ctx, formulationID, func(f *domain.Formulation) error {
		if !f.DropIngredient(ingredientID) {
			return domain.ErrIngredientNotFound
		}
		return nil
	})
}

func (uc *UseCase) mutateDraft(ctx context.Context, id string, mutate func(f *domain.Formulation) error) (*domain.Formulation, error) {
	var out *domain.Formulation
	err := usecase.WithLock(ctx, uc.locker, usecase.FormulationKey(id), func() error {
		f, err := uc.formulations.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := f.EnsureEditable(); err != nil {
			return err
		}
		if err := mutate(f); err != nil {
			return err
		}
		if err := uc.formulations.Update(ctx, f); err != nil {
			return err
		}
		out = f
		return nil
	})
	return out, err
}

// SubmitForReview moves a draft to pending_review and returns its
// composition so allocation gaps are visible to reviewers.
func (uc *UseCase) SubmitForReview(ctx context.Context, id string) (*domain.Formulation, domain.CompositionReport, error) {
	var (
		out    *domain.Formulation
		report domain.CompositionReport
		events []domain.Event
	)
	err := usecase.WithLock(ctx, uc.locker, usecase.FormulationKey(id), func() error {
		return uc.tx.WithinTx(ctx, func(ctx context.Context) error {
			f, err := uc.formulations.Get(ctx, id)
			if err != nil {
				return err
			}
			if err := f.Submit(); err != nil {
				return err
			}
			if err := uc.formulations.Update(ctx, f); err != nil {
				return err
			}
			report = domain.Composition(f)
			ev := domain.NewEvent(domain.KindFormulation, f.ID, domain.EventFormulationSubmitted, f.Version, report)
			if err := uc.emitter.Record(ctx, ev); err != nil {
				return err
			}
			events = append(events, ev)
			out = f
			return nil
		})
	})
	if err != nil {
		return nil, domain.CompositionReport{}, err
	}
	uc.emitter.Publish(ctx, events...)
	if !report.Balanced {
		uc.logger.Warn("formulation submitted with unbalanced ownership",
			zap.String("formulation_id", id),
			zap.String("total_ownership", report.TotalOwnership.String()))
	}
	return out, report, nil
}

// Activate locks the formulation. Activating an already active formulation
// returns it unchanged. Any other active formulation of the deal is archived
// in the same transaction.
func (uc *UseCase) Activate(ctx context.Context, id, actor string) (*domain.Formulation, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, domain.Validation("actor", "activation requires an actor")
	}

	current, err := uc.formulations.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		out    *domain.Formulation
		events []domain.Event
	)
	err = usecase.WithLock(ctx, uc.locker, usecase.DealKey(current.DealID), func() error {
		return usecase.WithLock(ctx, uc.locker, usecase.FormulationKey(id), func() error {
			return uc.tx.WithinTx(ctx, func(ctx context.Context) error {
				f, err := uc.formulations.Get(ctx, id)
				if err != nil {
					return err
				}
				now := uc.now()
				changed, err := f.Activate(actor, now, uc.opts.AllowDraftActivation)
				if err != nil {
					return err
				}
				out = f
				if !changed {
					return nil
				}

				previous, err := uc.formulations.GetActive(ctx, f.DealID)
				switch {
				case errors.Is(err, domain.ErrNoActiveFormulation):
				case err != nil:
					return err
				case previous.ID != f.ID:
					if err := previous.Archive(now, true); err != nil {
						return err
					}
					if err := uc.formulations.Update(ctx, previous); err != nil {
						return err
					}
					events = append(events, domain.NewEvent(domain.KindFormulation, previous.ID,
						domain.EventFormulationArchived, previous.Version,
						map[string]string{"superseded_by": f.ID, "actor": actor}))
				}

				if err := uc.formulations.Update(ctx, f); err != nil {
					return err
				}
				events = append(events, domain.NewEvent(domain.KindFormulation, f.ID,
					domain.EventFormulationActivated, f.Version,
					map[string]interface{}{"deal_id": f.DealID, "activated_by": actor, "activated_at": now}))
				return uc.emitter.Record(ctx, events...)
			})
		})
	})
	if err != nil {
		return nil, err
	}
	uc.emitter.Publish(ctx, events...)
	if len(events) > 0 {
		uc.logger.Info("formulation activated",
			zap.String("formulation_id", out.ID),
			zap.String("deal_id", out.DealID),
			zap.String("actor", actor),
			zap.Int("version", out.Version))
	}
	return out, nil
}

// Archive retires a formulation. Archiving an active formulation needs admin.
// Payouts already issued under it are untouched.
func (uc *UseCase) Archive(ctx context.Context, id, actor string, admin bool) (*domain.Formulation, error) {
	var (
		out    *domain.Formulation
		events []domain.Event
	)
	err := usecase.WithLock(ctx, uc.locker, usecase.FormulationKey(id), func() error {
		return uc.tx.WithinTx(ctx, func(ctx context.Context) error {
			f, err := uc.formulations.Get(ctx, id)
			if err != nil {
				return err
			}
			if err := f.Archive(uc.now(), admin); err != nil {
				return err
			}
			if err := uc.formulations.Update(ctx, f); err != nil {
				return err
			}
			ev := domain.NewEvent(domain.KindFormulation, f.ID, domain.EventFormulationArchived, f.Version,
				map[string]string{"actor": actor})
			events = append(events, ev)
			out = f
			return uc.emitter.Record(ctx, ev)
		})
	})
	if err != nil {
		return nil, err
	}
	uc.emitter.Publish(ctx, events...)
	uc.logger.Info("formulation archived", zap.String("formulation_id", id), zap.String("actor", actor), zap.Bool("admin", admin))
	return out, nil
}

// ApplyIngredientChange applies an approved ingredient proposal. It bypasses
// the composition lock and must only run inside the proposal engine's
// transaction after unanimous approval.
func (uc *UseCase) ApplyIngredientChange(ctx context.Context, p *domain.ChangeProposal) error {
	if p.Status != domain.ProposalApproved {
		return domain.StateErr("proposal", "proposal %s is %s, only approved proposals apply", p.ID, p.Status)
	}

	var changes domain.IngredientChanges
	if len(p.ProposedChanges) > 0 {
		if err := json.Unmarshal(p.ProposedChanges, &changes); err != nil {
			return domain.Validation("proposed_changes", "cannot decode ingredient changes: %v", err)
		}
	}

	var f *domain.Formulation
	if p.FormulationID != "" {
		var err error
		if f, err = uc.formulations.Get(ctx, p.FormulationID); err != nil {
			return err
		}
		if f.Status == domain.FormulationArchived {
			return domain.StateErr("formulation", "formulation %s is archived", f.ID)
		}
	}

	switch p.ChangeType {
	case domain.ChangeModify:
		ing, err := uc.proposalIngredient(ctx, p)
		if err != nil {
			return err
		}
		changes.ApplyTo(ing)
		if err := ing.Validate(); err != nil {
			return err
		}
		if err := uc.ingredients.Update(ctx, ing); err != nil {
			return err
		}
		if f != nil {
			if edge, ok := f.Ingredient(ing.ID); ok && changes.ApplyToEdge(&edge) {
				if err := edge.Validate(); err != nil {
					return err
				}
				f.PutIngredient(edge)
			}
		}

	case domain.ChangeRemove:
		ing, err := uc.proposalIngredient(ctx, p)
		if err != nil {
			return err
		}
		ing.OwnershipStatus = domain.OwnershipRetired
		if err := uc.ingredients.Update(ctx, ing); err != nil {
			return err
		}
		if f != nil {
			f.DropIngredient(ing.ID)
		}

	case domain.ChangeAdd:
		ing := &domain.Ingredient{DealID: p.DealID, CreatedBy: p.ProposerID}
		changes.ApplyTo(ing)
		ing.Normalize()
		if err := ing.Validate(); err != nil {
			return err
		}
		if err := uc.ingredients.Create(ctx, ing); err != nil {
			return err
		}
		id := ing.ID
		p.IngredientID = &id
		if f != nil {
			edge := domain.FormulationIngredient{
				IngredientID:     ing.ID,
				ContributorID:    ing.OwnerID,
				CreditMultiplier: ing.Classification.CreditMultiplier,
			}
			changes.ApplyToEdge(&edge)
			if err := edge.Validate(); err != nil {
				return err
			}
			f.PutIngredient(edge)
		}

	default:
		return domain.Validation("change_type", "unknown change type %q", p.ChangeType)
	}

	if f != nil {
		if err := uc.formulations.Update(ctx, f); err != nil {
			return err
		}
		uc.logger.Info("proposal applied to formulation",
			zap.String("proposal_id", p.ID),
			zap.String("formulation_id", f.ID),
			zap.String("change_type", string(p.ChangeType)),
			zap.Int("version", f.Version))
	}
	return nil
}

func (uc *UseCase) proposalIngredient(ctx context.Context, p *domain.ChangeProposal) (*domain.Ingredient, error) {
	if p.IngredientID == nil || *p.IngredientID == "" {
		return nil, domain.Validation("ingredient_id", "%s proposals need an ingredient", p.ChangeType)
	}
	ing, err := uc.ingredients.Get(ctx, *p.IngredientID)
	if err != nil {
		return nil, err
	}
	if ing.IsRetired() {
		return nil, domain.StateErr("ingredient", "ingredient %s is retired", ing.ID)
	}
	return ing, nil
}
