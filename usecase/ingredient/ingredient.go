package ingredient

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase"
)

type UseCase struct {
	deals        repository.DealRepository
	ingredients  repository.IngredientRepository
	formulations repository.FormulationRepository
	locker       usecase.Locker
	logger       *zap.Logger
}

func New(repos repository.Registry, locker usecase.Locker, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		deals:        repos.Deals,
		ingredients:  repos.Ingredients,
		formulations: repos.Formulations,
		locker:       locker,
		logger:       logger,
	}
}

type RegisterInput struct {
	DealID             string                 `json:"deal_id"`
	Name               string                 `json:"name"`
	Type               domain.IngredientType  `json:"type"`
	OwnershipStatus    domain.OwnershipStatus `json:"ownership_status"`
	OwnerID            string                 `json:"owner_id"`
	ValueCategory      string                 `json:"value_category"`
	ContributionWeight decimal.Decimal        `json:"contribution_weight"`
	CreditMultiplier   decimal.Decimal        `json:"credit_multiplier"`
	CreatedBy          string                 `json:"-"`
}

// Register adds an ingredient to the deal's registry.
func (uc *UseCase) Register(ctx context.Context, in RegisterInput) (*domain.Ingredient, error) {
	d, err := uc.deals.Get(ctx, in.DealID)
	if err != nil {
		return nil, err
	}
	if in.OwnerID != "" && !d.HasParticipant(in.OwnerID) {
		return nil, domain.Validation("owner_id", "participant %s is not part of deal %s", in.OwnerID, d.ID)
	}
	if in.OwnershipStatus == domain.OwnershipRetired {
		return nil, domain.Validation("ownership_status", "new ingredients cannot be retired")
	}

	ing := &domain.Ingredient{
		DealID:          d.ID,
		Name:            strings.TrimSpace(in.Name),
		Type:            in.Type,
		OwnershipStatus: in.OwnershipStatus,
		OwnerID:         in.OwnerID,
		Classification: domain.Classification{
			ValueCategory:      in.ValueCategory,
			ContributionWeight: in.ContributionWeight,
			CreditMultiplier:   in.CreditMultiplier,
		},
		CreatedBy: in.CreatedBy,
	}
	ing.Normalize()
	if err := ing.Validate(); err != nil {
		return nil, err
	}
	if err := uc.ingredients.Create(ctx, ing); err != nil {
		return nil, err
	}
	uc.logger.Info("ingredient registered",
		zap.String("ingredient_id", ing.ID),
		zap.String("deal_id", ing.DealID),
		zap.String("type", string(ing.Type)))
	return ing, nil
}

func (uc *UseCase) Get(ctx context.Context, id string) (*domain.Ingredient, error) {
	return uc.ingredients.Get(ctx, id)
}

func (uc *UseCase) List(ctx context.Context, filter repository.IngredientFilter) ([]domain.Ingredient, error) {
	return uc.ingredients.List(ctx, filter)
}

// Update edits an ingredient directly. Ingredients composed into the deal's
// active formulation are locked and change only through proposals.
func (uc *UseCase) Update(ctx context.Context, id string, changes domain.IngredientChanges) (*domain.Ingredient, error) {
	var out *domain.Ingredient
	err := usecase.WithLock(ctx, uc.locker, "ingredient:"+id, func() error {
		ing, err := uc.ingredients.Get(ctx, id)
		if err != nil {
			return err
		}
		if ing.IsRetired() {
			return domain.StateErr("ingredient", "ingredient %s is retired", ing.ID)
		}
		if err := uc.ensureUnlocked(ctx, ing); err != nil {
			return err
		}
		if changes.OwnershipStatus != nil && *changes.OwnershipStatus == domain.OwnershipRetired {
			return domain.Validation("ownership_status", "retirement happens through a removal proposal")
		}
		changes.ApplyTo(ing)
		if err := ing.Validate(); err != nil {
			return err
		}
		if err := uc.ingredients.Update(ctx, ing); err != nil {
			return err
		}
		out = ing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IsLocked reports whether the ingredient is part of its deal's active formulation.
func (uc *UseCase) IsLocked(ctx context.Context, id string) (bool, error) {
	ing, err := uc.ingredients.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return uc.locked(ctx, ing)
}

func (uc *UseCase) ensureUnlocked(ctx context.Context, ing *domain.Ingredient) error {
	locked, err := uc.locked(ctx, ing)
	if err != nil {
		return err
	}
	if locked {
		return domain.Locked("ingredient", ing.ID)
	}
	return nil
}

func (uc *UseCase) locked(ctx context.Context, ing *domain.Ingredient) (bool, error) {
	active, err := uc.formulations.GetActive(ctx, ing.DealID)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveFormulation) {
			return false, nil
		}
		return false, err
	}
	_, ok := active.Ingredient(ing.ID)
	return ok, nil
}
