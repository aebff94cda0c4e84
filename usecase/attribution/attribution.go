package attribution

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase"
)

type UseCase struct {
	deals        repository.DealRepository
	formulations repository.FormulationRepository
	rules        repository.RuleRepository
	locker       usecase.Locker
	logger       *zap.Logger
}

func New(repos repository.Registry, locker usecase.Locker, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		deals:        repos.Deals,
		formulations: repos.Formulations,
		rules:        repos.Rules,
		locker:       locker,
		logger:       logger,
	}
}

type RuleInput struct {
	FormulationID    string            `json:"formulation_id"`
	ParticipantID    string            `json:"participant_id"`
	CreditType       domain.CreditType `json:"credit_type"`
	PayoutPercentage decimal.Decimal   `json:"payout_percentage"`
	MinPayout        *decimal.Decimal  `json:"min_payout,omitempty"`
	MaxPayout        *decimal.Decimal  `json:"max_payout,omitempty"`
}

// CreateRule adds a rule to a draft formulation. The sum across participants
// is not enforced here; see TotalActivePercentage.
func (uc *UseCase) CreateRule(ctx context.Context, in RuleInput) (*domain.AttributionRule, error) {
	var out *domain.AttributionRule
	err := usecase.WithLock(ctx, uc.locker, usecase.FormulationKey(in.FormulationID), func() error {
		f, err := uc.editableFormulation(ctx, in.FormulationID)
		if err != nil {
			return err
		}
		rule, err := uc.buildRule(ctx, f, in)
		if err != nil {
			return err
		}
		if err := uc.rules.Create(ctx, rule); err != nil {
			return err
		}
		out = rule
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.logger.Info("attribution rule created",
		zap.String("rule_id", out.ID),
		zap.String("formulation_id", out.FormulationID),
		zap.String("participant_id", out.ParticipantID),
		zap.String("payout_percentage", out.PayoutPercentage.String()))
	return out, nil
}

// UpdateRule edits a rule of a draft formulation.
func (uc *UseCase) UpdateRule(ctx context.Context, id string, changes domain.RuleChanges) (*domain.AttributionRule, error) {
	return uc.mutateRule(ctx, id, func(rule *domain.AttributionRule) error {
		changes.ApplyTo(rule)
		return rule.Validate()
	})
}

// DeactivateRule soft-deletes a rule of a draft formulation.
func (uc *UseCase) DeactivateRule(ctx context.Context, id string) (*domain.AttributionRule, error) {
	return uc.mutateRule(ctx, id, func(rule *domain.AttributionRule) error {
		rule.IsActive = false
		return nil
	})
}

func (uc *UseCase) mutateRule(ctx context.Context, id string, mutate func(rule *domain.AttributionRule) error) (*domain.AttributionRule, error) {
	rule, err := uc.rules.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	err = usecase.WithLock(ctx, uc.locker, usecase.FormulationKey(rule.FormulationID), func() error {
		if _, err := uc.editableFormulation(ctx, rule.FormulationID); err != nil {
			return err
		}
		rule, err = uc.rules.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := mutate(rule); err != nil {
			return err
		}
		return uc.rules.Update(ctx, rule)
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func (uc *UseCase) Get(ctx context.Context, id string) (*domain.AttributionRule, error) {
	return uc.rules.Get(ctx, id)
}

func (uc *UseCase) List(ctx context.Context, filter repository.RuleFilter) ([]domain.AttributionRule, error) {
	return uc.rules.List(ctx, filter)
}

// ListActive returns the active rules of a formulation in creation order.
func (uc *UseCase) ListActive(ctx context.Context, formulationID string) ([]domain.AttributionRule, error) {
	return uc.rules.List(ctx, repository.RuleFilter{FormulationID: formulationID, ActiveOnly: true})
}

// Allocation is the active percentage total of a formulation.
type Allocation struct {
	FormulationID string                  `json:"formulation_id"`
	Total         decimal.Decimal         `json:"total"`
	Status        domain.AllocationStatus `json:"status"`
}

func (uc *UseCase) TotalActivePercentage(ctx context.Context, formulationID string) (Allocation, error) {
	if _, err := uc.formulations.Get(ctx, formulationID); err != nil {
		return Allocation{}, err
	}
	rules, err := uc.ListActive(ctx, formulationID)
	if err != nil {
		return Allocation{}, err
	}
	total, status := domain.TotalActivePercentage(rules)
	return Allocation{FormulationID: formulationID, Total: total, Status: status}, nil
}

// ApplyRuleChange applies an approved rule proposal and bumps the version of
// the owning formulation. It bypasses the composition lock and must only run
// inside the proposal engine's transaction.
func (uc *UseCase) ApplyRuleChange(ctx context.Context, p *domain.ChangeProposal) error {
	if p.Status != domain.ProposalApproved {
		return domain.StateErr("proposal", "proposal %s is %s, only approved proposals apply", p.ID, p.Status)
	}

	var changes domain.RuleChanges
	if len(p.ProposedChanges) > 0 {
		if err := json.Unmarshal(p.ProposedChanges, &changes); err != nil {
			return domain.Validation("proposed_changes", "cannot decode rule changes: %v", err)
		}
	}

	var formulationID string
	switch p.ChangeType {
	case domain.ChangeModify, domain.ChangeRemove:
		if p.RuleID == nil || *p.RuleID == "" {
			return domain.Validation("rule_id", "%s proposals need a rule", p.ChangeType)
		}
		rule, err := uc.rules.Get(ctx, *p.RuleID)
		if err != nil {
			return err
		}
		if p.ChangeType == domain.ChangeRemove {
			rule.IsActive = false
		} else {
			changes.ApplyTo(rule)
			if err := rule.Validate(); err != nil {
				return err
			}
		}
		if err := uc.rules.Update(ctx, rule); err != nil {
			return err
		}
		formulationID = rule.FormulationID

	case domain.ChangeAdd:
		f, err := uc.formulations.Get(ctx, p.FormulationID)
		if err != nil {
			return err
		}
		in := RuleInput{FormulationID: f.ID, MinPayout: changes.MinPayout, MaxPayout: changes.MaxPayout}
		if changes.ParticipantID != nil {
			in.ParticipantID = *changes.ParticipantID
		}
		if changes.CreditType != nil {
			in.CreditType = *changes.CreditType
		}
		if changes.PayoutPercentage != nil {
			in.PayoutPercentage = *changes.PayoutPercentage
		}
		rule, err := uc.buildRule(ctx, f, in)
		if err != nil {
			return err
		}
		if err := uc.rules.Create(ctx, rule); err != nil {
			return err
		}
		id := rule.ID
		p.RuleID = &id
		formulationID = f.ID

	default:
		return domain.Validation("change_type", "unknown change type %q", p.ChangeType)
	}

	f, err := uc.formulations.Get(ctx, formulationID)
	if err != nil {
		return err
	}
	if f.Status == domain.FormulationArchived {
		return domain.StateErr("formulation", "formulation %s is archived", f.ID)
	}
	if err := uc.formulations.Update(ctx, f); err != nil {
		return err
	}
	uc.logger.Info("proposal applied to rules",
		zap.String("proposal_id", p.ID),
		zap.String("formulation_id", f.ID),
		zap.String("change_type", string(p.ChangeType)),
		zap.Int("version", f.Version))
	return nil
}

func (uc *UseCase) editableFormulation(ctx context.Context, id string) (*domain.Formulation, error) {
	f, err := uc.formulations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := f.EnsureEditable(); err != nil {
		return nil, err
	}
	return f, nil
}

func (uc *UseCase) buildRule(ctx context.Context, f *domain.Formulation, in RuleInput) (*domain.AttributionRule, error) {
	d, err := uc.deals.Get(ctx, f.DealID)
	if err != nil {
		return nil, err
	}
	if in.ParticipantID != "" && !d.HasParticipant(in.ParticipantID) {
		return nil, domain.Validation("participant_id", "participant %s is not part of deal %s", in.ParticipantID, d.ID)
	}
	rule := &domain.AttributionRule{
		DealID:           f.DealID,
		FormulationID:    f.ID,
		ParticipantID:    in.ParticipantID,
		CreditType:       in.CreditType,
		PayoutPercentage: in.PayoutPercentage,
		MinPayout:        in.MinPayout,
		MaxPayout:        in.MaxPayout,
		IsActive:         true,
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}
