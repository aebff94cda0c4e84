package proposal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase"
)

// IngredientApplier mutates ingredients once an ingredient proposal passes.
type IngredientApplier interface {
	ApplyIngredientChange(ctx context.Context, p *domain.ChangeProposal) error
}

// RuleApplier mutates attribution rules once a rule proposal passes.
type RuleApplier interface {
	ApplyRuleChange(ctx context.Context, p *domain.ChangeProposal) error
}

// Options carries the voting policy.
type Options struct {
	// AllowRevote lets a participant change a cast vote while the proposal
	// is pending.
	AllowRevote bool
}

type UseCase struct {
	deals        repository.DealRepository
	formulations repository.FormulationRepository
	ingredients  repository.IngredientRepository
	rules        repository.RuleRepository
	proposals    repository.ProposalRepository
	tx           repository.Transactor
	locker       usecase.Locker
	emitter      *usecase.Emitter
	metrics      usecase.Metrics
	ingredientFx IngredientApplier
	ruleFx       RuleApplier
	validator    *changeValidator
	opts         Options
	logger       *zap.Logger
	now          func() time.Time
}

func New(
	repos repository.Registry,
	locker usecase.Locker,
	emitter *usecase.Emitter,
	metrics usecase.Metrics,
	ingredientFx IngredientApplier,
	ruleFx RuleApplier,
	opts Options,
	logger *zap.Logger,
) (*UseCase, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = usecase.NopMetrics{}
	}
	validator, err := newChangeValidator()
	if err != nil {
		return nil, err
	}
	return &UseCase{
		deals:        repos.Deals,
		formulations: repos.Formulations,
		ingredients:  repos.Ingredients,
		rules:        repos.Rules,
		proposals:    repos.Proposals,
		tx:           repos.Tx,
		locker:       locker,
		emitter:      emitter,
		metrics:      metrics,
		ingredientFx: ingredientFx,
		ruleFx:       ruleFx,
		validator:    validator,
		opts:         opts,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

type CreateInput struct {
	DealID          string                `json:"deal_id"`
	FormulationID   string                `json:"formulation_id"`
	Target          domain.ProposalTarget `json:"target"`
	IngredientID    *string               `json:"ingredient_id,omitempty"`
	RuleID          *string               `json:"rule_id,omitempty"`
	ChangeType      domain.ChangeType     `json:"change_type"`
	ProposedChanges json.RawMessage       `json:"proposed_changes"`
	Justification   string                `json:"justification"`
	ProposerID      string                `json:"-"`
}

// Create opens a proposal with every deal participant as an eligible voter
// and the proposer's approval already recorded. Single-participant deals
// resolve, and apply, immediately.
func (uc *UseCase) Create(ctx context.Context, in CreateInput) (*domain.ChangeProposal, error) {
	if in.Target == "" {
		in.Target = domain.TargetIngredient
	}
	if !in.ChangeType.Valid() {
		return nil, domain.Validation("change_type", "unknown change type %q", in.ChangeType)
	}

	d, err := uc.deals.Get(ctx, in.DealID)
	if err != nil {
		return nil, err
	}
	if !d.HasParticipant(in.ProposerID) {
		return nil, domain.Consensus("proposer %s is not a participant of deal %s", in.ProposerID, d.ID)
	}
	if err := uc.checkTarget(ctx, d, &in); err != nil {
		return nil, err
	}
	if err := uc.validator.Validate(in.Target, in.ChangeType, in.ProposedChanges); err != nil {
		return nil, err
	}

	p := &domain.ChangeProposal{
		ID:              uuid.NewString(),
		DealID:          d.ID,
		FormulationID:   in.FormulationID,
		Target:          in.Target,
		IngredientID:    in.IngredientID,
		RuleID:          in.RuleID,
		ChangeType:      in.ChangeType,
		ProposedChanges: in.ProposedChanges,
		Justification:   in.Justification,
		ProposerID:      in.ProposerID,
	}
	if len(p.ProposedChanges) == 0 {
		p.ProposedChanges = json.RawMessage("{}")
	}
	p.Open(d.Participants, uc.now())

	var events []domain.Event
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if p.Status == domain.ProposalApproved {
			if err := uc.apply(ctx, p); err != nil {
				return err
			}
		}
		if err := uc.proposals.Create(ctx, p); err != nil {
			return err
		}
		events = append(events, domain.NewEvent(domain.KindProposal, p.ID, domain.EventProposalCreated, p.Version, p))
		if p.Status.IsTerminal() {
			events = append(events, uc.resolvedEvent(p))
		}
		return uc.emitter.Record(ctx, events...)
	})
	if err != nil {
		return nil, err
	}
	uc.emitter.Publish(ctx, events...)
	if p.Status.IsTerminal() {
		uc.metrics.ProposalResolved(p.Status)
	}
	uc.logger.Info("change proposal created",
		zap.String("proposal_id", p.ID),
		zap.String("deal_id", p.DealID),
		zap.String("target", string(p.Target)),
		zap.String("change_type", string(p.ChangeType)),
		zap.String("status", string(p.Status)))
	return p, nil
}

// Vote records a participant's decision. Votes on one proposal are
// serialized; the stored version guards writers on other instances.
func (uc *UseCase) Vote(ctx context.Context, proposalID, participantID string, approve bool) (*domain.ChangeProposal, error) {
	var (
		out    *domain.ChangeProposal
		events []domain.Event
	)
	err := usecase.WithLock(ctx, uc.locker, usecase.ProposalKey(proposalID), func() error {
		return uc.tx.WithinTx(ctx, func(ctx context.Context) error {
			p, err := uc.proposals.Get(ctx, proposalID)
			if err != nil {
				return err
			}
			if err := p.CastVote(participantID, domain.VoteFromBool(approve), uc.opts.AllowRevote, uc.now()); err != nil {
				return err
			}
			if p.Status == domain.ProposalApproved {
				if err := uc.apply(ctx, p); err != nil {
					return err
				}
			}
			if err := uc.proposals.Update(ctx, p); err != nil {
				return err
			}
			out = p
			if p.Status.IsTerminal() {
				events = append(events, uc.resolvedEvent(p))
				return uc.emitter.Record(ctx, events...)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	uc.emitter.Publish(ctx, events...)
	uc.logger.Info("vote recorded",
		zap.String("proposal_id", proposalID),
		zap.String("participant_id", participantID),
		zap.Bool("approve", approve),
		zap.String("status", string(out.Status)))
	if out.Status.IsTerminal() {
		uc.metrics.ProposalResolved(out.Status)
	}
	return out, nil
}

func (uc *UseCase) Get(ctx context.Context, id string) (*domain.ChangeProposal, error) {
	return uc.proposals.Get(ctx, id)
}

func (uc *UseCase) List(ctx context.Context, filter repository.ProposalFilter) ([]domain.ChangeProposal, error) {
	return uc.proposals.List(ctx, filter)
}

func (uc *UseCase) apply(ctx context.Context, p *domain.ChangeProposal) error {
	switch p.Target {
	case domain.TargetIngredient:
		if uc.ingredientFx == nil {
			return domain.NewError(domain.ErrCodeInternal, "ingredient changes are not wired")
		}
		return uc.ingredientFx.ApplyIngredientChange(ctx, p)
	case domain.TargetRule:
		if uc.ruleFx == nil {
			return domain.NewError(domain.ErrCodeInternal, "rule changes are not wired")
		}
		return uc.ruleFx.ApplyRuleChange(ctx, p)
	}
	return domain.Validation("target", "unknown proposal target %q", p.Target)
}

func (uc *UseCase) resolvedEvent(p *domain.ChangeProposal) domain.Event {
	approved, rejected, unset := p.Tally()
	return domain.NewEvent(domain.KindProposal, p.ID, domain.EventProposalResolved, p.Version, map[string]interface{}{
		"deal_id":     p.DealID,
		"status":      p.Status,
		"change_type": p.ChangeType,
		"approved":    approved,
		"rejected":    rejected,
		"unset":       unset,
	})
}

func (uc *UseCase) checkTarget(ctx context.Context, d *domain.Deal, in *CreateInput) error {
	switch in.Target {
	case domain.TargetIngredient:
		in.RuleID = nil
		if in.ChangeType == domain.ChangeAdd {
			if in.IngredientID != nil && *in.IngredientID != "" {
				return domain.Validation("ingredient_id", "add proposals create a new ingredient")
			}
			in.IngredientID = nil
			break
		}
		if in.IngredientID == nil || *in.IngredientID == "" {
			return domain.Validation("ingredient_id", "%s proposals need an ingredient", in.ChangeType)
		}
		ing, err := uc.ingredients.Get(ctx, *in.IngredientID)
		if err != nil {
			return err
		}
		if ing.DealID != d.ID {
			return domain.Validation("ingredient_id", "ingredient %s belongs to another deal", ing.ID)
		}
		if ing.IsRetired() {
			return domain.StateErr("ingredient", "ingredient %s is retired", ing.ID)
		}

	case domain.TargetRule:
		in.IngredientID = nil
		if in.ChangeType == domain.ChangeAdd {
			if in.FormulationID == "" {
				return domain.Validation("formulation_id", "rule additions need a formulation")
			}
			in.RuleID = nil
			break
		}
		if in.RuleID == nil || *in.RuleID == "" {
			return domain.Validation("rule_id", "%s proposals need a rule", in.ChangeType)
		}
		rule, err := uc.rules.Get(ctx, *in.RuleID)
		if err != nil {
			return err
		}
		if rule.DealID != d.ID {
			return domain.Validation("rule_id", "rule %s belongs to another deal", rule.ID)
		}
		if in.FormulationID == "" {
			in.FormulationID = rule.FormulationID
		}

	default:
		return domain.Validation("target", "unknown proposal target %q", in.Target)
	}

	if in.FormulationID != "" {
		f, err := uc.formulations.Get(ctx, in.FormulationID)
		if err != nil {
			return err
		}
		if f.DealID != d.ID {
			return domain.Validation("formulation_id", "formulation %s belongs to another deal", f.ID)
		}
		if f.Status == domain.FormulationArchived {
			return domain.StateErr("formulation", "formulation %s is archived", f.ID)
		}
	}
	return nil
}
