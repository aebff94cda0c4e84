package deal

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase"
)

type UseCase struct {
	deals           repository.DealRepository
	locker          usecase.Locker
	directory       usecase.ParticipantDirectory
	defaultCurrency string
	logger          *zap.Logger
}

func New(
	deals repository.DealRepository,
	locker usecase.Locker,
	directory usecase.ParticipantDirectory,
	defaultCurrency string,
	logger *zap.Logger,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		deals:           deals,
		locker:          locker,
		directory:       directory,
		defaultCurrency: domain.NormalizeCurrency(defaultCurrency),
		logger:          logger,
	}
}

type CreateInput struct {
	Name         string   `json:"name"`
	Currency     string   `json:"currency"`
	Participants []string `json:"participants"`
}

func (uc *UseCase) Create(ctx context.Context, in CreateInput) (*domain.Deal, error) {
	currency := uc.defaultCurrency
	if strings.TrimSpace(in.Currency) != "" {
		currency = domain.NormalizeCurrency(in.Currency)
	}
	d := &domain.Deal{
		Name:         strings.TrimSpace(in.Name),
		Currency:     currency,
		Participants: in.Participants,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := uc.deals.Create(ctx, d); err != nil {
		return nil, err
	}
	uc.logger.Info("deal created", zap.String("deal_id", d.ID), zap.Int("participants", len(d.Participants)))
	return d, nil
}

func (uc *UseCase) Get(ctx context.Context, id string) (*domain.Deal, error) {
	return uc.deals.Get(ctx, id)
}

func (uc *UseCase) List(ctx context.Context, filter repository.DealFilter) ([]domain.Deal, error) {
	return uc.deals.List(ctx, filter)
}

// AddParticipant joins a participant to the deal. Proposals opened earlier
// keep the participant snapshot they were created with.
func (uc *UseCase) AddParticipant(ctx context.Context, dealID, participantID string) (*domain.Deal, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, domain.Validation("participant_id", "must not be empty")
	}

	var out *domain.Deal
	err := usecase.WithLock(ctx, uc.locker, usecase.DealKey(dealID), func() error {
		d, err := uc.deals.Get(ctx, dealID)
		if err != nil {
			return err
		}
		if d.HasParticipant(participantID) {
			out = d
			return nil
		}
		d.Participants = append(d.Participants, participantID)
		if err := uc.deals.Update(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.logger.Info("participant joined deal", zap.String("deal_id", dealID), zap.String("participant_id", participantID))
	return out, nil
}

// Participant pairs an id with the directory's display name.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Participants resolves display names; unknown ids fall back to the id.
func (uc *UseCase) Participants(ctx context.Context, dealID string) ([]Participant, error) {
	d, err := uc.deals.Get(ctx, dealID)
	if err != nil {
		return nil, err
	}
	out := make([]Participant, 0, len(d.Participants))
	for _, id := range d.Participants {
		name := id
		if uc.directory != nil {
			if resolved, err := uc.directory.DisplayName(ctx, id); err == nil && resolved != "" {
				name = resolved
			} else if err != nil {
				uc.logger.Debug("participant lookup failed", zap.String("participant_id", id), zap.Error(err))
			}
		}
		out = append(out, Participant{ID: id, DisplayName: name})
	}
	return out, nil
}
