package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/repository"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase"
)

// RecordCommand is the dispatcher name of buffered usage events.
var RecordCommand = usecase.CommandName("usage", "record")

// Subscriber is notified after a new usage event was committed. Duplicates
// are never delivered.
type Subscriber interface {
	OnUsageRecorded(ctx context.Context, event domain.UsageEvent) error
}

type UseCase struct {
	deals       repository.DealRepository
	ingredients repository.IngredientRepository
	usage       repository.UsageRepository
	credits     repository.CreditRepository
	tx          repository.Transactor
	locker      usecase.Locker
	emitter     *usecase.Emitter
	metrics     usecase.Metrics
	logger      *zap.Logger
	now         func() time.Time

	mu          sync.RWMutex
	subscribers []Subscriber
}

func New(repos repository.Registry, locker usecase.Locker, emitter *usecase.Emitter, metrics usecase.Metrics, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = usecase.NopMetrics{}
	}
	return &UseCase{
		deals:       repos.Deals,
		ingredients: repos.Ingredients,
		usage:       repos.Usage,
		credits:     repos.Credits,
		tx:          repos.Tx,
		locker:      locker,
		emitter:     emitter,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe registers a consumer of newly recorded usage.
func (uc *UseCase) Subscribe(s Subscriber) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.subscribers = append(uc.subscribers, s)
}

// Register wires the buffered record command into d.
func (uc *UseCase) Register(d *usecase.Dispatcher) {
	d.Register(RecordCommand, func(ctx context.Context, payload []byte) error {
		var event domain.UsageEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("decode usage event: %w", err)
		}
		_, _, err := uc.Record(ctx, event)
		return err
	})
}

// EventID derives the idempotency key of an event without one from the
// SHA-256 of its RFC 8785 canonical JSON.
func EventID(event domain.UsageEvent) (string, error) {
	key := struct {
		DealID       string `json:"deal_id"`
		IngredientID string `json:"ingredient_id"`
		UsageType    string `json:"usage_type"`
		Quantity     string `json:"quantity"`
		CostIncurred string `json:"cost_incurred"`
		RecordedAt   string `json:"recorded_at,omitempty"`
	}{
		DealID:       event.DealID,
		IngredientID: event.IngredientID,
		UsageType:    strings.TrimSpace(event.UsageType),
		Quantity:     canonicalDecimal(event.Quantity),
		CostIncurred: canonicalDecimal(event.CostIncurred),
	}
	if !event.RecordedAt.IsZero() {
		key.RecordedAt = event.RecordedAt.UTC().Format(time.RFC3339Nano)
	}
	raw, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("marshal usage event: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize usage event: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "usage_" + hex.EncodeToString(sum[:]), nil
}

// canonicalDecimal renders d without trailing fractional zeros, so 1, 1.0
// and 1E0 share a form.
func canonicalDecimal(d decimal.Decimal) string {
	return d.String()
}

// Record appends a usage event. It reports false when the id was already
// recorded, in which case nothing else happens. New events credit the
// ingredient owner's usage tier with quantity times the credit multiplier.
func (uc *UseCase) Record(ctx context.Context, event domain.UsageEvent) (*domain.UsageEvent, bool, error) {
	event.UsageType = strings.TrimSpace(event.UsageType)
	if err := event.Validate(); err != nil {
		return nil, false, err
	}
	if event.ID == "" {
		id, err := EventID(event)
		if err != nil {
			return nil, false, err
		}
		event.ID = id
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = uc.now()
	}

	ing, err := uc.ingredients.Get(ctx, event.IngredientID)
	if err != nil {
		return nil, false, err
	}
	if ing.DealID != event.DealID {
		return nil, false, domain.Validation("ingredient_id", "ingredient %s does not belong to deal %s", ing.ID, event.DealID)
	}

	var (
		created bool
		events  []domain.Event
	)
	err = usecase.WithLock(ctx, uc.locker, usecase.UsageKey(event.DealID), func() error {
		err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
			ok, err := uc.usage.Append(ctx, event)
			if err != nil || !ok {
				return err
			}
			created = true
			if err := uc.creditUsage(ctx, ing, event); err != nil {
				return err
			}
			events = append(events, domain.NewEvent(domain.KindUsage, event.ID, domain.EventUsageRecorded, 1, event))
			return uc.emitter.Record(ctx, events...)
		})
		if err != nil || !created {
			return err
		}
		uc.notify(ctx, event)
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	uc.metrics.UsageRecorded(!created)
	if !created {
		uc.logger.Debug("duplicate usage event ignored", zap.String("usage_id", event.ID))
		return &event, false, nil
	}
	uc.emitter.Publish(ctx, events...)
	uc.logger.Info("usage recorded",
		zap.String("usage_id", event.ID),
		zap.String("deal_id", event.DealID),
		zap.String("ingredient_id", event.IngredientID),
		zap.String("usage_type", event.UsageType),
		zap.String("quantity", event.Quantity.String()))
	return &event, true, nil
}

func (uc *UseCase) creditUsage(ctx context.Context, ing *domain.Ingredient, event domain.UsageEvent) error {
	if ing.OwnerID == "" {
		return nil
	}
	amount := event.Quantity.Mul(ing.Classification.CreditMultiplier)
	if !amount.IsPositive() {
		return nil
	}
	return uc.credits.Create(ctx, &domain.Credit{
		DealID:         event.DealID,
		ParticipantID:  ing.OwnerID,
		Tier:           domain.CreditUsage,
		Amount:         amount,
		Classification: ing.Classification.ValueCategory,
		Description:    fmt.Sprintf("%s usage of %s", event.UsageType, ing.Name),
		RecordedAt:     event.RecordedAt,
	})
}

// notify runs subscribers while the deal's usage lock is still held, so a
// subscriber observes summaries that include exactly this event.
func (uc *UseCase) notify(ctx context.Context, event domain.UsageEvent) {
	uc.mu.RLock()
	subs := append([]Subscriber(nil), uc.subscribers...)
	uc.mu.RUnlock()
	for _, s := range subs {
		if err := s.OnUsageRecorded(ctx, event); err != nil {
			uc.logger.Error("usage subscriber failed",
				zap.String("usage_id", event.ID),
				zap.String("deal_id", event.DealID),
				zap.Error(err))
		}
	}
}

func (uc *UseCase) ListEvents(ctx context.Context, filter repository.UsageListFilter) ([]domain.UsageEvent, error) {
	return uc.usage.List(ctx, filter)
}

func (uc *UseCase) Summaries(ctx context.Context, filter domain.UsageFilter) ([]domain.UsageSummary, error) {
	return uc.usage.Summaries(ctx, filter)
}

// Cumulative sums the recorded quantity matching filter.
func (uc *UseCase) Cumulative(ctx context.Context, filter domain.UsageFilter) (decimal.Decimal, error) {
	summaries, err := uc.usage.Summaries(ctx, filter)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.CumulativeQuantity(summaries, filter), nil
}

type CreditInput struct {
	DealID         string            `json:"deal_id"`
	ParticipantID  string            `json:"participant_id"`
	Tier           domain.CreditType `json:"tier"`
	Amount         decimal.Decimal   `json:"amount"`
	Classification string            `json:"classification"`
	Description    string            `json:"description"`
}

// AddCredit records a contribution or value credit. Usage credits only
// come from recorded usage.
func (uc *UseCase) AddCredit(ctx context.Context, in CreditInput) (*domain.Credit, error) {
	if in.Tier == domain.CreditUsage {
		return nil, domain.Validation("tier", "usage credits are derived from recorded usage")
	}
	d, err := uc.deals.Get(ctx, in.DealID)
	if err != nil {
		return nil, err
	}
	if !d.HasParticipant(in.ParticipantID) {
		return nil, domain.Validation("participant_id", "participant %s is not part of deal %s", in.ParticipantID, d.ID)
	}
	c := &domain.Credit{
		DealID:         d.ID,
		ParticipantID:  in.ParticipantID,
		Tier:           in.Tier,
		Amount:         in.Amount,
		Classification: in.Classification,
		Description:    in.Description,
		RecordedAt:     uc.now(),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := uc.credits.Create(ctx, c); err != nil {
		return nil, err
	}
	uc.logger.Info("credit recorded",
		zap.String("credit_id", c.ID),
		zap.String("deal_id", c.DealID),
		zap.String("participant_id", c.ParticipantID),
		zap.String("tier", string(c.Tier)))
	return c, nil
}

// VerifyCredit marks a value credit as verified so it counts in summaries.
func (uc *UseCase) VerifyCredit(ctx context.Context, id, verifier string) (*domain.Credit, error) {
	c, err := uc.credits.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.Verify(verifier, uc.now()); err != nil {
		return nil, err
	}
	if err := uc.credits.Update(ctx, c); err != nil {
		return nil, err
	}
	uc.logger.Info("credit verified", zap.String("credit_id", c.ID), zap.String("verified_by", verifier))
	return c, nil
}

func (uc *UseCase) GetCredit(ctx context.Context, id string) (*domain.Credit, error) {
	return uc.credits.Get(ctx, id)
}

func (uc *UseCase) ListCredits(ctx context.Context, filter repository.CreditFilter) ([]domain.Credit, error) {
	return uc.credits.List(ctx, filter)
}

// CreditSummary totals the deal's credits per participant and tier.
func (uc *UseCase) CreditSummary(ctx context.Context, dealID string) ([]domain.CreditSummary, error) {
	if _, err := uc.deals.Get(ctx, dealID); err != nil {
		return nil, err
	}
	credits, err := uc.credits.List(ctx, repository.CreditFilter{DealID: dealID})
	if err != nil {
		return nil, err
	}
	return domain.SummarizeCredits(credits), nil
}
