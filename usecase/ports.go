package usecase

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
)

// EventPublisher fans domain events out to the notification subsystem.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Locker serializes writers of one aggregate across goroutines or instances.
type Locker interface {
	// Acquire blocks until key is held or ctx is done.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// ParticipantDirectory resolves participant ids owned by an external system.
type ParticipantDirectory interface {
	DisplayName(ctx context.Context, participantID string) (string, error)
}

// UsageBuffer abstracts the durable usage inbox so callers stay storage-agnostic.
// It returns the idempotency key the event will be recorded under.
type UsageBuffer interface {
	BufferUsage(ctx context.Context, event domain.UsageEvent) (string, error)
}

// Metrics receives engine counters.
type Metrics interface {
	ExecutionFinished(status domain.ExecutionStatus, amount decimal.Decimal)
	ProposalResolved(status domain.ProposalStatus)
	UsageRecorded(duplicate bool)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) ExecutionFinished(domain.ExecutionStatus, decimal.Decimal) {}
func (NopMetrics) ProposalResolved(domain.ProposalStatus)                   {}
func (NopMetrics) UsageRecorded(bool)                                       {}

// Lock keys.
func FormulationKey(id string) string { return "formulation:" + id }
func ProposalKey(id string) string    { return "proposal:" + id }
func ContractKey(id string) string    { return "contract:" + id }
func DealKey(id string) string        { return "deal:" + id }
func UsageKey(dealID string) string   { return "usage:" + dealID }

// WithLock runs fn while holding key. A nil locker runs fn unguarded.
func WithLock(ctx context.Context, l Locker, key string, fn func() error) error {
	if l == nil {
		return fn()
	}
	release, err := l.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
