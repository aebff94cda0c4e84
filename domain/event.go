package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Aggregate kinds recorded on domain events.
const (
	KindDeal        = "deal"
	KindFormulation = "formulation"
	KindProposal    = "proposal"
	KindContract    = "settlement_contract"
	KindExecution   = "settlement_execution"
	KindUsage       = "usage"
)

// Domain event names fanned out to the notification subsystem.
const (
	EventFormulationSubmitted = "formulation.submitted"
	EventFormulationActivated = "formulation.activated"
	EventFormulationArchived  = "formulation.archived"
	EventProposalCreated      = "proposal.created"
	EventProposalResolved     = "proposal.resolved"
	EventExecutionCompleted   = "execution.completed"
	EventExecutionFailed      = "execution.failed"
	EventUsageRecorded        = "usage.recorded"
)

// Event represents a change applied to an aggregate instance. Events are
// append-only and double as the notification outbox.
type Event struct {
	ID            string            `json:"id"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateKind string            `json:"aggregate_kind"`
	Name          string            `json:"name"`
	Version       int               `json:"version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// NewEvent builds an event with a JSON payload. A payload that cannot be
// marshalled is recorded as null rather than dropping the event.
func NewEvent(kind, aggregateID, name string, version int, payload interface{}) Event {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage("null")
	}
	return Event{
		ID:            uuid.NewString(),
		AggregateID:   aggregateID,
		AggregateKind: kind,
		Name:          name,
		Version:       version,
		Payload:       raw,
		CreatedAt:     time.Now().UTC(),
	}
}
