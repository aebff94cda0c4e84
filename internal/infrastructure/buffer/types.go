package buffer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	bucketPending = "inbox"
	bucketDead    = "dead_letter"

	defaultPriority = 3
)

// Item is a command accepted by the API and waiting to be applied by the
// engine. Command names a dispatcher handler; Payload is its JSON input.
type Item struct {
	ID         string          `json:"id"`
	Command    string          `json:"command"`
	DealID     string          `json:"deal_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	Priority   int             `json:"priority"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"last_error,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	key []byte
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Priority <= 0 || i.Priority > 5 {
		i.Priority = defaultPriority
	}
	if i.EnqueuedAt.IsZero() {
		i.EnqueuedAt = time.Now().UTC()
	}
}

// Stats is a snapshot of the inbox depth.
type Stats struct {
	Pending int `json:"pending"`
	Dead    int `json:"dead"`
}
