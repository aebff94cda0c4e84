package services

import (
	"context"
	"encoding/json"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/infrastructure/buffer"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/ledger"
)

// BufferBridge turns usage events into inbox items.
type BufferBridge struct {
	processor *BufferProcessor
}

func NewBufferBridge(processor *BufferProcessor) *BufferBridge {
	return &BufferBridge{processor: processor}
}

// BufferUsage validates the event, fixes its idempotency key and stores it
// durably. The key is derived before enqueueing so a client retry of the
// same payload collapses onto the same ledger entry.
func (b *BufferBridge) BufferUsage(_ context.Context, event domain.UsageEvent) (string, error) {
	if b.processor == nil {
		return "", domain.ErrInvalidPayload
	}
	if err := event.Validate(); err != nil {
		return "", err
	}
	if event.ID == "" {
		id, err := ledger.EventID(event)
		if err != nil {
			return "", err
		}
		event.ID = id
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	_, err = b.processor.Accept(buffer.Item{
		ID:       event.ID,
		Command:  ledger.RecordCommand,
		DealID:   event.DealID,
		Payload:  payload,
		Priority: 3,
	})
	if err != nil {
		return "", err
	}
	return event.ID, nil
}

var _ usecase.UsageBuffer = (*BufferBridge)(nil)
