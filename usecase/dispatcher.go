package usecase

import (
	"context"
	"fmt"
	"sync"
)

// CommandHandler executes one named command with a raw JSON payload.
type CommandHandler func(ctx context.Context, payload []byte) error

// Dispatcher routes buffered commands to the use case that owns them.
type Dispatcher struct {
	handlers map[string]CommandHandler
	mu       sync.RWMutex
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]CommandHandler),
	}
}

func (d *Dispatcher) Register(name string, handler CommandHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = handler
}

func (d *Dispatcher) Handles(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[name]
	return ok
}

func (d *Dispatcher) Execute(ctx context.Context, name string, payload []byte) error {
	d.mu.RLock()
	handler, ok := d.handlers[name]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("command handler %s not registered", name)
	}
	return handler(ctx, payload)
}

// CommandName joins an entity and an operation into a dispatcher key.
func CommandName(entity, operation string) string {
	return entity + "." + operation
}
