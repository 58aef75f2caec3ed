package local

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/gray-logic-things/internal/protocol"
	"github.com/nerrad567/gray-logic-things/internal/thing"
)

var errNilRegistry = errors.New("local: nil registry")

// Factory hands out the single Client serving a Registry.
type Factory struct {
	registry *thing.Registry

	mu     sync.Mutex
	client *Client
}

// NewFactory creates a factory over registry.
func NewFactory(registry *thing.Registry) *Factory {
	return &Factory{registry: registry}
}

// Init implements protocol.ClientFactory.
func (f *Factory) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.registry == nil {
		return errNilRegistry
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil {
		f.client = NewClient(f.registry)
	}
	return nil
}

// Client implements protocol.ClientFactory. Init must have succeeded.
func (f *Factory) Client() (protocol.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil {
		return nil, protocol.ErrNotInitialised
	}
	return f.client, nil
}

// Destroy implements protocol.ClientFactory.
func (f *Factory) Destroy(context.Context) error {
	f.mu.Lock()
	f.client = nil
	f.mu.Unlock()
	return nil
}
