package httpclient

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-things/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-things/internal/protocol"
)

// Factory owns the HTTP connection pool shared by its clients.
type Factory struct {
	cfg config.HTTPClientConfig

	mu        sync.Mutex
	transport *http.Transport
}

// NewFactory creates a factory. Nothing is allocated until Init.
func NewFactory(cfg config.HTTPClientConfig) *Factory {
	return &Factory{cfg: cfg}
}

// Init implements protocol.ClientFactory.
func (f *Factory) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transport != nil {
		return nil
	}

	t, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		t = &http.Transport{}
	} else {
		t = t.Clone()
	}
	if f.cfg.MaxIdleConns > 0 {
		t.MaxIdleConns = f.cfg.MaxIdleConns
		t.MaxIdleConnsPerHost = f.cfg.MaxIdleConns
	}
	t.IdleConnTimeout = 90 * time.Second
	f.transport = t
	return nil
}

// Client implements protocol.ClientFactory. Each call returns a new stopped
// client sharing the factory's transport.
func (f *Factory) Client() (protocol.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transport == nil {
		return nil, protocol.ErrNotInitialised
	}
	return &Client{
		httpClient: &http.Client{
			Transport: f.transport,
			Timeout:   f.cfg.GetTimeout(),
		},
		token: f.cfg.Token,
	}, nil
}

// Destroy implements protocol.ClientFactory.
func (f *Factory) Destroy(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transport != nil {
		f.transport.CloseIdleConnections()
		f.transport = nil
	}
	return nil
}
