package mqttclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-things/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-things/internal/protocol"
)

// Logger defines the logging interface used by this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Factory owns the MQTT session its clients share.
//
// NewFactory connects its own session in Init and closes it in Destroy.
// NewSharedFactory borrows a session owned elsewhere and never closes it.
type Factory struct {
	cfg    config.MQTTConfig
	shared *mqtt.Client
	logger Logger

	mu      sync.Mutex
	conn    *mqtt.Client
	clients int
}

// NewFactory creates a factory that connects with cfg on Init.
func NewFactory(cfg config.MQTTConfig) *Factory {
	return &Factory{cfg: cfg, logger: noopLogger{}}
}

// NewSharedFactory creates a factory over an existing connection.
func NewSharedFactory(conn *mqtt.Client, cfg config.MQTTConfig) *Factory {
	return &Factory{cfg: cfg, shared: conn, logger: noopLogger{}}
}

// SetLogger sets the logger handed to clients created afterwards.
func (f *Factory) SetLogger(logger Logger) {
	f.mu.Lock()
	f.logger = logger
	f.mu.Unlock()
}

// Init implements protocol.ClientFactory.
func (f *Factory) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		return nil
	}
	if f.shared != nil {
		f.conn = f.shared
		return nil
	}

	conn, err := mqtt.Connect(ctx, f.cfg)
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	conn.SetLogger(f.logger)
	f.conn = conn
	f.logger.Info("mqtt protocol client connected", "client_id", conn.ClientID())
	return nil
}

// Client implements protocol.ClientFactory. Every client gets its own
// reply topic on the shared session.
func (f *Factory) Client() (protocol.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil, protocol.ErrNotInitialised
	}

	f.clients++
	replyID := mqtt.EscapeSegment(fmt.Sprintf("%s-%d", f.conn.ClientID(), f.clients))
	return newClient(f.conn, replyID, f.cfg.GetRequestTimeout(), f.logger), nil
}

// Destroy implements protocol.ClientFactory.
func (f *Factory) Destroy(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	conn := f.conn
	f.conn = nil
	if conn == nil || conn == f.shared {
		return nil
	}
	return conn.Close()
}
