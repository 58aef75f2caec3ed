package broker

import (
	"bytes"
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/nerrad567/gray-logic-things/internal/infrastructure/config"
)

// shutdownTimeout bounds how long Stop waits for client disconnections.
const shutdownTimeout = 5 * time.Second

// Broker is an embedded MQTT broker.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Broker struct {
	server  *mqtt.Server
	address string
	logger  *slog.Logger

	mu      sync.RWMutex
	running bool
}

// New creates a broker listening on cfg.Host:cfg.Port once started.
//
// A nil logger discards mochi's own log output.
func New(cfg config.EmbeddedBrokerConfig, creds config.MQTTAuthConfig, logger *slog.Logger) (*Broker, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	server := mqtt.New(&mqtt.Options{
		InlineClient: true,
		Logger:       logger,
	})

	var err error
	if creds.Username == "" {
		// mochi refuses every connection unless an auth hook is present.
		err = server.AddHook(new(auth.AllowHook), nil)
	} else {
		err = server.AddHook(&credentialHook{username: creds.Username, password: creds.Password}, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("adding auth hook: %w", err)
	}

	return &Broker{
		server:  server,
		address: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		logger:  logger,
	}, nil
}

// Address returns the host:port the broker listens on.
func (b *Broker) Address() string {
	return b.address
}

// Start attaches the TCP listener and begins serving in the background.
func (b *Broker) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return ErrAlreadyRunning
	}

	listener := listeners.NewTCP(listeners.Config{
		ID:      "things-tcp",
		Address: b.address,
	})
	if err := b.server.AddListener(listener); err != nil {
		return fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	go func() {
		if err := b.server.Serve(); err != nil {
			b.logger.Error("embedded broker stopped", "error", err)
		}
	}()

	b.running = true
	b.logger.Info("embedded MQTT broker started", "address", b.address)
	return nil
}

// Stop closes the listener and disconnects every client.
// Stopping a broker that is not running is a no-op.
func (b *Broker) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- b.server.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("closing broker: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("closing broker: %w", ctx.Err())
	}
}

// IsRunning reports whether Start has succeeded and Stop has not been called.
func (b *Broker) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// Publish injects a message as if a client had published it.
func (b *Broker) Publish(topic string, payload []byte, qos byte, retain bool) error {
	if !b.IsRunning() {
		return ErrNotRunning
	}
	return b.server.Publish(topic, payload, retain, qos)
}

// credentialHook accepts clients presenting one fixed username/password pair.
type credentialHook struct {
	mqtt.HookBase
	username string
	password string
}

func (h *credentialHook) ID() string {
	return "things-credentials"
}

func (h *credentialHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnConnectAuthenticate,
		mqtt.OnACLCheck,
	}, []byte{b})
}

func (h *credentialHook) OnConnectAuthenticate(cl *mqtt.Client, pk packets.Packet) bool {
	userOK := subtle.ConstantTimeCompare(cl.Properties.Username, []byte(h.username)) == 1
	passOK := subtle.ConstantTimeCompare(pk.Connect.Password, []byte(h.password)) == 1
	return userOK && passOK
}

func (h *credentialHook) OnACLCheck(*mqtt.Client, string, bool) bool {
	return true
}
