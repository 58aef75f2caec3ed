package protocol

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Logger defines the logging interface used by the Dispatcher.
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

// Dispatcher routes resource verbs to the client serving each URI's scheme.
//
// Clients are registered directly or through their factory. Start starts
// every distinct client once; Stop stops them in reverse registration order
// and then destroys the factories.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Verb calls only take a read
//     lock to select the client; the clients handle their own concurrency.
type Dispatcher struct {
	mu        sync.RWMutex
	byScheme  map[string]Client
	clients   []Client
	factories []ClientFactory
	logger    Logger
}

// NewDispatcher creates a dispatcher with no clients.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		byScheme: make(map[string]Client),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.mu.Lock()
	d.logger = logger
	d.mu.Unlock()
}

// Register adds a client under every scheme it serves. Nothing is
// registered if any of its schemes is already taken.
func (d *Dispatcher) Register(c Client) error {
	schemes := c.Schemes()
	if len(schemes) == 0 {
		return ErrNoSchemes
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, s := range schemes {
		if _, taken := d.byScheme[strings.ToLower(s)]; taken {
			return fmt.Errorf("%w: %s", ErrSchemeConflict, s)
		}
	}
	for _, s := range schemes {
		d.byScheme[strings.ToLower(s)] = c
	}
	d.clients = append(d.clients, c)
	d.logger.Debug("protocol client registered", "schemes", schemes)
	return nil
}

// RegisterFactory initialises a factory, registers the client it produces
// and remembers the factory so Stop can destroy it. If registration fails
// the factory is destroyed again.
func (d *Dispatcher) RegisterFactory(ctx context.Context, f ClientFactory) (Client, error) {
	if err := f.Init(ctx); err != nil {
		return nil, wrapLifecycle("init", err)
	}

	c, err := f.Client()
	if err == nil {
		err = d.Register(c)
	}
	if err != nil {
		if derr := f.Destroy(ctx); derr != nil {
			err = errors.Join(err, wrapLifecycle("destroy", derr))
		}
		return nil, err
	}

	d.mu.Lock()
	d.factories = append(d.factories, f)
	d.mu.Unlock()
	return c, nil
}

// ClientFor returns the client serving the scheme of uri.
func (d *Dispatcher) ClientFor(uri string) (Client, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResource, err)
	}
	scheme := strings.ToLower(u.Scheme)

	d.mu.RLock()
	c, ok := d.byScheme[scheme]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return c, nil
}

// Schemes returns every registered scheme, sorted.
func (d *Dispatcher) Schemes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	schemes := make([]string, 0, len(d.byScheme))
	for s := range d.byScheme {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// Read routes ReadResource.
func (d *Dispatcher) Read(ctx context.Context, uri string) (Content, error) {
	c, err := d.ClientFor(uri)
	if err != nil {
		return Content{}, err
	}
	return c.ReadResource(ctx, uri)
}

// Write routes WriteResource.
func (d *Dispatcher) Write(ctx context.Context, uri string, payload Content) (Content, error) {
	c, err := d.ClientFor(uri)
	if err != nil {
		return Content{}, err
	}
	return c.WriteResource(ctx, uri, payload)
}

// Invoke routes InvokeResource.
func (d *Dispatcher) Invoke(ctx context.Context, uri string, payload Content) (Content, error) {
	c, err := d.ClientFor(uri)
	if err != nil {
		return Content{}, err
	}
	return c.InvokeResource(ctx, uri, payload)
}

// Unlink routes UnlinkResource.
func (d *Dispatcher) Unlink(ctx context.Context, uri string) (Content, error) {
	c, err := d.ClientFor(uri)
	if err != nil {
		return Content{}, err
	}
	return c.UnlinkResource(ctx, uri)
}

// Do performs any verb on the client serving uri.
func (d *Dispatcher) Do(ctx context.Context, verb Verb, uri string, payload Content) (Content, error) {
	if !verb.Valid() {
		return Content{}, fmt.Errorf("%w: unknown verb %q", ErrOperationNotAllowed, verb)
	}
	c, err := d.ClientFor(uri)
	if err != nil {
		return Content{}, err
	}
	return Perform(ctx, c, verb, uri, payload)
}

// Start starts every registered client in registration order. It stops at
// the first failure; clients already started stay started for Stop.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.RLock()
	clients := append([]Client(nil), d.clients...)
	logger := d.logger
	d.mu.RUnlock()

	for _, c := range clients {
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("starting %v client: %w", c.Schemes(), err)
		}
		logger.Info("protocol client started", "schemes", c.Schemes())
	}
	return nil
}

// Stop stops every client in reverse order, then destroys the factories in
// reverse order. It keeps going past failures and returns them joined.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.RLock()
	clients := append([]Client(nil), d.clients...)
	factories := append([]ClientFactory(nil), d.factories...)
	logger := d.logger
	d.mu.RUnlock()

	var errs []error
	for i := len(clients) - 1; i >= 0; i-- {
		if err := clients[i].Stop(ctx); err != nil {
			logger.Warn("protocol client stop failed", "schemes", clients[i].Schemes(), "error", err)
			errs = append(errs, fmt.Errorf("stopping %v client: %w", clients[i].Schemes(), err))
		}
	}
	for i := len(factories) - 1; i >= 0; i-- {
		if err := factories[i].Destroy(ctx); err != nil {
			errs = append(errs, wrapLifecycle("destroy", err))
		}
	}

	d.mu.Lock()
	d.factories = nil
	d.mu.Unlock()

	return errors.Join(errs...)
}

// wrapLifecycle adds ErrLifecycle unless err already carries it.
func wrapLifecycle(op string, err error) error {
	if errors.Is(err, ErrLifecycle) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrLifecycle, op, err)
}
