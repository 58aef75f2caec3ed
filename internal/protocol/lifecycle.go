package protocol

import (
	"context"
	"fmt"
	"sync"
)

// Lifecycle implements idempotent stopped → started → stopped transitions
// for clients. Embed it and supply the hooks; each hook runs only on a
// real transition and a failing hook leaves the state unchanged.
type Lifecycle struct {
	mu      sync.Mutex
	started bool

	// OnStart runs on the stopped → started transition. May be nil.
	OnStart func(ctx context.Context) error
	// OnStop runs on the started → stopped transition. May be nil.
	OnStop func(ctx context.Context) error
}

// Start runs OnStart unless already started.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: start: %w", ErrLifecycle, err)
	}
	if l.OnStart != nil {
		if err := l.OnStart(ctx); err != nil {
			return fmt.Errorf("%w: start: %w", ErrLifecycle, err)
		}
	}
	l.started = true
	return nil
}

// Stop runs OnStop unless already stopped.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return nil
	}
	if l.OnStop != nil {
		if err := l.OnStop(ctx); err != nil {
			return fmt.Errorf("%w: stop: %w", ErrLifecycle, err)
		}
	}
	l.started = false
	return nil
}

// Started reports the current state.
func (l *Lifecycle) Started() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}

// RequireStarted returns ErrNotStarted unless the lifecycle is started.
func (l *Lifecycle) RequireStarted() error {
	if !l.Started() {
		return ErrNotStarted
	}
	return nil
}
