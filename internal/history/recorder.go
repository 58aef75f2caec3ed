package history

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-things/internal/thing"
)

const (
	// defaultQueueSize bounds how many changes wait for the sinks.
	defaultQueueSize = 1024

	// pruneInterval is how often retention is enforced.
	pruneInterval = time.Hour

	// writeTimeout bounds one sink write.
	writeTimeout = 5 * time.Second
)

// Logger defines the logging interface used by the Recorder.
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

// Pruner removes history older than a duration.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Pruners runs several pruners as one, adding up the removed rows. It stops
// at the first failure.
type Pruners []Pruner

// Prune implements Pruner.
func (ps Pruners) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	var total int64
	for _, p := range ps {
		n, err := p.Prune(ctx, olderThan)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Recorder feeds registry changes to its sinks.
//
// Thread Safety:
//   - Start and Stop may be called from any goroutine. Changes are queued
//     by the registry observer and written by a single worker.
type Recorder struct {
	registry  *thing.Registry
	sinks     []Sink
	pruner    Pruner
	retention time.Duration
	logger    Logger

	queue   chan thing.Change
	mu      sync.Mutex
	cancel  context.CancelFunc
	observe func()
	done    chan struct{}
	dropped uint64
}

// NewRecorder creates a stopped recorder writing to sinks.
func NewRecorder(registry *thing.Registry, sinks ...Sink) *Recorder {
	return &Recorder{
		registry: registry,
		sinks:    sinks,
		logger:   noopLogger{},
		queue:    make(chan thing.Change, defaultQueueSize),
	}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// SetRetention enables hourly pruning of history older than retention.
// Must be called before Start.
func (r *Recorder) SetRetention(p Pruner, retention time.Duration) {
	r.pruner = p
	r.retention = retention
}

// Start begins observing the registry. Calling Start on a running
// recorder is a no-op.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.observe = r.registry.Observe(r.enqueue)

	go r.run(runCtx, r.done)
	r.logger.Info("history recorder started", "sinks", len(r.sinks), "retention", r.retention)
}

// Stop detaches from the registry, writes what is already queued and waits
// for the worker to exit.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.cancel == nil {
		r.mu.Unlock()
		return
	}
	r.observe()
	cancel, done := r.cancel, r.done
	r.cancel, r.observe, r.done = nil, nil, nil
	r.mu.Unlock()

	cancel()
	<-done
	r.logger.Info("history recorder stopped")
}

// Dropped returns how many changes were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// enqueue runs on the goroutine that changed the Thing and never blocks.
func (r *Recorder) enqueue(c thing.Change) {
	if c.Kind != thing.ChangeProperty && c.Kind != thing.ChangeEvent {
		return
	}
	select {
	case r.queue <- c:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		r.logger.Warn("history queue full, dropping change", "thing", c.Thing, "name", c.Name)
	}
}

func (r *Recorder) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	var prune <-chan time.Time
	if r.pruner != nil && r.retention > 0 {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		prune = ticker.C
		r.pruneOnce()
	}

	for {
		select {
		case c := <-r.queue:
			r.write(c)
		case <-prune:
			r.pruneOnce()
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

// drain writes whatever is still queued at shutdown.
func (r *Recorder) drain() {
	for {
		select {
		case c := <-r.queue:
			r.write(c)
		default:
			return
		}
	}
}

func (r *Recorder) write(c thing.Change) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	for _, s := range r.sinks {
		if err := s.Record(ctx, c); err != nil {
			r.logger.Error("recording change failed", "thing", c.Thing, "name", c.Name, "kind", c.Kind, "error", err)
		}
	}
}

func (r *Recorder) pruneOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	n, err := r.pruner.Prune(ctx, r.retention)
	if err != nil {
		r.logger.Error("pruning history failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("history pruned", "rows", n, "retention", r.retention)
	}
}
