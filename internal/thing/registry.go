package thing

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry holds the Things hosted by this process, keyed by name.
//
// Transports resolve resource URIs to Things through the Registry, and
// infrastructure sinks (WebSocket hub, MQTT publisher, history store) watch
// every registered Thing through Observe.
//
// All public methods are thread-safe.
type Registry struct {
	mu     sync.RWMutex
	things map[string]*Thing
	logger Logger

	describer Describer

	obsMu     sync.RWMutex
	observers map[int]func(Change)
	nextObs   int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		things:    make(map[string]*Thing),
		observers: make(map[int]func(Change)),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the registry. nil restores the no-op logger.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

func (r *Registry) log() Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger
}

// SetDescriber sets the Describer handed to every Thing added afterwards
// that does not already have one.
func (r *Registry) SetDescriber(d Describer) {
	r.mu.Lock()
	r.describer = d
	r.mu.Unlock()
}

// Add registers a Thing. Returns ErrInvalidName for an unnamed Thing and
// ErrThingExists if the name is taken.
func (r *Registry) Add(t *Thing) error {
	if t == nil || t.Name() == "" {
		return ErrInvalidName
	}

	r.mu.Lock()
	if _, exists := r.things[t.Name()]; exists {
		r.mu.Unlock()
		return fmt.Errorf("thing %q: %w", t.Name(), ErrThingExists)
	}
	r.things[t.Name()] = t
	d, log := r.describer, r.logger
	r.mu.Unlock()

	t.mu.Lock()
	if t.describer == nil {
		t.describer = d
	}
	t.mu.Unlock()
	t.setObserver(r.publish)

	log.Info("thing registered", "thing", t.Name())
	r.publish(Change{Kind: ChangeThingAdded, Thing: t.Name(), Timestamp: time.Now().UTC()})
	return nil
}

// Get returns the Thing registered under name.
func (r *Registry) Get(name string) (*Thing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.things[name]
	if !ok {
		return nil, fmt.Errorf("thing %q: %w", name, ErrThingNotFound)
	}
	return t, nil
}

// Remove unregisters a Thing. The Thing itself keeps working for any caller
// still holding it but no longer reports changes to observers. Observers
// see one final ChangeThingRemoved.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	t, ok := r.things[name]
	delete(r.things, name)
	log := r.logger
	r.mu.Unlock()

	if ok {
		t.setObserver(nil)
		log.Info("thing removed", "thing", name)
		r.publish(Change{Kind: ChangeThingRemoved, Thing: name, Timestamp: time.Now().UTC()})
	}
	return ok
}

// List returns every registered Thing sorted by name.
func (r *Registry) List() []*Thing {
	r.mu.RLock()
	defer r.mu.RUnlock()

	things := make([]*Thing, 0, len(r.things))
	for _, t := range r.things {
		things = append(things, t)
	}
	sort.Slice(things, func(i, j int) bool { return things[i].Name() < things[j].Name() })
	return things
}

// Count returns the number of registered Things.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.things)
}

// Observe registers fn for every change on every registered Thing.
// Observers run synchronously on the goroutine that caused the change and
// must not block. The returned function removes the observer.
func (r *Registry) Observe(fn func(Change)) (cancel func()) {
	r.obsMu.Lock()
	id := r.nextObs
	r.nextObs++
	r.observers[id] = fn
	r.obsMu.Unlock()

	return func() {
		r.obsMu.Lock()
		delete(r.observers, id)
		r.obsMu.Unlock()
	}
}

// publish fans a change out to the observers in registration order.
func (r *Registry) publish(c Change) {
	r.obsMu.RLock()
	ids := make([]int, 0, len(r.observers))
	for id := range r.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, r.observers[id])
	}
	r.obsMu.RUnlock()

	for _, fn := range fns {
		r.callObserver(fn, c)
	}
}

func (r *Registry) callObserver(fn func(Change), c Change) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log().Error("registry observer panic recovered", "thing", c.Thing, "kind", c.Kind, "panic", rec)
		}
	}()
	fn(c)
}
