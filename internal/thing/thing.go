package thing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by Thing and Registry.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Schema is an opaque value-type description (typically a JSON Schema
// fragment). It is stored and handed to describers, never enforced here.
type Schema map[string]any

// ActionHandler runs an action. The input is nil when the caller supplied none.
type ActionHandler func(ctx context.Context, input any) (any, error)

// PropertyListener is notified after every successful SetProperty.
type PropertyListener func(newValue, oldValue any)

// EventListener receives every event emitted on the channel it subscribed to.
type EventListener func(event Event)

// ListenerID identifies a registered listener so it can be removed later.
type ListenerID string

// Event is a single emission on an event channel.
type Event struct {
	Thing     string    `json:"thing"`
	Name      string    `json:"name"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Describer turns a Thing into a descriptor document.
type Describer interface {
	Describe(t *Thing) (map[string]any, error)
}

type propertyListener struct {
	id ListenerID
	fn PropertyListener
}

type eventListener struct {
	id ListenerID
	fn EventListener
}

type propertyEntry struct {
	schema    Schema
	value     any
	listeners []propertyListener
}

type actionEntry struct {
	input   Schema
	output  Schema
	handler ActionHandler
}

type eventEntry struct {
	schema    Schema
	listeners []eventListener
}

// Thing holds the live state of one addressable entity: property values,
// action handlers and event subscriptions.
//
// A name is either absent or declared for each of the three member kinds.
// Operations on an absent name fail with a not-found error and never create
// the entry; only the Add* methods declare names.
//
// Thread Safety:
//   - All methods are safe for concurrent use. The member maps are guarded by
//     a single RWMutex.
//   - Listeners and handlers run outside the lock on a snapshot taken when
//     the operation started, so they may call back into the Thing.
//   - Concurrent SetProperty calls on the same property are applied in lock
//     order, but their listener notifications may interleave. Callers that
//     need strictly ordered notifications across writers must serialise the
//     writes themselves.
type Thing struct {
	name string

	mu         sync.RWMutex
	properties map[string]*propertyEntry
	actions    map[string]*actionEntry
	events     map[string]*eventEntry

	describer Describer
	logger    Logger

	// observer is set by the Registry to fan out changes across Things.
	observer func(Change)
}

// New creates a Thing with no members.
func New(name string) *Thing {
	return &Thing{
		name:       name,
		properties: make(map[string]*propertyEntry),
		actions:    make(map[string]*actionEntry),
		events:     make(map[string]*eventEntry),
		logger:     noopLogger{},
	}
}

// Name returns the Thing's immutable name.
func (t *Thing) Name() string {
	return t.name
}

// SetLogger sets the logger for the Thing.
func (t *Thing) SetLogger(logger Logger) {
	t.mu.Lock()
	t.logger = logger
	t.mu.Unlock()
}

// SetDescriber sets the collaborator used by Description.
func (t *Thing) SetDescriber(d Describer) {
	t.mu.Lock()
	t.describer = d
	t.mu.Unlock()
}

func (t *Thing) getLogger() Logger {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.logger
}

func (t *Thing) setObserver(fn func(Change)) {
	t.mu.Lock()
	t.observer = fn
	t.mu.Unlock()
}

// notify forwards a change to the registry observer, if any.
func (t *Thing) notify(c Change) {
	t.mu.RLock()
	fn := t.observer
	t.mu.RUnlock()
	if fn != nil {
		fn(c)
	}
}

// =============================================================================
// Declaration
// =============================================================================

// AddProperty declares a property with its schema and initial value (nil
// when the property starts without one).
//
// Declaring an existing name replaces its value and drops its listeners.
// That works but is not an update path; use SetProperty to change values.
func (t *Thing) AddProperty(name string, schema Schema, initial any) *Thing {
	if name == "" {
		t.getLogger().Error("rejecting property declaration", "thing", t.name, "error", ErrInvalidName)
		return t
	}

	t.mu.Lock()
	if _, exists := t.properties[name]; exists {
		t.logger.Debug("redeclaring property", "thing", t.name, "property", name)
	}
	t.properties[name] = &propertyEntry{
		schema: copySchema(schema),
		value:  initial,
	}
	t.mu.Unlock()

	t.notify(Change{Kind: ChangeShape, Thing: t.name, Name: name, Timestamp: time.Now().UTC()})
	return t
}

// AddAction declares an action with optional input and output schemas.
// The action starts without a handler; bind one with OnInvokeAction.
func (t *Thing) AddAction(name string, input, output Schema) *Thing {
	if name == "" {
		t.getLogger().Error("rejecting action declaration", "thing", t.name, "error", ErrInvalidName)
		return t
	}

	t.mu.Lock()
	t.actions[name] = &actionEntry{
		input:  copySchema(input),
		output: copySchema(output),
	}
	t.mu.Unlock()

	t.notify(Change{Kind: ChangeShape, Thing: t.name, Name: name, Timestamp: time.Now().UTC()})
	return t
}

// AddEvent declares an event channel so listeners can subscribe to it.
func (t *Thing) AddEvent(name string, schema Schema) *Thing {
	if name == "" {
		t.getLogger().Error("rejecting event declaration", "thing", t.name, "error", ErrInvalidName)
		return t
	}

	t.mu.Lock()
	t.events[name] = &eventEntry{schema: copySchema(schema)}
	t.mu.Unlock()

	t.notify(Change{Kind: ChangeShape, Thing: t.name, Name: name, Timestamp: time.Now().UTC()})
	return t
}

// RemoveProperty drops a property, its value and its listeners.
// Returns false if the property was not declared.
func (t *Thing) RemoveProperty(name string) bool {
	t.mu.Lock()
	_, ok := t.properties[name]
	delete(t.properties, name)
	t.mu.Unlock()

	if ok {
		t.notify(Change{Kind: ChangeShape, Thing: t.name, Name: name, Timestamp: time.Now().UTC()})
	}
	return ok
}

// RemoveAction drops an action and its handler.
// Returns false if the action was not declared.
func (t *Thing) RemoveAction(name string) bool {
	t.mu.Lock()
	_, ok := t.actions[name]
	delete(t.actions, name)
	t.mu.Unlock()

	if ok {
		t.notify(Change{Kind: ChangeShape, Thing: t.name, Name: name, Timestamp: time.Now().UTC()})
	}
	return ok
}

// RemoveEvent drops an event channel and all of its listeners.
// Returns false if the event was not declared.
func (t *Thing) RemoveEvent(name string) bool {
	t.mu.Lock()
	_, ok := t.events[name]
	delete(t.events, name)
	t.mu.Unlock()

	if ok {
		t.notify(Change{Kind: ChangeShape, Thing: t.name, Name: name, Timestamp: time.Now().UTC()})
	}
	return ok
}

// =============================================================================
// Actions
// =============================================================================

// OnInvokeAction binds the handler for a declared action, replacing any
// previous handler. Returns ErrActionNotFound if the action is not declared.
func (t *Thing) OnInvokeAction(name string, handler ActionHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.actions[name]
	if !ok {
		return t.memberError("action", name, ErrActionNotFound)
	}
	if entry.handler != nil {
		t.logger.Debug("replacing action handler", "thing", t.name, "action", name)
	}
	entry.handler = handler
	return nil
}

// InvokeAction runs the handler bound to an action and returns its result.
//
// Returns:
//   - ErrActionNotFound if the action is not declared
//   - ErrUnbound if the action is declared without a handler
//   - the handler's own error otherwise
func (t *Thing) InvokeAction(ctx context.Context, name string, input any) (result any, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.RLock()
	entry, ok := t.actions[name]
	var handler ActionHandler
	if ok {
		handler = entry.handler
	}
	t.mu.RUnlock()

	if !ok {
		return nil, t.memberError("action", name, ErrActionNotFound)
	}
	if handler == nil {
		return nil, t.memberError("action", name, ErrUnbound)
	}

	defer func() {
		if r := recover(); r != nil {
			t.getLogger().Error("action handler panic recovered", "thing", t.name, "action", name, "panic", r)
			result, err = nil, fmt.Errorf("%w: %v", t.memberError("action", name, ErrHandlerPanic), r)
		}
	}()

	return handler(ctx, input)
}

// =============================================================================
// Properties
// =============================================================================

// GetProperty returns the current value of a declared property.
// A declared property with no value resolves to nil.
func (t *Thing) GetProperty(ctx context.Context, name string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.properties[name]
	if !ok {
		return nil, t.memberError("property", name, ErrPropertyNotFound)
	}
	return entry.value, nil
}

// SetProperty stores a new value for a declared property and notifies its
// listeners in registration order with (newValue, oldValue).
//
// Listeners registered while the notification is running are not called for
// this update. Returns the stored value.
func (t *Thing) SetProperty(ctx context.Context, name string, value any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	entry, ok := t.properties[name]
	if !ok {
		t.mu.Unlock()
		return nil, t.memberError("property", name, ErrPropertyNotFound)
	}
	old := entry.value
	entry.value = value
	listeners := make([]propertyListener, len(entry.listeners))
	copy(listeners, entry.listeners)
	logger := t.logger
	t.mu.Unlock()

	for _, l := range listeners {
		t.callPropertyListener(logger, name, l, value, old)
	}

	t.notify(Change{
		Kind:      ChangeProperty,
		Thing:     t.name,
		Name:      name,
		Value:     value,
		OldValue:  old,
		Timestamp: time.Now().UTC(),
	})
	return value, nil
}

// callPropertyListener isolates listener panics so the remaining listeners still run.
func (t *Thing) callPropertyListener(logger Logger, name string, l propertyListener, value, old any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("property listener panic recovered",
				"thing", t.name,
				"property", name,
				"listener", l.id,
				"panic", r,
			)
		}
	}()
	l.fn(value, old)
}

// OnUpdateProperty appends a listener for value updates on a declared
// property. Returns ErrPropertyNotFound if the property is not declared.
func (t *Thing) OnUpdateProperty(name string, listener PropertyListener) (ListenerID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.properties[name]
	if !ok {
		t.logger.Warn("no such property", "thing", t.name, "property", name)
		return "", t.memberError("property", name, ErrPropertyNotFound)
	}

	id := newListenerID()
	entry.listeners = append(entry.listeners, propertyListener{id: id, fn: listener})
	return id, nil
}

// RemovePropertyListener detaches a listener added with OnUpdateProperty.
// Returns false if either the property or the listener is unknown.
func (t *Thing) RemovePropertyListener(name string, id ListenerID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.properties[name]
	if !ok {
		return false
	}
	for i, l := range entry.listeners {
		if l.id == id {
			entry.listeners = append(entry.listeners[:i:i], entry.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// =============================================================================
// Events
// =============================================================================

// AddListener subscribes a listener to a declared event.
// Returns ErrEventNotFound if the event is not declared.
func (t *Thing) AddListener(name string, listener EventListener) (ListenerID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.events[name]
	if !ok {
		return "", t.memberError("event", name, ErrEventNotFound)
	}

	id := newListenerID()
	entry.listeners = append(entry.listeners, eventListener{id: id, fn: listener})
	return id, nil
}

// RemoveListener stops delivery to one listener without affecting others.
// Returns false if either the event or the listener is unknown.
func (t *Thing) RemoveListener(name string, id ListenerID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.events[name]
	if !ok {
		return false
	}
	for i, l := range entry.listeners {
		if l.id == id {
			entry.listeners = append(entry.listeners[:i:i], entry.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAllListeners drops every listener of an event and reports how many
// were removed. The event itself stays declared.
func (t *Thing) RemoveAllListeners(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.events[name]
	if !ok {
		return 0
	}
	n := len(entry.listeners)
	entry.listeners = nil
	return n
}

// EmitEvent delivers data to every listener of a declared event,
// synchronously and in subscription order.
func (t *Thing) EmitEvent(name string, data any) error {
	t.mu.RLock()
	entry, ok := t.events[name]
	var listeners []eventListener
	if ok {
		listeners = make([]eventListener, len(entry.listeners))
		copy(listeners, entry.listeners)
	}
	logger := t.logger
	t.mu.RUnlock()

	if !ok {
		return t.memberError("event", name, ErrEventNotFound)
	}

	ev := Event{
		Thing:     t.name,
		Name:      name,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	for _, l := range listeners {
		t.callEventListener(logger, l, ev)
	}

	t.notify(Change{
		Kind:      ChangeEvent,
		Thing:     t.name,
		Name:      name,
		Value:     data,
		Timestamp: ev.Timestamp,
	})
	return nil
}

func (t *Thing) callEventListener(logger Logger, l eventListener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event listener panic recovered",
				"thing", t.name,
				"event", ev.Name,
				"listener", l.id,
				"panic", r,
			)
		}
	}()
	l.fn(ev)
}

// =============================================================================
// Description
// =============================================================================

// Description returns the descriptor produced by the configured Describer.
func (t *Thing) Description() (map[string]any, error) {
	t.mu.RLock()
	d := t.describer
	t.mu.RUnlock()

	if d == nil {
		return nil, fmt.Errorf("thing %q: %w", t.name, ErrNoDescriber)
	}
	return d.Describe(t)
}

// PropertyNames returns the declared property names, sorted.
func (t *Thing) PropertyNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.properties)
}

// ActionNames returns the declared action names, sorted.
func (t *Thing) ActionNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.actions)
}

// EventNames returns the declared event names, sorted.
func (t *Thing) EventNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.events)
}

// HasProperty reports whether a property is declared.
func (t *Thing) HasProperty(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.properties[name]
	return ok
}

func (t *Thing) memberError(member, name string, err error) error {
	return fmt.Errorf("thing %q: %s %q: %w", t.name, member, name, err)
}

func newListenerID() ListenerID {
	return ListenerID(uuid.NewString())
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
