package thing

import "time"

// ChangeKind classifies a Change.
type ChangeKind string

// Change kinds delivered to Registry observers.
const (
	// ChangeProperty is a successful SetProperty.
	ChangeProperty ChangeKind = "property.changed"

	// ChangeEvent is an EmitEvent on a declared event.
	ChangeEvent ChangeKind = "event.emitted"

	// ChangeShape is a member being declared or removed.
	ChangeShape ChangeKind = "thing.shape_changed"

	// ChangeThingAdded and ChangeThingRemoved track Registry membership.
	// Name is empty.
	ChangeThingAdded   ChangeKind = "thing.added"
	ChangeThingRemoved ChangeKind = "thing.removed"
)

// Change is a single state change of a registered Thing.
type Change struct {
	Kind      ChangeKind `json:"kind"`
	Thing     string     `json:"thing"`
	Name      string     `json:"name"`
	Value     any        `json:"value,omitempty"`
	OldValue  any        `json:"old_value,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Shape is a point-in-time copy of everything declared on a Thing.
// Describers build descriptors from it.
type Shape struct {
	Name       string
	Properties []PropertyShape
	Actions    []ActionShape
	Events     []EventShape
}

// PropertyShape describes one declared property.
type PropertyShape struct {
	Name      string
	Schema    Schema
	Value     any
	Listeners int
}

// ActionShape describes one declared action.
type ActionShape struct {
	Name   string
	Input  Schema
	Output Schema
	Bound  bool
}

// EventShape describes one declared event.
type EventShape struct {
	Name      string
	Schema    Schema
	Listeners int
}

// Snapshot copies the Thing's current shape. Members are sorted by name and
// schemas are deep copies, so the result is safe to keep and modify.
func (t *Thing) Snapshot() Shape {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Shape{
		Name:       t.name,
		Properties: make([]PropertyShape, 0, len(t.properties)),
		Actions:    make([]ActionShape, 0, len(t.actions)),
		Events:     make([]EventShape, 0, len(t.events)),
	}
	for _, name := range sortedKeys(t.properties) {
		p := t.properties[name]
		s.Properties = append(s.Properties, PropertyShape{
			Name:      name,
			Schema:    copySchema(p.schema),
			Value:     p.value,
			Listeners: len(p.listeners),
		})
	}
	for _, name := range sortedKeys(t.actions) {
		a := t.actions[name]
		s.Actions = append(s.Actions, ActionShape{
			Name:   name,
			Input:  copySchema(a.input),
			Output: copySchema(a.output),
			Bound:  a.handler != nil,
		})
	}
	for _, name := range sortedKeys(t.events) {
		e := t.events[name]
		s.Events = append(s.Events, EventShape{
			Name:      name,
			Schema:    copySchema(e.schema),
			Listeners: len(e.listeners),
		})
	}
	return s
}

// copySchema deep-copies nested maps and slices so callers cannot mutate
// stored schemas through the value they passed in.
func copySchema(s Schema) Schema {
	if s == nil {
		return nil
	}
	return Schema(deepCopyMap(s))
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case Schema:
		return copySchema(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
