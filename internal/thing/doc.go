// Package thing models a network-addressable Thing: a device or service
// exposing properties, actions and events.
//
// A Thing owns three maps:
//
//	properties  name → current value, opaque schema, ordered update listeners
//	actions     name → opaque input/output schemas, zero-or-one handler
//	events      name → opaque schema, ordered listeners
//
// Each name is either absent or declared. Only AddProperty, AddAction and
// AddEvent declare names; every other operation on an absent name fails
// with an error matching ErrNotFound and leaves the maps untouched. Remove*
// is destructive: the entry and its listeners are gone immediately.
//
// # Property semantics
//
// Declared-ness is tracked by presence in the map, not by the stored value.
// A property declared with a nil, zero or false value can be read and
// written like any other.
//
// # Usage
//
//	lamp := thing.New("lamp").
//	    AddProperty("brightness", thing.Schema{"type": "integer"}, 20).
//	    AddAction("toggle", nil, nil).
//	    AddEvent("overheated", nil)
//
//	lamp.OnUpdateProperty("brightness", func(newValue, oldValue any) {
//	    log.Info("brightness changed", "from", oldValue, "to", newValue)
//	})
//	lamp.OnInvokeAction("toggle", func(ctx context.Context, _ any) (any, error) {
//	    return "ok", nil
//	})
//
//	registry := thing.NewRegistry()
//	registry.SetDescriber(td.Serializer{BaseURL: "http://gateway.local:8080"})
//	registry.Add(lamp)
//
// # Thread Safety
//
// Thing and Registry are safe for concurrent use. Callbacks run outside the
// Thing's lock, on the caller's goroutine, in registration order.
package thing
