// Package local serves the thing:// scheme straight from a thing.Registry.
//
// It is the reference mapping of the four verbs onto Thing operations, and
// the HTTP API and MQTT binding route every inbound request through it so
// all transports fail the same way:
//
//	read    /things/{t}                     Description
//	read    /things/{t}/properties/{p}      GetProperty
//	write   /things/{t}/properties/{p}      SetProperty
//	invoke  /things/{t}/actions/{a}         InvokeAction
//	invoke  /things/{t}/events/{e}          EmitEvent
//	unlink  /things/{t}                     Registry.Remove
//	unlink  /things/{t}/{kind}/{name}       RemoveProperty, RemoveAction, RemoveEvent
//
// Any other verb and kind pair fails with protocol.ErrOperationNotAllowed.
// Thing errors are returned unwrapped so callers can match thing.ErrNotFound
// and thing.ErrUnbound.
package local
