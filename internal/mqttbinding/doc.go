// Package mqttbinding exposes hosted Things over MQTT.
//
// It is the server side of the mqtt:// protocol client. The binding
// subscribes to every request topic, runs the request through the
// in-process thing:// client and publishes a response envelope:
//
//	things/request/{reply-id}/{request-id}   CBOR Request from a client
//	things/response/{reply-id}/{request-id}  CBOR Response from the binding
//
// It also mirrors Thing state onto the bus from registry observations:
//
//	things/state/{thing}/{property}   retained current value
//	things/event/{thing}/{event}      one message per emission
//
// Retained state is cleared when a property or its Thing goes away, so a
// late subscriber never sees values for members that no longer exist.
// Requests run on a bounded worker pool; when the pool is full the binding
// answers immediately with an internal error rather than queueing.
// With an audit repository set, every write, invoke and unlink is recorded
// with the requesting reply ID as subject.
//
// Names in topics are escaped with mqtt.EscapeSegment.
package mqttbinding
