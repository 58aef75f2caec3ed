// Package protocol defines the contract every transport client fulfils and
// the dispatcher that routes resource URIs to them.
//
// A Client performs four verbs on resources addressed by URI:
//
//	read    property value, or the Thing's description
//	write   property value
//	invoke  action (or emit an event)
//	unlink  remove a member, or the whole Thing
//
// Payloads travel as Content: a body plus its media type. The codec package
// supplies JSON and CBOR. Callers ask for a response media type with
// WithAccept.
//
// Clients are produced by a ClientFactory, which owns the shared transport
// (an HTTP connection pool, an MQTT session). Lifecycle order is
//
//	factory.Init → factory.Client → client.Start → verbs → client.Stop → factory.Destroy
//
// The Dispatcher drives that order for every registered factory and selects
// a client by URI scheme.
//
// # Resource URIs
//
//	thing://local/things/lamp
//	http://gateway:8080/things/lamp/properties/brightness
//	mqtt://broker:1883/things/lamp/actions/toggle
//
// See ParseResource for the exact rules.
package protocol
