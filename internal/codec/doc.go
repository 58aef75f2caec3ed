// Package codec encodes and decodes Thing payloads by media type.
//
// Every transport binding goes through this package, so a property value
// written as CBOR over MQTT reads back identically as JSON over HTTP.
// Two media types are supported:
//
//	application/json   encoding/json
//	application/cbor   fxamacker/cbor, canonical key order
//
// Decoding into an untyped value yields map[string]any for objects in
// both codecs. Numbers differ: JSON yields float64 while CBOR keeps
// integers as uint64 or int64.
package codec
