// Package mqttclient serves the mqtt and mqtts schemes by exchanging
// request and response envelopes with a Thing runtime's MQTT binding.
//
// A request is published to
//
//	{prefix}/request/{replyID}/{requestID}
//
// and the binding answers on
//
//	{prefix}/response/{replyID}/{requestID}
//
// where replyID is unique per Client and requestID is a fresh UUID. Both
// envelopes are CBOR encoded so payload bytes travel unchanged whatever
// their media type.
//
// The URI host is informational: the Factory's connection decides which
// broker carries the request.
package mqttclient
