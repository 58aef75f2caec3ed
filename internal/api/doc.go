// Package api implements the HTTP REST API and WebSocket server that expose
// hosted Things.
//
// This package provides:
//   - REST endpoints for the four resource verbs on the shared path convention
//   - Thing listing, description and property history
//   - Audit trail of mutating requests (GET /api/v1/audit)
//   - WebSocket hub streaming property changes and events
//   - Optional JWT bearer authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support for production deployments
//
// # Architecture
//
// Every resource request is turned into a thing:// URI and routed through
// the in-process protocol client, so the HTTP surface fails exactly like
// the MQTT binding and any other transport:
//
//	GET    /things/{thing}                       read description
//	GET    /things/{thing}/properties/{name}     read
//	PUT    /things/{thing}/properties/{name}     write
//	POST   /things/{thing}/actions/{name}        invoke
//	POST   /things/{thing}/events/{name}         emit
//	DELETE /things/{thing}[/{kind}/{name}]       unlink
//
// Request bodies are decoded by Content-Type and responses are encoded per
// the Accept header (JSON by default, CBOR on request).
//
// # Security
//
// When security.jwt.secret is set, every mutating route requires an HS256
// bearer token. WebSocket connections use single-use tickets so tokens
// never appear in URLs. With no secret the API is open.
package api
