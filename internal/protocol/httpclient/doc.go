// Package httpclient serves the http and https schemes by calling the
// REST surface of another Thing runtime.
//
// Verbs map onto methods over the shared resource path:
//
//	read    GET
//	write   PUT
//	invoke  POST
//	unlink  DELETE
//
// Remote error statuses are mapped back to the sentinels a local caller
// would see: 404 matches thing.ErrNotFound, 409 thing.ErrUnbound and 405
// protocol.ErrOperationNotAllowed. Anything else wraps protocol.ErrTransport.
//
// A Factory owns the connection pool. Every Client it hands out shares it.
package httpclient
