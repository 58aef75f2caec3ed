package protocol

import (
	"context"
	"fmt"
)

// Client performs the four resource verbs for one or more URI schemes.
//
// The URI selects the Thing and member through the path convention in
// ParseResource. Implementations own their transport connection and must be
// safe for concurrent use across in-flight requests.
//
// Start and Stop are idempotent: starting a started client or stopping a
// stopped one returns nil. Their failures wrap ErrLifecycle.
type Client interface {
	// ReadResource returns the current content of a property, or a Thing's
	// description when the URI names the Thing itself.
	ReadResource(ctx context.Context, uri string) (Content, error)

	// WriteResource stores payload as the new value of a property and
	// returns the stored value.
	WriteResource(ctx context.Context, uri string, payload Content) (Content, error)

	// InvokeResource runs an action with payload as its input and returns
	// the action's output. On an event URI it emits the event.
	InvokeResource(ctx context.Context, uri string, payload Content) (Content, error)

	// UnlinkResource removes the named member, or the whole Thing.
	UnlinkResource(ctx context.Context, uri string) (Content, error)

	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Schemes returns the URI schemes this client serves. The slice is a
	// copy and is never empty.
	Schemes() []string
}

// ClientFactory owns whole-transport setup and hands out clients.
//
// Init runs once before the first Client call and Destroy once after the
// last client is stopped. Destroy releases what Init acquired; stopping
// clients that are still running is the caller's job.
type ClientFactory interface {
	Client() (Client, error)
	Init(ctx context.Context) error
	Destroy(ctx context.Context) error
}

// Perform calls the method of c matching verb. Payload is ignored for read
// and unlink. Unknown verbs fail with ErrOperationNotAllowed.
func Perform(ctx context.Context, c Client, verb Verb, uri string, payload Content) (Content, error) {
	switch verb {
	case VerbRead:
		return c.ReadResource(ctx, uri)
	case VerbWrite:
		return c.WriteResource(ctx, uri, payload)
	case VerbInvoke:
		return c.InvokeResource(ctx, uri, payload)
	case VerbUnlink:
		return c.UnlinkResource(ctx, uri)
	default:
		return Content{}, fmt.Errorf("%w: unknown verb %q", ErrOperationNotAllowed, verb)
	}
}

type acceptKey struct{}

// WithAccept asks clients to encode response content as mediaType.
func WithAccept(ctx context.Context, mediaType string) context.Context {
	return context.WithValue(ctx, acceptKey{}, mediaType)
}

// AcceptFrom returns the media type requested with WithAccept, or "".
func AcceptFrom(ctx context.Context) string {
	mediaType, _ := ctx.Value(acceptKey{}).(string)
	return mediaType
}
