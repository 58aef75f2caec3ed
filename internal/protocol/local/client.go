package local

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-things/internal/codec"
	"github.com/nerrad567/gray-logic-things/internal/protocol"
	"github.com/nerrad567/gray-logic-things/internal/thing"
)

// Scheme is the URI scheme served by this package.
const Scheme = "thing"

// Host is the conventional authority for in-process URIs.
const Host = "local"

// URI builds the thing:// URI of a resource.
func URI(thingName string, kind protocol.Kind, name string) string {
	return protocol.Resource{Scheme: Scheme, Host: Host, Thing: thingName, Kind: kind, Name: name}.String()
}

// Client performs resource verbs against an in-process Registry.
type Client struct {
	protocol.Lifecycle
	registry *thing.Registry
}

// NewClient creates a stopped client over registry.
func NewClient(registry *thing.Registry) *Client {
	return &Client{registry: registry}
}

// Schemes implements protocol.Client.
func (c *Client) Schemes() []string {
	return []string{Scheme}
}

// ReadResource implements protocol.Client.
func (c *Client) ReadResource(ctx context.Context, uri string) (protocol.Content, error) {
	r, t, err := c.resolve(uri)
	if err != nil {
		return protocol.Content{}, err
	}

	var value any
	switch r.Kind {
	case protocol.KindThing:
		if err := ctx.Err(); err != nil {
			return protocol.Content{}, err
		}
		value, err = t.Description()
	case protocol.KindProperty:
		value, err = t.GetProperty(ctx, r.Name)
	default:
		return protocol.Content{}, notAllowed(protocol.VerbRead, r)
	}
	if err != nil {
		return protocol.Content{}, err
	}
	return respond(ctx, "", value)
}

// WriteResource implements protocol.Client.
func (c *Client) WriteResource(ctx context.Context, uri string, payload protocol.Content) (protocol.Content, error) {
	r, t, err := c.resolve(uri)
	if err != nil {
		return protocol.Content{}, err
	}
	if r.Kind != protocol.KindProperty {
		return protocol.Content{}, notAllowed(protocol.VerbWrite, r)
	}

	value, err := payload.Value()
	if err != nil {
		return protocol.Content{}, err
	}
	stored, err := t.SetProperty(ctx, r.Name, value)
	if err != nil {
		return protocol.Content{}, err
	}
	return respond(ctx, payload.Type, stored)
}

// InvokeResource implements protocol.Client.
func (c *Client) InvokeResource(ctx context.Context, uri string, payload protocol.Content) (protocol.Content, error) {
	r, t, err := c.resolve(uri)
	if err != nil {
		return protocol.Content{}, err
	}

	input, err := payload.Value()
	if err != nil {
		return protocol.Content{}, err
	}

	switch r.Kind {
	case protocol.KindAction:
		out, err := t.InvokeAction(ctx, r.Name, input)
		if err != nil {
			return protocol.Content{}, err
		}
		return respond(ctx, payload.Type, out)
	case protocol.KindEvent:
		if err := ctx.Err(); err != nil {
			return protocol.Content{}, err
		}
		return protocol.Content{}, t.EmitEvent(r.Name, input)
	default:
		return protocol.Content{}, notAllowed(protocol.VerbInvoke, r)
	}
}

// UnlinkResource implements protocol.Client.
func (c *Client) UnlinkResource(ctx context.Context, uri string) (protocol.Content, error) {
	r, t, err := c.resolve(uri)
	if err != nil {
		return protocol.Content{}, err
	}
	if err := ctx.Err(); err != nil {
		return protocol.Content{}, err
	}

	var removed bool
	var missing error
	switch r.Kind {
	case protocol.KindThing:
		removed, missing = c.registry.Remove(r.Thing), thing.ErrThingNotFound
	case protocol.KindProperty:
		removed, missing = t.RemoveProperty(r.Name), thing.ErrPropertyNotFound
	case protocol.KindAction:
		removed, missing = t.RemoveAction(r.Name), thing.ErrActionNotFound
	case protocol.KindEvent:
		removed, missing = t.RemoveEvent(r.Name), thing.ErrEventNotFound
	}
	if !removed {
		if r.Kind == protocol.KindThing {
			return protocol.Content{}, fmt.Errorf("thing %q: %w", r.Thing, missing)
		}
		return protocol.Content{}, fmt.Errorf("thing %q: %s %q: %w", r.Thing, r.Kind, r.Name, missing)
	}
	return protocol.Content{}, nil
}

// resolve parses uri and looks up its Thing.
func (c *Client) resolve(uri string) (protocol.Resource, *thing.Thing, error) {
	if err := c.RequireStarted(); err != nil {
		return protocol.Resource{}, nil, err
	}
	r, err := protocol.ParseResource(uri)
	if err != nil {
		return protocol.Resource{}, nil, err
	}
	if r.Scheme != Scheme {
		return protocol.Resource{}, nil, fmt.Errorf("%w: %q", protocol.ErrUnsupportedScheme, r.Scheme)
	}
	t, err := c.registry.Get(r.Thing)
	if err != nil {
		return protocol.Resource{}, nil, err
	}
	return r, t, nil
}

// respond encodes value as the Accept type from ctx, falling back to the
// request payload type and then the codec default.
func respond(ctx context.Context, requestType string, value any) (protocol.Content, error) {
	mediaType := protocol.AcceptFrom(ctx)
	if mediaType == "" {
		mediaType = requestType
	}
	if mediaType == "" {
		mediaType = codec.Default
	}
	return protocol.NewContent(mediaType, value)
}

func notAllowed(verb protocol.Verb, r protocol.Resource) error {
	target := "thing"
	if r.Kind != protocol.KindThing {
		target = string(r.Kind)
	}
	return fmt.Errorf("%w: %s on %s", protocol.ErrOperationNotAllowed, verb, target)
}
