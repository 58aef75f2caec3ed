package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nerrad567/gray-logic-things/internal/codec"
	"github.com/nerrad567/gray-logic-things/internal/protocol"
	"github.com/nerrad567/gray-logic-things/internal/thing"
)

// maxResponseSize caps a response body. A larger success body fails with
// ErrTransport.
const maxResponseSize = 4 << 20

// Client performs resource verbs over HTTP.
type Client struct {
	protocol.Lifecycle
	httpClient *http.Client
	token      string
}

// Schemes implements protocol.Client.
func (c *Client) Schemes() []string {
	return []string{"http", "https"}
}

// ReadResource implements protocol.Client.
func (c *Client) ReadResource(ctx context.Context, uri string) (protocol.Content, error) {
	return c.do(ctx, http.MethodGet, uri, protocol.Content{})
}

// WriteResource implements protocol.Client.
func (c *Client) WriteResource(ctx context.Context, uri string, payload protocol.Content) (protocol.Content, error) {
	return c.do(ctx, http.MethodPut, uri, payload)
}

// InvokeResource implements protocol.Client.
func (c *Client) InvokeResource(ctx context.Context, uri string, payload protocol.Content) (protocol.Content, error) {
	return c.do(ctx, http.MethodPost, uri, payload)
}

// UnlinkResource implements protocol.Client.
func (c *Client) UnlinkResource(ctx context.Context, uri string) (protocol.Content, error) {
	return c.do(ctx, http.MethodDelete, uri, protocol.Content{})
}

func (c *Client) do(ctx context.Context, method, uri string, payload protocol.Content) (protocol.Content, error) {
	if err := c.RequireStarted(); err != nil {
		return protocol.Content{}, err
	}
	r, err := protocol.ParseResource(uri)
	if err != nil {
		return protocol.Content{}, err
	}
	if r.Scheme != "http" && r.Scheme != "https" {
		return protocol.Content{}, fmt.Errorf("%w: %q", protocol.ErrUnsupportedScheme, r.Scheme)
	}

	var body io.Reader
	if !payload.IsEmpty() {
		body = bytes.NewReader(payload.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.String(), body)
	if err != nil {
		return protocol.Content{}, fmt.Errorf("%w: creating request: %w", protocol.ErrTransport, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", codec.Normalize(payload.Type))
	}
	if accept := protocol.AcceptFrom(ctx); accept != "" {
		req.Header.Set("Accept", accept)
	} else {
		req.Header.Set("Accept", codec.MediaTypeJSON+", "+codec.MediaTypeCBOR+";q=0.9")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return protocol.Content{}, fmt.Errorf("%w: %w", protocol.ErrTransport, ctxErr)
		}
		return protocol.Content{}, fmt.Errorf("%w: %s %s: %w", protocol.ErrTransport, method, r.String(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	// One byte past the cap tells a full body from a truncated one.
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return protocol.Content{}, fmt.Errorf("%w: reading response: %w", protocol.ErrTransport, err)
	}
	tooLarge := len(data) > maxResponseSize
	if tooLarge {
		data = data[:maxResponseSize]
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return protocol.Content{}, statusError(r, resp.StatusCode, data)
	}
	if tooLarge {
		return protocol.Content{}, fmt.Errorf("%w: %s %s: response exceeds %d bytes", protocol.ErrTransport, method, r.String(), maxResponseSize)
	}
	if len(data) == 0 {
		return protocol.Content{}, nil
	}
	return protocol.Content{Type: codec.Normalize(resp.Header.Get("Content-Type")), Body: data}, nil
}

// errorBody is the structured error the API server returns.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusError maps a non-2xx status to the error a local call would return.
func statusError(r protocol.Resource, status int, data []byte) error {
	var eb errorBody
	if json.Unmarshal(data, &eb) != nil || eb.Message == "" {
		eb.Message = strings.TrimSpace(string(data))
	}
	if eb.Message == "" {
		eb.Message = http.StatusText(status)
	}
	if sentinel := protocol.Code(eb.Code).Err(); eb.Code != "" && !errors.Is(sentinel, protocol.ErrTransport) {
		return fmt.Errorf("%w: %s: %d %s", sentinel, r.String(), status, eb.Message)
	}
	var sentinel error
	switch status {
	case http.StatusNotFound:
		sentinel = notFoundFor(r.Kind)
	case http.StatusConflict:
		sentinel = thing.ErrUnbound
	case http.StatusMethodNotAllowed:
		sentinel = protocol.ErrOperationNotAllowed
	case http.StatusUnsupportedMediaType:
		sentinel = codec.ErrUnsupportedMediaType
	default:
		sentinel = protocol.ErrTransport
	}
	return fmt.Errorf("%w: %s: %d %s", sentinel, r.String(), status, eb.Message)
}

func notFoundFor(kind protocol.Kind) error {
	switch kind {
	case protocol.KindProperty:
		return thing.ErrPropertyNotFound
	case protocol.KindAction:
		return thing.ErrActionNotFound
	case protocol.KindEvent:
		return thing.ErrEventNotFound
	default:
		return thing.ErrThingNotFound
	}
}
