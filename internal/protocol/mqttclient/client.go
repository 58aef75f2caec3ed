package mqttclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-things/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-things/internal/protocol"
)

// errClientStopped is delivered to requests still waiting when the client stops.
var errClientStopped = errors.New("mqttclient: client stopped while waiting")

// Client performs resource verbs over MQTT request/response topics.
//
// Thread Safety:
//   - Safe for concurrent use. Every in-flight request has its own
//     correlation ID and response channel.
type Client struct {
	protocol.Lifecycle

	conn    *mqtt.Client
	replyID string
	timeout time.Duration
	logger  Logger

	mu      sync.Mutex
	pending map[string]chan Response
}

func newClient(conn *mqtt.Client, replyID string, timeout time.Duration, logger Logger) *Client {
	c := &Client{
		conn:    conn,
		replyID: replyID,
		timeout: timeout,
		logger:  logger,
		pending: make(map[string]chan Response),
	}
	c.OnStart = c.subscribe
	c.OnStop = c.unsubscribe
	return c
}

// Schemes implements protocol.Client.
func (c *Client) Schemes() []string {
	return []string{"mqtt", "mqtts"}
}

// ReplyID returns the topic level this client receives responses on.
func (c *Client) ReplyID() string {
	return c.replyID
}

// ReadResource implements protocol.Client.
func (c *Client) ReadResource(ctx context.Context, uri string) (protocol.Content, error) {
	return c.request(ctx, protocol.VerbRead, uri, protocol.Content{})
}

// WriteResource implements protocol.Client.
func (c *Client) WriteResource(ctx context.Context, uri string, payload protocol.Content) (protocol.Content, error) {
	return c.request(ctx, protocol.VerbWrite, uri, payload)
}

// InvokeResource implements protocol.Client.
func (c *Client) InvokeResource(ctx context.Context, uri string, payload protocol.Content) (protocol.Content, error) {
	return c.request(ctx, protocol.VerbInvoke, uri, payload)
}

// UnlinkResource implements protocol.Client.
func (c *Client) UnlinkResource(ctx context.Context, uri string) (protocol.Content, error) {
	return c.request(ctx, protocol.VerbUnlink, uri, protocol.Content{})
}

func (c *Client) subscribe(context.Context) error {
	return c.conn.Subscribe(c.conn.Topics().Responses(c.replyID), c.conn.QoS(), c.handleResponse)
}

func (c *Client) unsubscribe(context.Context) error {
	err := c.conn.Unsubscribe(c.conn.Topics().Responses(c.replyID))

	c.mu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if errors.Is(err, mqtt.ErrNotConnected) {
		return nil
	}
	return err
}

func (c *Client) request(ctx context.Context, verb protocol.Verb, uri string, payload protocol.Content) (protocol.Content, error) {
	if err := c.RequireStarted(); err != nil {
		return protocol.Content{}, err
	}
	r, err := protocol.ParseResource(uri)
	if err != nil {
		return protocol.Content{}, err
	}
	if r.Scheme != "mqtt" && r.Scheme != "mqtts" {
		return protocol.Content{}, fmt.Errorf("%w: %q", protocol.ErrUnsupportedScheme, r.Scheme)
	}

	req := Request{
		ID:       uuid.NewString(),
		Verb:     verb,
		Resource: r.Path(),
		Accept:   protocol.AcceptFrom(ctx),
	}
	if !payload.IsEmpty() {
		req.ContentType = payload.Type
		req.Payload = payload.Body
	}
	data, err := EncodeEnvelope(req)
	if err != nil {
		return protocol.Content{}, fmt.Errorf("%w: encoding request: %w", protocol.ErrTransport, err)
	}

	ch := make(chan Response, 1)
	c.mu.Lock()
	c.pending[req.ID] = ch
	c.mu.Unlock()
	defer c.forget(req.ID)

	topic := c.conn.Topics().Request(c.replyID, req.ID)
	if err := c.conn.Publish(topic, data, c.conn.QoS(), false); err != nil {
		return protocol.Content{}, fmt.Errorf("%w: %w", protocol.ErrTransport, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return protocol.Content{}, fmt.Errorf("%w: %w", protocol.ErrTransport, errClientStopped)
		}
		if err := resp.Err(); err != nil {
			return protocol.Content{}, err
		}
		return resp.Content(), nil
	case <-timer.C:
		return protocol.Content{}, fmt.Errorf("%w: %s %s: %w after %v: %w",
			protocol.ErrTransport, verb, r.Path(), mqtt.ErrTimeout, c.timeout, context.DeadlineExceeded)
	case <-ctx.Done():
		return protocol.Content{}, fmt.Errorf("%w: %w", protocol.ErrTransport, ctx.Err())
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// handleResponse routes a response envelope to the request waiting for it.
func (c *Client) handleResponse(topic string, payload []byte) error {
	_, _, id, ok := c.conn.Topics().ParseTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected response topic %q", topic)
	}

	var resp Response
	if err := DecodeEnvelope(payload, &resp); err != nil {
		return fmt.Errorf("response %s: %w", id, err)
	}
	if resp.ID != id {
		return fmt.Errorf("response id %q does not match topic %q", resp.ID, topic)
	}

	c.mu.Lock()
	ch, waiting := c.pending[id]
	if waiting {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !waiting {
		c.logger.Debug("dropping response for unknown request", "request_id", id)
		return nil
	}
	ch <- resp
	return nil
}
