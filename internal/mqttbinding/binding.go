package mqttbinding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-things/internal/audit"
	"github.com/nerrad567/gray-logic-things/internal/codec"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-things/internal/protocol"
	"github.com/nerrad567/gray-logic-things/internal/protocol/local"
	"github.com/nerrad567/gray-logic-things/internal/protocol/mqttclient"
	"github.com/nerrad567/gray-logic-things/internal/thing"
)

// Binding defaults.
const (
	// defaultWorkers bounds how many requests are served concurrently.
	defaultWorkers = 16

	// defaultRequestTimeout bounds one request against the local client.
	defaultRequestTimeout = 10 * time.Second

	// defaultQueueSize bounds how many observed changes wait for publishing.
	defaultQueueSize = 1024
)

// errBusy is returned to clients when every worker is occupied.
var errBusy = errors.New("mqttbinding: all workers busy")

// Logger defines the logging interface used by the binding.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MQTTClient is the subset of *mqtt.Client the binding needs.
// This allows mocking in tests.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Topics() mqtt.Topics
	QoS() byte
}

// Options holds configuration for creating a binding.
type Options struct {
	// MQTT is the connected infrastructure client.
	MQTT MQTTClient

	// Registry is observed for state and event publishing.
	Registry *thing.Registry

	// Client serves the thing:// scheme. Every request goes through it.
	Client protocol.Client

	// StateContentType encodes published state and events.
	// Default: codec.Default.
	StateContentType string

	// RequestTimeout bounds one request. Default: 10 seconds.
	RequestTimeout time.Duration

	// Workers bounds concurrent requests. Default: 16.
	Workers int

	// Audit records write, invoke and unlink requests. Optional.
	Audit audit.Repository

	// Logger is optional.
	Logger Logger
}

// Binding serves MQTT requests and publishes Thing state.
//
// Thread Safety: All methods are safe for concurrent use.
type Binding struct {
	mqtt      MQTTClient
	registry  *thing.Registry
	client    protocol.Client
	stateType string
	timeout   time.Duration
	audit     audit.Repository
	logger    Logger

	workers chan struct{}
	queue   chan thing.Change

	// retained tracks which property state topics hold a retained value,
	// keyed by Thing then property. Only the publish loop touches it.
	retained map[string]map[string]struct{}

	cancelObserve func()

	// Shutdown coordination. runMu orders every wg.Add before the Wait
	// in Stop; once stopped is set no goroutine is started.
	startOnce sync.Once
	stopOnce  sync.Once
	runMu     sync.Mutex
	stopped   bool
	wg        sync.WaitGroup
	ctx       context.Context
	ctxCancel context.CancelFunc

	served    atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
	published atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a binding. Call Start to begin serving.
func New(opts Options) (*Binding, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("thing registry is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("local protocol client is required")
	}

	stateType := codec.Normalize(opts.StateContentType)
	if !codec.Supported(stateType) {
		return nil, fmt.Errorf("state content type: %w: %q", codec.ErrUnsupportedMediaType, opts.StateContentType)
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Binding{
		mqtt:      opts.MQTT,
		registry:  opts.Registry,
		client:    opts.Client,
		stateType: stateType,
		timeout:   timeout,
		audit:     opts.Audit,
		logger:    logger,
		workers:   make(chan struct{}, workers),
		queue:     make(chan thing.Change, defaultQueueSize),
		retained:  make(map[string]map[string]struct{}),
		ctx:       ctx,
		ctxCancel: cancel,
	}, nil
}

// Start subscribes to request topics, attaches to the registry and
// publishes the current state of every hosted property.
func (b *Binding) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	b.startOnce.Do(func() {
		topic := b.mqtt.Topics().AllRequests()
		if err = b.mqtt.Subscribe(topic, b.mqtt.QoS(), b.handleRequest); err != nil {
			err = fmt.Errorf("subscribe to requests: %w", err)
			return
		}
		b.logger.Info("subscribed to requests", "topic", topic)

		// Attach before the initial sync so no change between the two is lost.
		// The publish loop has not started, so the sync owns b.retained.
		b.cancelObserve = b.registry.Observe(b.enqueue)
		for _, t := range b.registry.List() {
			if syncErr := b.syncThing(t.Name(), ""); syncErr != nil {
				b.logger.Warn("initial state publish failed", "thing", t.Name(), "error", syncErr)
			}
		}

		b.spawn(b.publishLoop)

		b.logger.Info("mqtt binding started", "things", b.registry.Count())
	})
	return err
}

// Stop detaches from the registry, stops serving requests and waits for
// in-flight work. Safe to call multiple times.
func (b *Binding) Stop() {
	b.stopOnce.Do(func() {
		if b.cancelObserve != nil {
			b.cancelObserve()
		}
		if err := b.mqtt.Unsubscribe(b.mqtt.Topics().AllRequests()); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
			b.logger.Warn("unsubscribe from requests failed", "error", err)
		}

		b.runMu.Lock()
		b.stopped = true
		b.runMu.Unlock()

		// In-flight requests see the cancelled context and answer promptly.
		b.ctxCancel()
		b.wg.Wait()

		b.logger.Info("mqtt binding stopped")
	})
}

// =============================================================================
// Requests
// =============================================================================

// handleRequest decodes one request envelope and hands it to a worker.
// It never blocks the MQTT client's delivery goroutine.
func (b *Binding) handleRequest(topic string, payload []byte) error {
	topics := b.mqtt.Topics()
	category, replyID, requestID, ok := topics.ParseTopic(topic)
	if !ok || category != mqtt.CategoryRequest {
		return fmt.Errorf("unexpected request topic %q", topic)
	}

	var req mqttclient.Request
	if err := mqttclient.DecodeEnvelope(payload, &req); err != nil {
		b.failed.Add(1)
		return b.respond(replyID, requestID, errorResponse(requestID, err))
	}
	if req.ID != requestID {
		b.failed.Add(1)
		err := fmt.Errorf("%w: envelope id %q does not match topic", protocol.ErrInvalidContent, req.ID)
		return b.respond(replyID, requestID, errorResponse(requestID, err))
	}

	if b.ctx.Err() != nil {
		return nil
	}

	select {
	case b.workers <- struct{}{}:
	default:
		b.rejected.Add(1)
		b.logger.Warn("rejecting request, all workers busy", "request_id", requestID, "resource", req.Resource)
		var err error
		b.whileRunning(func() { err = b.respond(replyID, requestID, errorResponse(requestID, errBusy)) })
		return err
	}

	started := b.spawn(func() {
		defer func() { <-b.workers }()
		resp := b.serve(replyID, req)
		if err := b.respond(replyID, requestID, resp); err != nil {
			b.logger.Error("failed to publish response", "request_id", requestID, "error", err)
		}
	})
	if !started {
		<-b.workers
		b.logger.Debug("dropping request after stop", "request_id", requestID)
	}
	return nil
}

// whileRunning runs fn unless Stop has begun. Stop waits for it to return.
func (b *Binding) whileRunning(fn func()) bool {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.stopped {
		return false
	}
	fn()
	return true
}

// spawn runs fn on a goroutine tracked by Stop. It reports false, and
// does not run fn, once Stop has begun.
func (b *Binding) spawn(fn func()) bool {
	return b.whileRunning(func() {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			fn()
		}()
	})
}

// serve runs one request against the local client on behalf of replyID.
func (b *Binding) serve(replyID string, req mqttclient.Request) mqttclient.Response {
	res, err := localResource(req.Resource)
	if err != nil {
		b.failed.Add(1)
		return errorResponse(req.ID, err)
	}
	uri := res.String()

	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	if req.Accept != "" {
		ctx = protocol.WithAccept(ctx, req.Accept)
	}

	var payload protocol.Content
	if len(req.Payload) > 0 {
		payload = protocol.Content{Type: req.ContentType, Body: req.Payload}
	}

	out, err := protocol.Perform(ctx, b.client, req.Verb, uri, payload)
	if req.Verb != protocol.VerbRead {
		b.recordAudit(replyID, req.Verb, res, err)
	}
	if err != nil {
		b.failed.Add(1)
		b.logger.Debug("request failed", "request_id", req.ID, "verb", req.Verb, "uri", uri, "error", err)
		return errorResponse(req.ID, err)
	}

	b.served.Add(1)
	b.logger.Debug("request served", "request_id", req.ID, "verb", req.Verb, "uri", uri)
	return mqttclient.Response{ID: req.ID, ContentType: out.Type, Payload: out.Body}
}

// recordAudit stores one mutating request. The subject is the requesting
// client's reply ID.
func (b *Binding) recordAudit(replyID string, verb protocol.Verb, res protocol.Resource, opErr error) {
	if b.audit == nil || !verb.Valid() {
		return
	}
	entry := &audit.Entry{
		Source:  audit.SourceMQTT,
		Subject: replyID,
		Verb:    string(verb),
		Thing:   res.Thing,
		Kind:    string(res.Kind),
		Name:    res.Name,
		Code:    string(protocol.CodeOf(opErr)),
	}
	// The request context may already be expired.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(b.ctx), b.timeout)
	defer cancel()
	if err := b.audit.Create(ctx, entry); err != nil {
		b.logger.Warn("failed to record audit entry", "verb", verb, "thing", res.Thing, "error", err)
	}
}

// respond publishes resp on the reply topic of the requesting client.
func (b *Binding) respond(replyID, requestID string, resp mqttclient.Response) error {
	data, err := mqttclient.EncodeEnvelope(resp)
	if err != nil {
		return fmt.Errorf("encoding response %s: %w", requestID, err)
	}
	return b.mqtt.Publish(b.mqtt.Topics().Response(replyID, requestID), data, b.mqtt.QoS(), false)
}

func errorResponse(id string, err error) mqttclient.Response {
	return mqttclient.Response{ID: id, Code: protocol.CodeOf(err), Message: err.Error()}
}

// localResource turns a request path into the matching thing:// resource.
func localResource(path string) (protocol.Resource, error) {
	if !strings.HasPrefix(path, "/") {
		return protocol.Resource{}, fmt.Errorf("%w: resource %q is not a path", protocol.ErrInvalidResource, path)
	}
	return protocol.ParseResource(local.Scheme + "://" + local.Host + path)
}

// =============================================================================
// Metrics
// =============================================================================

// Metrics contains binding statistics for the API metrics endpoint.
type Metrics struct {
	Served    uint64 `json:"requests_served"`
	Failed    uint64 `json:"requests_failed"`
	Rejected  uint64 `json:"requests_rejected"`
	Published uint64 `json:"messages_published"`
	Dropped   uint64 `json:"changes_dropped"`
}

// GetMetrics returns current binding metrics.
func (b *Binding) GetMetrics() Metrics {
	return Metrics{
		Served:    b.served.Load(),
		Failed:    b.failed.Load(),
		Rejected:  b.rejected.Load(),
		Published: b.published.Load(),
		Dropped:   b.dropped.Load(),
	}
}


