package protocol

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/nerrad567/gray-logic-things/internal/codec"
	"github.com/nerrad567/gray-logic-things/internal/thing"
)

// fakeClient records verbs and lifecycle calls.
type fakeClient struct {
	Lifecycle
	schemes []string
	calls   []string
	stopErr error
	order   *[]string
}

func newFakeClient(order *[]string, schemes ...string) *fakeClient {
	c := &fakeClient{schemes: schemes, order: order}
	c.OnStart = func(context.Context) error {
		*c.order = append(*c.order, "start:"+c.schemes[0])
		return nil
	}
	c.OnStop = func(context.Context) error {
		*c.order = append(*c.order, "stop:"+c.schemes[0])
		return c.stopErr
	}
	return c
}

func (c *fakeClient) record(verb, uri string) (Content, error) {
	if err := c.RequireStarted(); err != nil {
		return Content{}, err
	}
	c.calls = append(c.calls, verb+" "+uri)
	return NewContent(codec.MediaTypeJSON, verb)
}

func (c *fakeClient) ReadResource(_ context.Context, uri string) (Content, error) {
	return c.record("read", uri)
}

func (c *fakeClient) WriteResource(_ context.Context, uri string, _ Content) (Content, error) {
	return c.record("write", uri)
}

func (c *fakeClient) InvokeResource(_ context.Context, uri string, _ Content) (Content, error) {
	return c.record("invoke", uri)
}

func (c *fakeClient) UnlinkResource(_ context.Context, uri string) (Content, error) {
	return c.record("unlink", uri)
}

func (c *fakeClient) Schemes() []string {
	return append([]string(nil), c.schemes...)
}

type fakeFactory struct {
	client     *fakeClient
	initErr    error
	destroyErr error
	order      *[]string
}

func (f *fakeFactory) Client() (Client, error) { return f.client, nil }

func (f *fakeFactory) Init(context.Context) error {
	*f.order = append(*f.order, "init:"+f.client.schemes[0])
	return f.initErr
}

func (f *fakeFactory) Destroy(context.Context) error {
	*f.order = append(*f.order, "destroy:"+f.client.schemes[0])
	return f.destroyErr
}

func TestDispatcher_RegisterAndRoute(t *testing.T) {
	ctx := context.Background()
	var order []string
	d := NewDispatcher()

	httpClient := newFakeClient(&order, "http", "https")
	if err := d.Register(httpClient); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := d.Register(newFakeClient(&order, "HTTPS")); !errors.Is(err, ErrSchemeConflict) {
		t.Errorf("Register(conflict) error = %v, want ErrSchemeConflict", err)
	}
	if err := d.Register(&fakeClient{}); !errors.Is(err, ErrNoSchemes) {
		t.Errorf("Register(no schemes) error = %v, want ErrNoSchemes", err)
	}

	if got, want := d.Schemes(), []string{"http", "https"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Schemes() = %v, want %v", got, want)
	}

	const uri = "HTTP://gw/things/lamp/properties/on"
	if _, err := d.Read(ctx, uri); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Read before Start error = %v, want ErrNotStarted", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for _, verb := range []Verb{VerbRead, VerbWrite, VerbInvoke, VerbUnlink} {
		out, err := d.Do(ctx, verb, uri, Content{})
		if err != nil {
			t.Fatalf("Do(%s) error = %v", verb, err)
		}
		v, _ := out.Value()
		if v != string(verb) {
			t.Errorf("Do(%s) = %v, want %s", verb, v, verb)
		}
	}
	if len(httpClient.calls) != 4 {
		t.Errorf("client saw %d calls, want 4", len(httpClient.calls))
	}

	if _, err := d.Do(ctx, Verb("observe"), uri, Content{}); !errors.Is(err, ErrOperationNotAllowed) {
		t.Errorf("Do(unknown verb) error = %v, want ErrOperationNotAllowed", err)
	}
	if _, err := d.Read(ctx, "coap://gw/things/lamp"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("Read(coap) error = %v, want ErrUnsupportedScheme", err)
	}
}

func TestDispatcher_LifecycleOrder(t *testing.T) {
	ctx := context.Background()
	var order []string
	d := NewDispatcher()

	for _, scheme := range []string{"thing", "http", "mqtt"} {
		f := &fakeFactory{client: newFakeClient(&order, scheme), order: &order}
		if _, err := d.RegisterFactory(ctx, f); err != nil {
			t.Fatalf("RegisterFactory(%s) error = %v", scheme, err)
		}
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	want := []string{
		"init:thing", "init:http", "init:mqtt",
		"start:thing", "start:http", "start:mqtt",
		"stop:mqtt", "stop:http", "stop:thing",
		"destroy:mqtt", "destroy:http", "destroy:thing",
	}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("lifecycle order = %v\nwant %v", order, want)
	}
}

func TestDispatcher_StopJoinsErrors(t *testing.T) {
	ctx := context.Background()
	var order []string
	d := NewDispatcher()

	failing := newFakeClient(&order, "mqtt")
	failing.stopErr = errors.New("broker gone")
	f1 := &fakeFactory{client: failing, order: &order, destroyErr: errors.New("close failed")}
	f2 := &fakeFactory{client: newFakeClient(&order, "http"), order: &order}

	for _, f := range []*fakeFactory{f1, f2} {
		if _, err := d.RegisterFactory(ctx, f); err != nil {
			t.Fatalf("RegisterFactory() error = %v", err)
		}
	}
	//nolint:errcheck // fakes start cleanly
	d.Start(ctx)

	err := d.Stop(ctx)
	if !errors.Is(err, ErrLifecycle) {
		t.Fatalf("Stop() error = %v, want ErrLifecycle", err)
	}
	// The healthy client is still stopped and destroyed.
	if order[len(order)-1] != "destroy:mqtt" {
		t.Errorf("last lifecycle step = %s, want destroy:mqtt", order[len(order)-1])
	}
}

func TestDispatcher_RegisterFactoryInitFails(t *testing.T) {
	var order []string
	d := NewDispatcher()
	f := &fakeFactory{client: newFakeClient(&order, "mqtt"), order: &order, initErr: errors.New("no broker")}

	if _, err := d.RegisterFactory(context.Background(), f); !errors.Is(err, ErrLifecycle) {
		t.Errorf("RegisterFactory() error = %v, want ErrLifecycle", err)
	}
	if len(d.Schemes()) != 0 {
		t.Errorf("Schemes() = %v, want none", d.Schemes())
	}
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	starts, stops := 0, 0
	l := &Lifecycle{
		OnStart: func(context.Context) error { starts++; return nil },
		OnStop:  func(context.Context) error { stops++; return nil },
	}

	for range 2 {
		if err := l.Start(ctx); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	}
	if starts != 1 || !l.Started() {
		t.Errorf("starts = %d, started = %v; want 1, true", starts, l.Started())
	}
	for range 2 {
		if err := l.Stop(ctx); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	}
	if stops != 1 || l.Started() {
		t.Errorf("stops = %d, started = %v; want 1, false", stops, l.Started())
	}
	if err := l.RequireStarted(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("RequireStarted() error = %v, want ErrNotStarted", err)
	}
}

func TestLifecycle_Failures(t *testing.T) {
	failing := &Lifecycle{OnStart: func(context.Context) error { return errors.New("refused") }}
	if err := failing.Start(context.Background()); !errors.Is(err, ErrLifecycle) {
		t.Errorf("Start() error = %v, want ErrLifecycle", err)
	}
	if failing.Started() {
		t.Error("failed Start should leave the lifecycle stopped")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var l Lifecycle
	if err := l.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Start(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestParseResource(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    Resource
		wantErr bool
	}{
		{
			name: "thing",
			uri:  "http://gw:8080/things/lamp",
			want: Resource{Scheme: "http", Host: "gw:8080", Thing: "lamp"},
		},
		{
			name: "property",
			uri:  "MQTT://broker/things/lamp/properties/brightness",
			want: Resource{Scheme: "mqtt", Host: "broker", Thing: "lamp", Kind: KindProperty, Name: "brightness"},
		},
		{
			name: "escaped names",
			uri:  "thing://local/things/living%20room/actions/set%2Fscene",
			want: Resource{Scheme: "thing", Host: "local", Thing: "living room", Kind: KindAction, Name: "set/scene"},
		},
		{
			name: "trailing slash",
			uri:  "thing://local/things/lamp/events/overheated/",
			want: Resource{Scheme: "thing", Host: "local", Thing: "lamp", Kind: KindEvent, Name: "overheated"},
		},
		{name: "no scheme", uri: "/things/lamp", wantErr: true},
		{name: "wrong root", uri: "http://gw/devices/lamp", wantErr: true},
		{name: "unknown kind", uri: "http://gw/things/lamp/links/a", wantErr: true},
		{name: "three segments", uri: "http://gw/things/lamp/properties", wantErr: true},
		{name: "empty thing", uri: "http://gw/things//properties/a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResource(tt.uri)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidResource) {
					t.Errorf("ParseResource(%q) error = %v, want ErrInvalidResource", tt.uri, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseResource(%q) error = %v", tt.uri, err)
			}
			if got != tt.want {
				t.Errorf("ParseResource(%q) = %+v, want %+v", tt.uri, got, tt.want)
			}
		})
	}
}

func TestResource_RoundTrip(t *testing.T) {
	r := MemberResource("http", "gw", "living room", KindProperty, "a/b")
	if got, want := r.String(), "http://gw/things/living%20room/properties/a%2Fb"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	back, err := ParseResource(r.String())
	if err != nil || back != r {
		t.Errorf("ParseResource(String()) = %+v, %v; want %+v", back, err, r)
	}
	if got, want := JoinBase("http://gw:8080/", ThingResource("http", "", "lamp")), "http://gw:8080/things/lamp"; got != want {
		t.Errorf("JoinBase() = %q, want %q", got, want)
	}
}

func TestContent(t *testing.T) {
	c, err := NewContent("", map[string]any{"on": true})
	if err != nil {
		t.Fatalf("NewContent() error = %v", err)
	}
	if c.Type != codec.MediaTypeJSON {
		t.Errorf("Type = %q, want JSON default", c.Type)
	}

	var got struct{ On bool }
	if err := c.Decode(&got); err != nil || !got.On {
		t.Errorf("Decode() = %+v, %v", got, err)
	}

	v, err := Content{}.Value()
	if err != nil || v != nil {
		t.Errorf("empty Value() = %v, %v; want nil, nil", v, err)
	}

	if _, err := (Content{Type: "text/plain", Body: []byte("x")}).Value(); !errors.Is(err, codec.ErrUnsupportedMediaType) {
		t.Errorf("Value(text/plain) error = %v, want ErrUnsupportedMediaType", err)
	}
}

func TestAccept(t *testing.T) {
	ctx := context.Background()
	if AcceptFrom(ctx) != "" {
		t.Error("AcceptFrom(background) should be empty")
	}
	if got := AcceptFrom(WithAccept(ctx, codec.MediaTypeCBOR)); got != codec.MediaTypeCBOR {
		t.Errorf("AcceptFrom() = %q, want CBOR", got)
	}
}

func TestCode_RoundTrip(t *testing.T) {
	tests := []struct {
		err    error
		code   Code
		status int
	}{
		{nil, CodeOK, 200},
		{fmt.Errorf("x: %w", thing.ErrThingNotFound), CodeThingNotFound, 404},
		{fmt.Errorf("x: %w", thing.ErrPropertyNotFound), CodePropertyNotFound, 404},
		{fmt.Errorf("x: %w", thing.ErrActionNotFound), CodeActionNotFound, 404},
		{fmt.Errorf("x: %w", thing.ErrEventNotFound), CodeEventNotFound, 404},
		{fmt.Errorf("x: %w", thing.ErrUnbound), CodeUnbound, 409},
		{ErrOperationNotAllowed, CodeNotAllowed, 405},
		{codec.ErrUnsupportedMediaType, CodeUnsupportedMediaType, 415},
		{ErrInvalidContent, CodeBadRequest, 400},
		{context.DeadlineExceeded, CodeTimeout, 504},
		{errors.New("disk full"), CodeInternal, 500},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			code := CodeOf(tt.err)
			if code != tt.code {
				t.Fatalf("CodeOf(%v) = %q, want %q", tt.err, code, tt.code)
			}
			if code.HTTPStatus() != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", code.HTTPStatus(), tt.status)
			}
			back := code.Err()
			if tt.err == nil {
				if back != nil {
					t.Errorf("CodeOK.Err() = %v, want nil", back)
				}
				return
			}
			if CodeOf(back) != code && code != CodeTimeout && code != CodeInternal {
				t.Errorf("CodeOf(%q.Err()) = %q, want the same code", code, CodeOf(back))
			}
		})
	}
}
