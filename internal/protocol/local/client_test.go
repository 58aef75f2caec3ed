package local

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-things/internal/codec"
	"github.com/nerrad567/gray-logic-things/internal/protocol"
	"github.com/nerrad567/gray-logic-things/internal/td"
	"github.com/nerrad567/gray-logic-things/internal/thing"
)

func newStarted(t *testing.T) (*Client, *thing.Registry, *thing.Thing) {
	t.Helper()
	reg := thing.NewRegistry()
	reg.SetDescriber(&td.Serializer{})

	lamp := thing.New("lamp").
		AddProperty("brightness", nil, 20).
		AddAction("toggle", nil, nil).
		AddAction("reboot", nil, nil).
		AddEvent("overheated", nil)
	//nolint:errcheck // declared above
	lamp.OnInvokeAction("toggle", func(_ context.Context, in any) (any, error) {
		return map[string]any{"got": in}, nil
	})
	if err := reg.Add(lamp); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	c := NewClient(reg)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return c, reg, lamp
}

func jsonContent(t *testing.T, v any) protocol.Content {
	t.Helper()
	c, err := protocol.NewContent(codec.MediaTypeJSON, v)
	if err != nil {
		t.Fatalf("NewContent() error = %v", err)
	}
	return c
}

func TestClient_ReadWriteProperty(t *testing.T) {
	ctx := context.Background()
	c, _, lamp := newStarted(t)
	uri := URI("lamp", protocol.KindProperty, "brightness")

	out, err := c.ReadResource(ctx, uri)
	if err != nil {
		t.Fatalf("ReadResource() error = %v", err)
	}
	if v, _ := out.Value(); v != float64(20) {
		t.Errorf("read brightness = %v, want 20", v)
	}

	out, err = c.WriteResource(ctx, uri, jsonContent(t, 75))
	if err != nil {
		t.Fatalf("WriteResource() error = %v", err)
	}
	if v, _ := out.Value(); v != float64(75) {
		t.Errorf("write returned %v, want 75", v)
	}
	if v, _ := lamp.GetProperty(ctx, "brightness"); v != float64(75) {
		t.Errorf("stored brightness = %v, want 75", v)
	}
}

func TestClient_ReadDescription(t *testing.T) {
	c, _, _ := newStarted(t)
	out, err := c.ReadResource(context.Background(), URI("lamp", protocol.KindThing, ""))
	if err != nil {
		t.Fatalf("ReadResource() error = %v", err)
	}
	var doc map[string]any
	if err := out.Decode(&doc); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if doc["title"] != "lamp" {
		t.Errorf("title = %v, want lamp", doc["title"])
	}
}

func TestClient_Invoke(t *testing.T) {
	ctx := context.Background()
	c, _, lamp := newStarted(t)

	var emitted []any
	//nolint:errcheck // declared above
	lamp.AddListener("overheated", func(ev thing.Event) { emitted = append(emitted, ev.Data) })

	out, err := c.InvokeResource(ctx, URI("lamp", protocol.KindAction, "toggle"), jsonContent(t, "on"))
	if err != nil {
		t.Fatalf("InvokeResource(toggle) error = %v", err)
	}
	var got map[string]any
	//nolint:errcheck // checked via value
	out.Decode(&got)
	if got["got"] != "on" {
		t.Errorf("toggle output = %v, want got=on", got)
	}

	if _, err := c.InvokeResource(ctx, URI("lamp", protocol.KindEvent, "overheated"), jsonContent(t, 91.5)); err != nil {
		t.Fatalf("InvokeResource(event) error = %v", err)
	}
	if len(emitted) != 1 || emitted[0] != 91.5 {
		t.Errorf("emitted = %v, want [91.5]", emitted)
	}
}

func TestClient_AcceptSelectsEncoding(t *testing.T) {
	c, _, _ := newStarted(t)
	ctx := protocol.WithAccept(context.Background(), codec.MediaTypeCBOR)

	out, err := c.ReadResource(ctx, URI("lamp", protocol.KindProperty, "brightness"))
	if err != nil {
		t.Fatalf("ReadResource() error = %v", err)
	}
	if out.Type != codec.MediaTypeCBOR {
		t.Errorf("Type = %q, want CBOR", out.Type)
	}
	if v, _ := out.Value(); v != uint64(20) {
		t.Errorf("value = %v (%T), want 20", v, v)
	}
}

func TestClient_Errors(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newStarted(t)

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{
			name: "unknown thing",
			call: func() error { _, err := c.ReadResource(ctx, URI("fridge", protocol.KindThing, "")); return err },
			want: thing.ErrThingNotFound,
		},
		{
			name: "undeclared property",
			call: func() error {
				_, err := c.ReadResource(ctx, URI("lamp", protocol.KindProperty, "color"))
				return err
			},
			want: thing.ErrPropertyNotFound,
		},
		{
			name: "unbound action",
			call: func() error {
				_, err := c.InvokeResource(ctx, URI("lamp", protocol.KindAction, "reboot"), protocol.Content{})
				return err
			},
			want: thing.ErrUnbound,
		},
		{
			name: "write action",
			call: func() error {
				_, err := c.WriteResource(ctx, URI("lamp", protocol.KindAction, "toggle"), protocol.Content{})
				return err
			},
			want: protocol.ErrOperationNotAllowed,
		},
		{
			name: "read event",
			call: func() error {
				_, err := c.ReadResource(ctx, URI("lamp", protocol.KindEvent, "overheated"))
				return err
			},
			want: protocol.ErrOperationNotAllowed,
		},
		{
			name: "foreign scheme",
			call: func() error { _, err := c.ReadResource(ctx, "http://gw/things/lamp"); return err },
			want: protocol.ErrUnsupportedScheme,
		},
		{
			name: "bad uri",
			call: func() error { _, err := c.ReadResource(ctx, "thing://local/lamp"); return err },
			want: protocol.ErrInvalidResource,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClient_Unlink(t *testing.T) {
	ctx := context.Background()
	c, reg, lamp := newStarted(t)

	if _, err := c.UnlinkResource(ctx, URI("lamp", protocol.KindAction, "toggle")); err != nil {
		t.Fatalf("unlink action error = %v", err)
	}
	if _, err := lamp.InvokeAction(ctx, "toggle", nil); !errors.Is(err, thing.ErrActionNotFound) {
		t.Errorf("invoke after unlink error = %v, want ErrActionNotFound", err)
	}
	if _, err := c.UnlinkResource(ctx, URI("lamp", protocol.KindAction, "toggle")); !errors.Is(err, thing.ErrActionNotFound) {
		t.Errorf("second unlink error = %v, want ErrActionNotFound", err)
	}

	if _, err := c.UnlinkResource(ctx, URI("lamp", protocol.KindThing, "")); err != nil {
		t.Fatalf("unlink thing error = %v", err)
	}
	if reg.Count() != 0 {
		t.Errorf("Count() = %d after unlinking the thing, want 0", reg.Count())
	}
}

func TestClient_NotStarted(t *testing.T) {
	c := NewClient(thing.NewRegistry())
	if _, err := c.ReadResource(context.Background(), URI("lamp", protocol.KindThing, "")); !errors.Is(err, protocol.ErrNotStarted) {
		t.Errorf("ReadResource() error = %v, want ErrNotStarted", err)
	}
}

func TestFactory(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(thing.NewRegistry())

	if _, err := f.Client(); !errors.Is(err, protocol.ErrNotInitialised) {
		t.Errorf("Client() before Init error = %v, want ErrNotInitialised", err)
	}
	if err := f.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	c1, err := f.Client()
	if err != nil {
		t.Fatalf("Client() error = %v", err)
	}
	c2, _ := f.Client()
	if c1 != c2 {
		t.Error("Client() should return the same client")
	}
	if s := c1.Schemes(); len(s) != 1 || s[0] != Scheme {
		t.Errorf("Schemes() = %v, want [thing]", s)
	}
	if err := f.Destroy(ctx); err != nil {
		t.Errorf("Destroy() error = %v", err)
	}
	if _, err := f.Client(); !errors.Is(err, protocol.ErrNotInitialised) {
		t.Errorf("Client() after Destroy error = %v, want ErrNotInitialised", err)
	}

	if err := NewFactory(nil).Init(ctx); err == nil {
		t.Error("Init() with nil registry should fail")
	}
}
