package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-things/internal/codec"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-things/internal/protocol"
	"github.com/nerrad567/gray-logic-things/internal/thing"
)

type recorded struct {
	method, path, contentType, auth string
	body                            string
}

func startClient(t *testing.T, token string) protocol.Client {
	t.Helper()
	ctx := context.Background()

	f := NewFactory(config.HTTPClientConfig{Timeout: 5, Token: token})
	if err := f.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = f.Destroy(ctx) })

	c, err := f.Client()
	if err != nil {
		t.Fatalf("Client() error = %v", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Stop(ctx) })
	return c
}

func TestClient_VerbsMapToMethods(t *testing.T) {
	var got []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = append(got, recorded{
			method:      r.Method,
			path:        r.URL.EscapedPath(),
			contentType: r.Header.Get("Content-Type"),
			auth:        r.Header.Get("Authorization"),
			body:        string(body),
		})
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		//nolint:errcheck // test server
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := startClient(t, "secret-token")
	ctx := context.Background()
	base := srv.URL + "/things/living%20room"
	payload, _ := protocol.NewContent(codec.MediaTypeJSON, 42)

	out, err := c.ReadResource(ctx, base+"/properties/level")
	if err != nil {
		t.Fatalf("ReadResource() error = %v", err)
	}
	if out.Type != codec.MediaTypeJSON {
		t.Errorf("response Type = %q, want normalized JSON", out.Type)
	}
	if _, err := c.WriteResource(ctx, base+"/properties/level", payload); err != nil {
		t.Fatalf("WriteResource() error = %v", err)
	}
	if _, err := c.InvokeResource(ctx, base+"/actions/dim", payload); err != nil {
		t.Fatalf("InvokeResource() error = %v", err)
	}
	out, err = c.UnlinkResource(ctx, base+"/events/alarm")
	if err != nil {
		t.Fatalf("UnlinkResource() error = %v", err)
	}
	if !out.IsEmpty() {
		t.Errorf("unlink content = %+v, want empty", out)
	}

	want := []recorded{
		{method: "GET", path: "/things/living%20room/properties/level"},
		{method: "PUT", path: "/things/living%20room/properties/level", contentType: "application/json", body: "42"},
		{method: "POST", path: "/things/living%20room/actions/dim", contentType: "application/json", body: "42"},
		{method: "DELETE", path: "/things/living%20room/events/alarm"},
	}
	if len(got) != len(want) {
		t.Fatalf("server saw %d requests, want %d", len(got), len(want))
	}
	for i := range want {
		want[i].auth = "Bearer secret-token"
		if got[i] != want[i] {
			t.Errorf("request[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		path   string
		want   error
	}{
		{"missing property", http.StatusNotFound, "/things/lamp/properties/x", thing.ErrPropertyNotFound},
		{"missing thing", http.StatusNotFound, "/things/lamp", thing.ErrNotFound},
		{"unbound", http.StatusConflict, "/things/lamp/actions/reboot", thing.ErrUnbound},
		{"not allowed", http.StatusMethodNotAllowed, "/things/lamp/events/e", protocol.ErrOperationNotAllowed},
		{"server error", http.StatusInternalServerError, "/things/lamp", protocol.ErrTransport},
		{"unauthorised", http.StatusUnauthorized, "/things/lamp", protocol.ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				//nolint:errcheck // test server
				json.NewEncoder(w).Encode(map[string]any{"status": tt.status, "code": "x", "message": "remote says no"})
			}))
			defer srv.Close()

			c := startClient(t, "")
			_, err := c.ReadResource(context.Background(), srv.URL+tt.path)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if !strings.Contains(err.Error(), "remote says no") {
				t.Errorf("error %q should carry the remote message", err)
			}
		})
	}
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := startClient(t, "")
	if _, err := c.ReadResource(context.Background(), url+"/things/lamp"); !errors.Is(err, protocol.ErrTransport) {
		t.Errorf("error = %v, want ErrTransport", err)
	}
}

func TestClient_ResponseSizeCap(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"at the cap", maxResponseSize, false},
		{"over the cap", 5 << 20, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A JSON string of exactly tt.size bytes, quotes included.
			body := `"` + strings.Repeat("a", tt.size-2) + `"`
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", codec.MediaTypeJSON)
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()

			c := startClient(t, "")
			out, err := c.ReadResource(context.Background(), srv.URL+"/things/lamp/properties/blob")
			if tt.wantErr {
				if !errors.Is(err, protocol.ErrTransport) {
					t.Errorf("error = %v, want ErrTransport", err)
				}
				if protocol.CodeOf(err) != protocol.CodeInternal {
					t.Errorf("CodeOf() = %q, want %q", protocol.CodeOf(err), protocol.CodeInternal)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadResource() error = %v", err)
			}
			if len(out.Body) != tt.size {
				t.Errorf("body = %d bytes, want %d", len(out.Body), tt.size)
			}
		})
	}
}

func TestClient_RejectsForeignScheme(t *testing.T) {
	c := startClient(t, "")
	if _, err := c.ReadResource(context.Background(), "mqtt://broker/things/lamp"); !errors.Is(err, protocol.ErrUnsupportedScheme) {
		t.Errorf("error = %v, want ErrUnsupportedScheme", err)
	}
}

func TestFactory_ClientBeforeInit(t *testing.T) {
	f := NewFactory(config.HTTPClientConfig{})
	if _, err := f.Client(); !errors.Is(err, protocol.ErrNotInitialised) {
		t.Errorf("Client() error = %v, want ErrNotInitialised", err)
	}
}
