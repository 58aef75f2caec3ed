package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-things/internal/api"
	"github.com/nerrad567/gray-logic-things/internal/codec"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-things/internal/protocol/local"
	"github.com/nerrad567/gray-logic-things/internal/thing"
)

const testSecret = "thingctl-test-secret-at-least-32-characters"

// startRuntime serves a "lamp" Thing over the HTTP API and returns its base URL.
func startRuntime(t *testing.T) string {
	t.Helper()

	reg := thing.NewRegistry()
	lamp := thing.New("lamp").
		AddProperty("brightness", nil, 20).
		AddAction("toggle", nil, nil)
	//nolint:errcheck // declared above
	lamp.OnInvokeAction("toggle", func(_ context.Context, in any) (any, error) {
		return map[string]any{"got": in}, nil
	})
	//nolint:errcheck // fresh registry
	reg.Add(lamp)

	client := local.NewClient(reg)
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("local Start() error = %v", err)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	srv, err := api.New(api.Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: port},
		Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}},
		Logger:   logging.Discard(),
		Registry: reg,
		Client:   client,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("api.New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return fmt.Sprintf("http://%s", srv.Addr())
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
site:
  id: test-site
api:
  port: 8080
logging:
  level: error
  format: text
security:
  jwt:
    secret: "` + testSecret + `"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

// execute runs thingctl with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return strings.TrimSpace(out.String()), err
}

func TestToken(t *testing.T) {
	cfgPath := writeConfig(t)

	token, err := execute(t, "token", "--config", cfgPath, "--subject", "tester")
	if err != nil {
		t.Fatalf("token error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("token = %q, want a JWT", token)
	}

	if _, err := execute(t, "token"); err == nil {
		t.Error("token without a configured secret should fail")
	}
}

func TestVerbs_OverHTTP(t *testing.T) {
	base := startRuntime(t)
	cfgPath := writeConfig(t)
	token, err := execute(t, "token", "--config", cfgPath)
	if err != nil {
		t.Fatalf("token error = %v", err)
	}
	prop := base + "/things/lamp/properties/brightness"

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr string
	}{
		{name: "read", args: []string{"read", prop}, want: "20"},
		{name: "write json", args: []string{"write", prop, "65", "--token", token}, want: "65"},
		{name: "write cbor", args: []string{"write", prop, "70", "--token", token, "--content-type", codec.MediaTypeCBOR}, want: "70"},
		{name: "read back cbor", args: []string{"read", prop, "--accept", codec.MediaTypeCBOR}, want: "70"},
		{name: "invoke string input", args: []string{"invoke", base + "/things/lamp/actions/toggle", "on"}, want: `"got": "on"`},
		{name: "write without token", args: []string{"write", prop, "1"}, wantErr: "401"},
		{name: "missing thing", args: []string{"read", base + "/things/ghost"}, wantErr: "not found"},
		{name: "unsupported scheme", args: []string{"read", "coap://x/things/lamp"}, wantErr: "unsupported scheme"},
		{name: "wrong arg count", args: []string{"write", prop}, wantErr: "accepts 2 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append(tt.args, "--config", cfgPath)...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output = %q, want containing %q", out, tt.want)
			}
		})
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		arg  string
		want any
	}{
		{"42", float64(42)},
		{"true", true},
		{`{"a":1}`, map[string]any{"a": float64(1)}},
		{"hello", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			c, err := parseValue(codec.MediaTypeJSON, tt.arg)
			if err != nil {
				t.Fatalf("parseValue() error = %v", err)
			}
			got, err := c.Value()
			if err != nil {
				t.Fatalf("Value() error = %v", err)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("value = %v, want %v", got, tt.want)
			}
		})
	}
}
