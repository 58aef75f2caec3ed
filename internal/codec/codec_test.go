package codec

import (
	"errors"
	"reflect"
	"testing"
)

func TestMarshalUnmarshal(t *testing.T) {
	value := map[string]any{"on": true, "level": 42, "label": "kitchen"}

	tests := []struct {
		name      string
		mediaType string
		wantLevel any
	}{
		{name: "json", mediaType: MediaTypeJSON, wantLevel: float64(42)},
		{name: "json with charset", mediaType: "application/json; charset=utf-8", wantLevel: float64(42)},
		{name: "cbor", mediaType: MediaTypeCBOR, wantLevel: uint64(42)},
		{name: "empty means json", mediaType: "", wantLevel: float64(42)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(tt.mediaType, value)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}

			var got any
			if err := Unmarshal(tt.mediaType, data, &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			m, ok := got.(map[string]any)
			if !ok {
				t.Fatalf("decoded %T, want map[string]any", got)
			}
			if m["on"] != true || m["label"] != "kitchen" {
				t.Errorf("decoded = %v", m)
			}
			if !reflect.DeepEqual(m["level"], tt.wantLevel) {
				t.Errorf("level = %#v, want %#v", m["level"], tt.wantLevel)
			}
		})
	}
}

func TestCBOR_CanonicalKeyOrder(t *testing.T) {
	a, err := Marshal(MediaTypeCBOR, map[string]any{"b": 1, "a": 2, "aa": 3})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	b, err := Marshal(MediaTypeCBOR, map[string]any{"aa": 3, "a": 2, "b": 1})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(a) != string(b) {
		t.Error("CBOR encoding depends on map iteration order")
	}
}

func TestCBOR_NestedMapsDecodeWithStringKeys(t *testing.T) {
	data, err := Marshal(MediaTypeCBOR, map[string]any{"outer": map[string]any{"inner": "x"}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got map[string]any
	if err := Unmarshal(MediaTypeCBOR, data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := got["outer"].(map[string]any); !ok {
		t.Errorf("outer = %T, want map[string]any", got["outer"])
	}
}

func TestUnmarshal_EmptyData(t *testing.T) {
	got := any("unchanged")
	if err := Unmarshal(MediaTypeJSON, nil, &got); err != nil {
		t.Fatalf("Unmarshal(nil) error = %v", err)
	}
	if got != "unchanged" {
		t.Errorf("value = %v, want unchanged", got)
	}
}

func TestUnsupportedMediaType(t *testing.T) {
	if _, err := Marshal("text/plain", "x"); !errors.Is(err, ErrUnsupportedMediaType) {
		t.Errorf("Marshal() error = %v, want ErrUnsupportedMediaType", err)
	}
	var v any
	if err := Unmarshal("application/xml", []byte("<a/>"), &v); !errors.Is(err, ErrUnsupportedMediaType) {
		t.Errorf("Unmarshal() error = %v, want ErrUnsupportedMediaType", err)
	}
	if Supported("text/plain") {
		t.Error("Supported(text/plain) = true")
	}
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		accept string
		want   string
	}{
		{"", MediaTypeJSON},
		{"*/*", MediaTypeJSON},
		{"application/cbor", MediaTypeCBOR},
		{"application/json, application/cbor", MediaTypeJSON},
		{"application/json;q=0.5, application/cbor", MediaTypeCBOR},
		{"text/html, application/cbor;q=0.9", MediaTypeCBOR},
		{"application/cbor;q=0", ""},
		{"text/html", ""},
	}

	for _, tt := range tests {
		t.Run(tt.accept, func(t *testing.T) {
			if got := Negotiate(tt.accept); got != tt.want {
				t.Errorf("Negotiate(%q) = %q, want %q", tt.accept, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"":                                MediaTypeJSON,
		"Application/CBOR":                MediaTypeCBOR,
		"application/json; charset=utf-8": MediaTypeJSON,
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
