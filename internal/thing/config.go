package thing

import (
	"context"

	"github.com/nerrad567/gray-logic-things/internal/infrastructure/config"
)

// FromConfig builds a Thing from its declarative configuration.
//
// Actions flagged with Echo get a handler that returns the input unchanged;
// all other actions start unbound.
func FromConfig(cfg config.ThingConfig) *Thing {
	t := New(cfg.Name)

	for _, p := range cfg.Properties {
		t.AddProperty(p.Name, Schema(p.Schema), p.Initial)
	}
	for _, a := range cfg.Actions {
		t.AddAction(a.Name, Schema(a.Input), Schema(a.Output))
		if a.Echo {
			//nolint:errcheck // action was declared on the line above
			t.OnInvokeAction(a.Name, echoHandler)
		}
	}
	for _, e := range cfg.Events {
		t.AddEvent(e.Name, Schema(e.Schema))
	}

	return t
}

func echoHandler(_ context.Context, input any) (any, error) {
	return input, nil
}
