package td

import (
	"github.com/nerrad567/gray-logic-things/internal/codec"
	"github.com/nerrad567/gray-logic-things/internal/protocol"
	"github.com/nerrad567/gray-logic-things/internal/thing"
)

// Context is the JSON-LD context of every descriptor.
const Context = "https://www.w3.org/2022/wot/td/v1.1"

// Form operation types.
const (
	OpReadProperty   = "readproperty"
	OpWriteProperty  = "writeproperty"
	OpInvokeAction   = "invokeaction"
	OpSubscribeEvent = "subscribeevent"
)

// Security scheme names.
const (
	SecurityNone   = "nosec_sc"
	SecurityBearer = "bearer_sc"
)

// Serializer builds descriptors from a Thing's Snapshot.
type Serializer struct {
	// BaseURL is emitted as "base". Form hrefs are relative to it.
	BaseURL string

	// BearerAuth declares bearer-token security instead of nosec.
	BearerAuth bool
}

// Describe implements thing.Describer.
func (s *Serializer) Describe(t *thing.Thing) (map[string]any, error) {
	shape := t.Snapshot()

	doc := map[string]any{
		"@context": Context,
		"id":       "urn:thing:" + shape.Name,
		"title":    shape.Name,
	}
	if s.BaseURL != "" {
		doc["base"] = s.BaseURL
	}

	if s.BearerAuth {
		doc["securityDefinitions"] = map[string]any{
			SecurityBearer: map[string]any{"scheme": "bearer", "in": "header", "alg": "HS256"},
		}
		doc["security"] = []any{SecurityBearer}
	} else {
		doc["securityDefinitions"] = map[string]any{
			SecurityNone: map[string]any{"scheme": "nosec"},
		}
		doc["security"] = []any{SecurityNone}
	}

	properties := make(map[string]any, len(shape.Properties))
	for _, p := range shape.Properties {
		affordance := schemaFields(p.Schema)
		affordance["forms"] = []any{
			form(shape.Name, protocol.KindProperty, p.Name, OpReadProperty, OpWriteProperty),
		}
		properties[p.Name] = affordance
	}

	actions := make(map[string]any, len(shape.Actions))
	for _, a := range shape.Actions {
		affordance := map[string]any{
			"forms": []any{form(shape.Name, protocol.KindAction, a.Name, OpInvokeAction)},
		}
		if a.Input != nil {
			affordance["input"] = map[string]any(a.Input)
		}
		if a.Output != nil {
			affordance["output"] = map[string]any(a.Output)
		}
		actions[a.Name] = affordance
	}

	events := make(map[string]any, len(shape.Events))
	for _, e := range shape.Events {
		affordance := map[string]any{
			"forms": []any{form(shape.Name, protocol.KindEvent, e.Name, OpSubscribeEvent)},
		}
		if e.Schema != nil {
			affordance["data"] = map[string]any(e.Schema)
		}
		events[e.Name] = affordance
	}

	doc["properties"] = properties
	doc["actions"] = actions
	doc["events"] = events
	return doc, nil
}

// schemaFields inlines a property schema into its affordance. The Snapshot
// already deep-copied the schema, so it is safe to extend.
func schemaFields(schema thing.Schema) map[string]any {
	if schema == nil {
		return make(map[string]any)
	}
	return map[string]any(schema)
}

func form(thingName string, kind protocol.Kind, name string, ops ...string) map[string]any {
	r := protocol.Resource{Thing: thingName, Kind: kind, Name: name}
	opList := make([]any, len(ops))
	for i, op := range ops {
		opList[i] = op
	}
	return map[string]any{
		"href":        r.Path()[1:],
		"op":          opList,
		"contentType": codec.Default,
	}
}
