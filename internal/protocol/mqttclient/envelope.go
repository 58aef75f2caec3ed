package mqttclient

import (
	"fmt"

	"github.com/nerrad567/gray-logic-things/internal/codec"
	"github.com/nerrad567/gray-logic-things/internal/protocol"
)

// Request is the envelope published for one verb.
type Request struct {
	ID       string        `json:"id"`
	Verb     protocol.Verb `json:"verb"`
	Resource string        `json:"resource"`

	ContentType string `json:"content_type,omitempty"`
	Accept      string `json:"accept,omitempty"`
	Payload     []byte `json:"payload,omitempty"`
}

// Response is the envelope the binding publishes back. Code is
// protocol.CodeOK on success.
type Response struct {
	ID      string        `json:"id"`
	Code    protocol.Code `json:"code,omitempty"`
	Message string        `json:"message,omitempty"`

	ContentType string `json:"content_type,omitempty"`
	Payload     []byte `json:"payload,omitempty"`
}

// Content returns the response payload.
func (r Response) Content() protocol.Content {
	if len(r.Payload) == 0 {
		return protocol.Content{}
	}
	return protocol.Content{Type: r.ContentType, Body: r.Payload}
}

// Err converts a failed response back into the matching sentinel.
func (r Response) Err() error {
	if r.Code == protocol.CodeOK {
		return nil
	}
	return fmt.Errorf("%w: remote: %s", r.Code.Err(), r.Message)
}

// EncodeEnvelope marshals a Request or Response.
func EncodeEnvelope(v any) ([]byte, error) {
	return codec.Marshal(codec.MediaTypeCBOR, v)
}

// DecodeEnvelope unmarshals a Request or Response.
func DecodeEnvelope(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty envelope", protocol.ErrInvalidContent)
	}
	if err := codec.Unmarshal(codec.MediaTypeCBOR, data, v); err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrInvalidContent, err)
	}
	return nil
}
