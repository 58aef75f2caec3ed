package protocol

import (
	"fmt"

	"github.com/nerrad567/gray-logic-things/internal/codec"
)

// Content is a payload together with its media type.
//
// A zero Content carries no value. Clients treat it as "no input" for
// invoke and as nil for write.
type Content struct {
	Type string
	Body []byte
}

// NewContent encodes v as mediaType (codec.Default when empty).
func NewContent(mediaType string, v any) (Content, error) {
	if mediaType == "" {
		mediaType = codec.Default
	}
	body, err := codec.Marshal(mediaType, v)
	if err != nil {
		return Content{}, fmt.Errorf("encoding content: %w", err)
	}
	return Content{Type: codec.Normalize(mediaType), Body: body}, nil
}

// IsEmpty reports whether the content has no body.
func (c Content) IsEmpty() bool {
	return len(c.Body) == 0
}

// Decode unmarshals the body into v. An empty body leaves v untouched.
func (c Content) Decode(v any) error {
	if err := codec.Unmarshal(c.Type, c.Body, v); err != nil {
		return fmt.Errorf("%w: decoding %s: %w", ErrInvalidContent, codec.Normalize(c.Type), err)
	}
	return nil
}

// Value decodes the body into an untyped value; empty content yields nil.
func (c Content) Value() (any, error) {
	var v any
	if err := c.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
