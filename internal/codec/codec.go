package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Supported media types.
const (
	MediaTypeJSON = "application/json"
	MediaTypeCBOR = "application/cbor"

	// Default is used when a caller names no media type.
	Default = MediaTypeJSON
)

// ErrUnsupportedMediaType is returned for media types with no codec.
var ErrUnsupportedMediaType = errors.New("codec: unsupported media type")

// cborEnc and cborDec are shared by every binding so Things look the same
// whichever transport carries them. Map keys are sorted canonically, and
// maps decode as map[string]any so decoded payloads match the JSON codec.
var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	cborEnc, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: creating CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:      cbor.DupMapKeyQuiet,
		IndefLength:    cbor.IndefLengthAllowed,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}
	cborDec, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: creating CBOR decoder mode: %v", err))
	}
}

// Normalize strips parameters and case from a Content-Type value.
// An empty value normalizes to Default.
func Normalize(contentType string) string {
	if strings.TrimSpace(contentType) == "" {
		return Default
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

// Supported reports whether a codec exists for the media type.
func Supported(contentType string) bool {
	switch Normalize(contentType) {
	case MediaTypeJSON, MediaTypeCBOR:
		return true
	default:
		return false
	}
}

// Marshal encodes v as mediaType.
func Marshal(mediaType string, v any) ([]byte, error) {
	switch Normalize(mediaType) {
	case MediaTypeJSON:
		return json.Marshal(v)
	case MediaTypeCBOR:
		return cborEnc.Marshal(v)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, mediaType)
	}
}

// Unmarshal decodes data of mediaType into v. Empty data leaves v untouched,
// so an absent payload decodes to the zero value.
func Unmarshal(mediaType string, data []byte, v any) error {
	if !Supported(mediaType) {
		return fmt.Errorf("%w: %q", ErrUnsupportedMediaType, mediaType)
	}
	if len(data) == 0 {
		return nil
	}

	switch Normalize(mediaType) {
	case MediaTypeCBOR:
		return cborDec.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, v)
	}
}

// Negotiate picks the response media type for an Accept header: the
// supported type with the highest q-value, ties broken by header order.
// Wildcards and an empty header select Default. Returns "" when the header
// only lists unsupported types.
func Negotiate(accept string) string {
	if strings.TrimSpace(accept) == "" {
		return Default
	}

	type candidate struct {
		mediaType string
		q         float64
		pos       int
	}
	var candidates []candidate

	for i, part := range strings.Split(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		q := 1.0
		if raw, ok := params["q"]; ok {
			if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
				q = parsed
			}
		}
		if q <= 0 {
			continue
		}

		switch mediaType {
		case "*/*", "application/*":
			mediaType = Default
		case MediaTypeJSON, MediaTypeCBOR:
		default:
			continue
		}
		candidates = append(candidates, candidate{mediaType: mediaType, q: q, pos: i})
	}

	if len(candidates) == 0 {
		return ""
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].q != candidates[j].q {
			return candidates[i].q > candidates[j].q
		}
		return candidates[i].pos < candidates[j].pos
	})
	return candidates[0].mediaType
}
