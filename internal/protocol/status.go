package protocol

import (
	"context"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-things/internal/codec"
	"github.com/nerrad567/gray-logic-things/internal/thing"
)

// Code classifies a verb failure so bindings can carry it over the wire
// and clients can turn it back into the matching sentinel.
type Code string

// Failure codes. CodeOK marks success.
const (
	CodeOK                   Code = ""
	CodeThingNotFound        Code = "thing_not_found"
	CodePropertyNotFound     Code = "property_not_found"
	CodeActionNotFound       Code = "action_not_found"
	CodeEventNotFound        Code = "event_not_found"
	CodeUnbound              Code = "unbound"
	CodeNotAllowed           Code = "not_allowed"
	CodeBadRequest           Code = "bad_request"
	CodeUnsupportedMediaType Code = "unsupported_media_type"
	CodeTimeout              Code = "timeout"
	CodeInternal             Code = "internal_error"
)

// CodeOf classifies err. A nil error is CodeOK.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, thing.ErrThingNotFound):
		return CodeThingNotFound
	case errors.Is(err, thing.ErrPropertyNotFound):
		return CodePropertyNotFound
	case errors.Is(err, thing.ErrActionNotFound):
		return CodeActionNotFound
	case errors.Is(err, thing.ErrEventNotFound):
		return CodeEventNotFound
	case errors.Is(err, thing.ErrUnbound):
		return CodeUnbound
	case errors.Is(err, ErrOperationNotAllowed):
		return CodeNotAllowed
	case errors.Is(err, codec.ErrUnsupportedMediaType):
		return CodeUnsupportedMediaType
	case errors.Is(err, ErrInvalidContent), errors.Is(err, ErrInvalidResource),
		errors.Is(err, ErrUnsupportedScheme), errors.Is(err, thing.ErrInvalidName):
		return CodeBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeInternal
	}
}

// Err returns the sentinel a local caller would have seen for c, or nil
// for CodeOK. Unknown codes map to ErrTransport.
func (c Code) Err() error {
	switch c {
	case CodeOK:
		return nil
	case CodeThingNotFound:
		return thing.ErrThingNotFound
	case CodePropertyNotFound:
		return thing.ErrPropertyNotFound
	case CodeActionNotFound:
		return thing.ErrActionNotFound
	case CodeEventNotFound:
		return thing.ErrEventNotFound
	case CodeUnbound:
		return thing.ErrUnbound
	case CodeNotAllowed:
		return ErrOperationNotAllowed
	case CodeUnsupportedMediaType:
		return codec.ErrUnsupportedMediaType
	case CodeBadRequest:
		return ErrInvalidContent
	default:
		return ErrTransport
	}
}

// HTTPStatus returns the response status used for c.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeOK:
		return http.StatusOK
	case CodeThingNotFound, CodePropertyNotFound, CodeActionNotFound, CodeEventNotFound:
		return http.StatusNotFound
	case CodeUnbound:
		return http.StatusConflict
	case CodeNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
