package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/gray-logic-things/internal/protocol"
)

// Error is the body of every non-2xx response. Code is a protocol.Code for
// resource failures, so httpclient can map it back to the same sentinel a
// local call returns, or one of the API codes below.
type Error struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Codes for failures outside the resource verbs.
const (
	ErrCodeUnauthorized       = "unauthorised"
	ErrCodeNotAcceptable      = "not_acceptable"
	ErrCodeServiceUnavailable = "service_unavailable"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // the client may already be gone
		json.NewEncoder(w).Encode(v)
	}
}

// writeError picks the request ID up from the response header set by
// requestIDMiddleware.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// writeThingError renders a verb failure with its Code and matching status.
func writeThingError(w http.ResponseWriter, err error) {
	code := protocol.CodeOf(err)
	writeError(w, code.HTTPStatus(), string(code), err.Error())
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, string(protocol.CodeBadRequest), message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, string(protocol.CodeInternal), message)
}
