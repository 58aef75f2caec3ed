package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-things/internal/protocol"
	"github.com/nerrad567/gray-logic-things/internal/protocol/local"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// handlePropertyHistory returns recorded changes of one property, newest first.
func (s *Server) handlePropertyHistory(w http.ResponseWriter, r *http.Request) {
	thingName, name, limit, ok := s.historyRequest(w, r, protocol.KindProperty)
	if !ok {
		return
	}

	entries, err := s.history.PropertyHistory(r.Context(), thingName, name, limit)
	if err != nil {
		s.logger.Error("property history query failed", "thing", thingName, "property", name, "error", err)
		writeInternalError(w, "failed to query property history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"thing":    thingName,
		"property": name,
		"history":  entries,
		"count":    len(entries),
	})
}

// handleEventHistory returns recorded emissions of one event, newest first.
func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	thingName, name, limit, ok := s.historyRequest(w, r, protocol.KindEvent)
	if !ok {
		return
	}

	entries, err := s.history.EventHistory(r.Context(), thingName, name, limit)
	if err != nil {
		s.logger.Error("event history query failed", "thing", thingName, "event", name, "error", err)
		writeInternalError(w, "failed to query event history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"thing":   thingName,
		"event":   name,
		"history": entries,
		"count":   len(entries),
	})
}

// historyRequest validates a history query and writes the error response
// when it fails. History outlives members, so only the Thing must exist.
func (s *Server) historyRequest(w http.ResponseWriter, r *http.Request, kind protocol.Kind) (string, string, int, bool) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "history is not enabled")
		return "", "", 0, false
	}

	thingName, err := pathParam(r, "thing")
	if err != nil {
		writeBadRequest(w, err.Error())
		return "", "", 0, false
	}
	name, err := pathParam(r, "name")
	if err != nil {
		writeBadRequest(w, err.Error())
		return "", "", 0, false
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return "", "", 0, false
	}

	if _, err := s.registry.Get(thingName); err != nil {
		s.logger.Debug("history for unknown thing", "uri", local.URI(thingName, kind, name))
		writeThingError(w, err)
		return "", "", 0, false
	}

	return thingName, name, limit, true
}

// parseHistoryLimit parses the limit query parameter.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}

	return limit, nil
}
