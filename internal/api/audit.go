package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-things/internal/audit"
	"github.com/nerrad567/gray-logic-things/internal/protocol"
)

// auditWriteTimeout bounds the audit insert after the request context ends.
const auditWriteTimeout = 2 * time.Second

// recordAudit stores one mutating request. Failures are logged and never
// change the response.
func (s *Server) recordAudit(r *http.Request, verb protocol.Verb, kind protocol.Kind, thingName, name string, opErr error) {
	if s.audit == nil {
		return
	}

	entry := &audit.Entry{
		Source:  audit.SourceHTTP,
		Subject: subject(r.Context()),
		Verb:    string(verb),
		Thing:   thingName,
		Kind:    string(kind),
		Name:    name,
		Code:    string(protocol.CodeOf(opErr)),
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditWriteTimeout)
	defer cancel()
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit entry",
			"verb", verb,
			"thing", thingName,
			"error", err,
		)
	}
}

// handleListAudit returns a page of the audit trail, newest first.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "audit is not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Verb:   q.Get("verb"),
		Thing:  q.Get("thing"),
		Source: q.Get("source"),
	}
	for _, p := range []struct {
		key string
		dst *int
	}{
		{"limit", &filter.Limit},
		{"offset", &filter.Offset},
	} {
		raw := q.Get(p.key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "invalid "+p.key)
			return
		}
		*p.dst = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		writeInternalError(w, "failed to query audit log")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
