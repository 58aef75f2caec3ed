package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-things/internal/codec"
	"github.com/nerrad567/gray-logic-things/internal/protocol"
	"github.com/nerrad567/gray-logic-things/internal/protocol/local"
)

// maxNameLen bounds Thing and member names taken from the path.
const maxNameLen = 256

// thingSummary is one entry of the Thing listing.
type thingSummary struct {
	Name       string   `json:"name"`
	Href       string   `json:"href"`
	Properties []string `json:"properties"`
	Actions    []string `json:"actions"`
	Events     []string `json:"events"`
}

// handleListThings returns a summary of every hosted Thing.
func (s *Server) handleListThings(w http.ResponseWriter, _ *http.Request) {
	things := s.registry.List()
	out := make([]thingSummary, 0, len(things))
	for _, t := range things {
		shape := t.Snapshot()
		sum := thingSummary{
			Name:       shape.Name,
			Href:       protocol.ThingResource("", "", shape.Name).Path(),
			Properties: make([]string, 0, len(shape.Properties)),
			Actions:    make([]string, 0, len(shape.Actions)),
			Events:     make([]string, 0, len(shape.Events)),
		}
		for _, p := range shape.Properties {
			sum.Properties = append(sum.Properties, p.Name)
		}
		for _, a := range shape.Actions {
			sum.Actions = append(sum.Actions, a.Name)
		}
		for _, e := range shape.Events {
			sum.Events = append(sum.Events, e.Name)
		}
		out = append(out, sum)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"things": out,
		"count":  len(out),
	})
}

// resourceHandler serves one verb on one resource kind by routing the
// request through the in-process client.
func (s *Server) resourceHandler(verb protocol.Verb, kind protocol.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		thingName, err := pathParam(r, "thing")
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		var name string
		if kind != protocol.KindThing {
			if name, err = pathParam(r, "name"); err != nil {
				writeBadRequest(w, err.Error())
				return
			}
		}

		accept := codec.Negotiate(r.Header.Get("Accept"))
		if accept == "" {
			writeError(w, http.StatusNotAcceptable, ErrCodeNotAcceptable,
				"supported response types: "+codec.MediaTypeJSON+", "+codec.MediaTypeCBOR)
			return
		}

		var payload protocol.Content
		if verb == protocol.VerbWrite || verb == protocol.VerbInvoke {
			if payload, err = readContent(r); err != nil {
				writeThingError(w, err)
				return
			}
		}

		ctx := protocol.WithAccept(r.Context(), accept)
		uri := local.URI(thingName, kind, name)

		out, err := protocol.Perform(ctx, s.client, verb, uri, payload)
		if verb != protocol.VerbRead {
			s.recordAudit(r, verb, kind, thingName, name, err)
		}
		if err != nil {
			s.logger.Debug("resource request failed",
				"verb", verb,
				"uri", uri,
				"error", err,
				"request_id", requestID(r.Context()),
			)
			writeThingError(w, err)
			return
		}

		if verb != protocol.VerbRead {
			s.logger.Info("resource updated",
				"verb", verb,
				"uri", uri,
				"subject", subject(r.Context()),
			)
		}
		writeContent(w, out)
	}
}

// readContent reads the request body as protocol content. An empty
// Content-Type is taken as the default codec.
func readContent(r *http.Request) (protocol.Content, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return protocol.Content{}, fmt.Errorf("%w: body exceeds %d bytes", protocol.ErrInvalidContent, tooLarge.Limit)
		}
		return protocol.Content{}, fmt.Errorf("%w: reading body: %w", protocol.ErrInvalidContent, err)
	}
	if len(body) == 0 {
		return protocol.Content{}, nil
	}

	contentType := codec.Normalize(r.Header.Get("Content-Type"))
	if !codec.Supported(contentType) {
		return protocol.Content{}, fmt.Errorf("%w: %q", codec.ErrUnsupportedMediaType, contentType)
	}
	return protocol.Content{Type: contentType, Body: body}, nil
}

// writeContent writes c with its media type, or 204 when c is empty.
func writeContent(w http.ResponseWriter, c protocol.Content) {
	if c.IsEmpty() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", codec.Normalize(c.Type))
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(c.Body)
}

// pathParam returns a decoded chi URL parameter. chi matches on the raw
// path when the request carries escaped characters, so those values arrive
// still percent-encoded.
func pathParam(r *http.Request, key string) (string, error) {
	value := chi.URLParam(r, key)
	if r.URL.RawPath != "" {
		decoded, err := url.PathUnescape(value)
		if err != nil {
			return "", fmt.Errorf("invalid %s in path", key)
		}
		value = decoded
	}
	if value == "" || len(value) > maxNameLen {
		return "", fmt.Errorf("invalid %s in path", key)
	}
	return value, nil
}
