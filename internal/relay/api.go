// ABOUTME: Caller-facing /api handlers that forward operations through the tunnel.
// ABOUTME: Applies the request timeout and maps failures to 503/504/500 JSON errors.

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/soundloop/soundloop-relay/internal/correlator"
	"github.com/soundloop/soundloop-relay/internal/transport"
)

// registerAPIRoutes mounts the forwarded control operations. Paths mirror the
// local mixer API one-to-one; the relay treats them as opaque beyond basic
// segment validation.
func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/input/", s.intSetter("/api/input/"))
	mux.HandleFunc("/api/output/", s.intSetter("/api/output/"))
	mux.HandleFunc("/api/latency/", s.intSetter("/api/latency/"))
	mux.HandleFunc("/api/loopback/", s.nameSetter("/api/loopback/"))
	mux.HandleFunc("/api/preset/", s.nameSetter("/api/preset/"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.forward(w, r, "/api/status", http.MethodGet)
}

// intSetter builds a POST handler for routes whose final segment must be an
// integer, like /api/input/75. Non-numeric segments are 404, matching the
// route converters of the original API.
func (s *Server) intSetter(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		value, ok := intSegment(r.URL.Path, prefix)
		if !ok {
			http.NotFound(w, r)
			return
		}
		s.forward(w, r, fmt.Sprintf("%s%d", prefix, value), http.MethodPost)
	}
}

// nameSetter builds a POST handler for routes whose final segment is an opaque
// name, like /api/preset/movie. The controller interprets the name; an unknown
// one comes back as its error response.
func (s *Server) nameSetter(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		name, ok := nameSegment(r.URL.Path, prefix)
		if !ok {
			http.NotFound(w, r)
			return
		}
		s.forward(w, r, prefix+name, http.MethodPost)
	}
}

// forward relays one operation to the controller and writes the outcome:
// the controller's JSON verbatim on success, 503 when no controller is
// connected, 504 on timeout, 500 on an empty response or delivery failure.
func (s *Server) forward(w http.ResponseWriter, r *http.Request, path, method string) {
	if !s.adapter.Connected() {
		s.metrics.observe(outcomeNotConnected)
		s.sendJSONError(w, http.StatusServiceUnavailable, "Local server not connected")
		return
	}

	id := s.correlator.Register(path, method)

	if err := s.adapter.Enqueue(transport.Request{ID: id, Path: path, Method: method}); err != nil {
		s.correlator.Discard(id)
		if errors.Is(err, transport.ErrNotConnected) {
			s.metrics.observe(outcomeNotConnected)
			s.sendJSONError(w, http.StatusServiceUnavailable, "Local server not connected")
			return
		}
		s.logger.Error("enqueue failed", "request_id", id, "path", path, "error", err)
		s.metrics.observe(outcomeError)
		s.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result, err := s.correlator.Await(r.Context(), id, s.config.Transport.RequestTimeout)
	if err != nil {
		switch {
		case errors.Is(err, correlator.ErrTimeout):
			s.logger.Warn("request timed out", "request_id", id, "path", path)
			s.metrics.observe(outcomeTimeout)
			s.sendJSONError(w, http.StatusGatewayTimeout, "Timeout")
		case errors.Is(err, context.Canceled):
			// Caller went away; nothing left to write.
		default:
			s.metrics.observe(outcomeError)
			s.sendJSONError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if emptyResult(result) {
		s.metrics.observe(outcomeError)
		s.sendJSONError(w, http.StatusInternalServerError, "Empty response")
		return
	}

	s.metrics.observe(outcomeOK)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(result)
}

// intSegment extracts the final path segment after prefix as a non-negative
// integer.
func intSegment(path, prefix string) (int, bool) {
	seg := strings.TrimPrefix(path, prefix)
	if seg == "" || strings.Contains(seg, "/") {
		return 0, false
	}
	v, err := strconv.Atoi(seg)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// nameSegment extracts the final path segment after prefix.
func nameSegment(path, prefix string) (string, bool) {
	seg := strings.TrimPrefix(path, prefix)
	if seg == "" || strings.Contains(seg, "/") {
		return "", false
	}
	return seg, true
}

// emptyResult reports whether the controller's body carries nothing to mirror.
func emptyResult(result json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(result))
	return trimmed == "" || trimmed == "null"
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
