// ABOUTME: HTTP API over the mixer, served on the private network.
// ABOUTME: Response bodies match the original control surface byte-for-byte.

package mixer

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// API serves the local control endpoints the agent forwards to.
type API struct {
	mixer  *Mixer
	logger *slog.Logger
}

// NewAPI wraps a Mixer with HTTP handlers.
func NewAPI(m *Mixer, logger *slog.Logger) *API {
	return &API{mixer: m, logger: logger}
}

// RegisterRoutes mounts the control endpoints on mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/input/", a.handleInput)
	mux.HandleFunc("/api/output/", a.handleOutput)
	mux.HandleFunc("/api/latency/", a.handleLatency)
	mux.HandleFunc("/api/loopback/", a.handleLoopback)
	mux.HandleFunc("/api/preset/", a.handlePreset)
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, a.mixer.Status(r.Context()))
}

// setResult is the body for the volume and latency setters.
type setResult struct {
	Success bool `json:"success"`
	Value   int  `json:"value"`
}

func (a *API) handleInput(w http.ResponseWriter, r *http.Request) {
	level, ok := intParam(w, r, "/api/input/")
	if !ok {
		return
	}
	success, value := a.mixer.SetInput(r.Context(), level)
	writeJSON(w, http.StatusOK, setResult{Success: success, Value: value})
}

func (a *API) handleOutput(w http.ResponseWriter, r *http.Request) {
	level, ok := intParam(w, r, "/api/output/")
	if !ok {
		return
	}
	success, value := a.mixer.SetOutput(r.Context(), level)
	writeJSON(w, http.StatusOK, setResult{Success: success, Value: value})
}

func (a *API) handleLatency(w http.ResponseWriter, r *http.Request) {
	ms, ok := intParam(w, r, "/api/latency/")
	if !ok {
		return
	}
	success, value := a.mixer.SetLatency(r.Context(), ms)
	writeJSON(w, http.StatusOK, setResult{Success: success, Value: value})
}

func (a *API) handleLoopback(w http.ResponseWriter, r *http.Request) {
	state, ok := nameParam(w, r, "/api/loopback/")
	if !ok {
		return
	}
	success, active := a.mixer.SetLoopback(r.Context(), state)
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		Active  bool `json:"active"`
	}{Success: success, Active: active})
}

func (a *API) handlePreset(w http.ResponseWriter, r *http.Request) {
	name, ok := nameParam(w, r, "/api/preset/")
	if !ok {
		return
	}
	if !a.mixer.ApplyPreset(r.Context(), name) {
		writeJSON(w, http.StatusNotFound, map[string]bool{"success": false})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Preset  string `json:"preset"`
	}{Success: true, Preset: name})
}

// intParam validates the request and extracts the trailing integer segment.
// Writes the error response itself when validation fails.
func intParam(w http.ResponseWriter, r *http.Request, prefix string) (int, bool) {
	seg, ok := nameParam(w, r, prefix)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(seg)
	if err != nil || v < 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return v, true
}

func nameParam(w http.ResponseWriter, r *http.Request, prefix string) (string, bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return "", false
	}
	seg := strings.TrimPrefix(r.URL.Path, prefix)
	if seg == "" || strings.Contains(seg, "/") {
		http.NotFound(w, r)
		return "", false
	}
	return seg, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func methodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "method not allowed"})
}
