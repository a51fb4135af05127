// ABOUTME: Controller-facing long-poll endpoints: /tunnel/poll and /tunnel/respond.
// ABOUTME: The duplex websocket endpoint is mounted directly from the adapter.

package relay

import (
	"encoding/json"
	"net/http"

	"github.com/soundloop/soundloop-relay/internal/transport"
)

// pollResponse is the JSON body for GET /tunnel/poll. Request is null when the
// poll window elapsed with nothing queued; the controller re-polls immediately.
type pollResponse struct {
	Request *transport.Request `json:"request"`
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := s.longpoll.Poll(r.Context(), s.config.Transport.PollWindow)
	if err != nil {
		// Controller dropped the poll mid-window; nothing to write.
		return
	}
	s.writeJSON(w, http.StatusOK, pollResponse{Request: req})
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var frame transport.Response
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid response frame")
		return
	}
	if frame.ID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "missing id")
		return
	}

	// Unknown IDs are discarded downstream; submission always succeeds from
	// the controller's point of view.
	s.longpoll.SubmitResponse(frame)
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
