package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/reset-core/internal/journal"
)

// handleListJournal returns resolved audio commands, newest first.
//
// Query parameters:
//   - outcome: confirmed, rolled_back, failed, stale or rejected
//   - kind: set_volume, set_mute, set_default, set_routing, set_card_profile
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "command journal not configured")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{
		Outcome: q.Get("outcome"),
		Kind:    q.Get("kind"),
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list command journal", "error", err)
		writeInternalError(w, "failed to list command journal")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
