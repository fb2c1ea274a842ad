package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"jobdesk.org/internal/audit"
)

// handleAuditEvents lists security events newest-first with optional
// filtering by actor, event type, and time range.
func (a *API) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		ActorID: q.Get("actor_id"),
		Type:    audit.EventType(q.Get("type")),
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, codeValidation, "invalid from timestamp")
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, codeValidation, "invalid to timestamp")
			return
		}
		filter.To = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, r, http.StatusBadRequest, codeValidation, "limit must be between 1 and 500")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, codeValidation, "offset must be non-negative")
			return
		}
		filter.Offset = n
	}

	events, err := a.recorder.Query(r.Context(), filter)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeService, "audit query failed")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

type cleanupRequest struct {
	Retention string `json:"retention"`
}

// handleAuditCleanup prunes events older than the retention window. An
// explicit maintenance call, never triggered per-request. An omitted
// retention falls back to the configured default.
func (a *API) handleAuditCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req cleanupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	retention := a.auditRetention
	if req.Retention != "" {
		var err error
		retention, err = time.ParseDuration(req.Retention)
		if err != nil || retention <= 0 {
			writeError(w, r, http.StatusBadRequest, codeValidation, "retention must be a positive duration")
			return
		}
	}
	removed, err := a.recorder.Cleanup(r.Context(), retention)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeService, "audit cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}
