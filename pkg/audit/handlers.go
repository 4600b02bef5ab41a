package audit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/tenancy"
)

// EventList is the response of GET /audit/events.
type EventList struct {
	Events        []Event `json:"events"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
	TotalSize     int     `json:"totalSize"`
}

// Event is the API form of an EventRecord.
type Event struct {
	ID         string `json:"id"`
	Namespace  string `json:"namespace"`
	Actor      string `json:"actor"`
	RequestID  string `json:"requestId,omitempty"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	Kind       string `json:"kind,omitempty"`
	ResourceID string `json:"resourceId,omitempty"`
	Action     string `json:"action"`
	Outcome    string `json:"outcome"`
	StatusCode int    `json:"statusCode"`
	DurationMs int64  `json:"durationMs"`
	CreatedAt  string `json:"createdAt"`
}

func toEvent(rec EventRecord) Event {
	return Event{
		ID:         rec.ID,
		Namespace:  rec.Namespace,
		Actor:      rec.Actor,
		RequestID:  rec.RequestID,
		Method:     rec.Method,
		Path:       rec.Path,
		Kind:       rec.Kind,
		ResourceID: rec.ResourceID,
		Action:     rec.Action,
		Outcome:    rec.Outcome,
		StatusCode: rec.StatusCode,
		DurationMs: rec.DurationMs,
		CreatedAt:  rec.CreatedAt.Format(time.RFC3339Nano),
	}
}

// listEventsHandler handles GET /events in the caller's namespace.
// Query params: actor, action, outcome, pageSize, pageToken.
func listEventsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{
			Namespace: tenancy.NamespaceFromContext(r.Context()),
			Actor:     q.Get("actor"),
			Action:    q.Get("action"),
			Outcome:   q.Get("outcome"),
		}

		pageSize := defaultPageSize
		if ps := q.Get("pageSize"); ps != "" {
			v, err := strconv.Atoi(ps)
			if err != nil || v <= 0 {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid pageSize %q", ps))
				return
			}
			pageSize = v
		}

		pageToken := q.Get("pageToken")
		if pageToken != "" {
			if _, err := ParsePageToken(pageToken); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid pageToken %q", pageToken))
				return
			}
		}

		records, next, total, err := store.List(r.Context(), filter, pageSize, pageToken)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list audit events: %v", err))
			return
		}

		events := make([]Event, len(records))
		for i, rec := range records {
			events[i] = toEvent(rec)
		}
		writeJSON(w, http.StatusOK, EventList{Events: events, NextPageToken: next, TotalSize: total})
	}
}

// getEventHandler handles GET /events/{eventId}.
func getEventHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "eventId")
		rec, err := store.Get(r.Context(), tenancy.NamespaceFromContext(r.Context()), eventID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get audit event: %v", err))
			return
		}
		if rec == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("audit event %q not found", eventID))
			return
		}
		writeJSON(w, http.StatusOK, toEvent(*rec))
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
