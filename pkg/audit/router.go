package audit

import "github.com/go-chi/chi/v5"

// Router creates a chi.Router for the audit API. Mount it behind the
// tenancy middleware.
func Router(store *Store) chi.Router {
	r := chi.NewRouter()
	r.Get("/events", listEventsHandler(store))
	r.Get("/events/{eventId}", getEventHandler(store))
	return r
}
