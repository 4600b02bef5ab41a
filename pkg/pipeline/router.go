package pipeline

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with the CRM API routes. Mount it under
// /api/crm/v1 behind the tenancy middleware.
func NewRouter(engine *Engine) chi.Router {
	r := chi.NewRouter()

	r.Post("/history/{historyId}/void", voidHistoryHandler(engine))

	r.Route("/{kind}", func(r chi.Router) {
		r.Get("/states", listStatesHandler(engine))
		r.Post("/states", createStateHandler(engine))
		r.Get("/stale", staleSubjectsHandler(engine))
		r.Post("/subjects", createSubjectHandler(engine))

		r.Route("/subjects/{id}", func(r chi.Router) {
			r.Get("/", getSubjectHandler(engine))
			r.Post("/transitions", applyTransitionHandler(engine))
			r.Post("/transitions/preview", previewTransitionHandler(engine))
			r.Patch("/reasons", updateReasonsHandler(engine))
			r.Get("/history", listHistoryHandler(engine))
			r.Get("/statistics", statisticsHandler(engine))
		})
	})

	return r
}
