package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/tenancy"
)

// listStatesHandler returns a catalog. ?includeInactive=true adds retired states.
func listStatesHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, ok := kindParam(w, r)
		if !ok {
			return
		}
		includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("includeInactive"))

		states, err := engine.ListStates(r.Context(), tenancy.NamespaceFromContext(r.Context()), kind, includeInactive)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, StateList{States: states})
	}
}

// createStateHandler adds a state to a catalog. States are never deleted
// through the API; retire one by creating its successor and deactivating it
// in the seed file.
func createStateHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, ok := kindParam(w, r)
		if !ok {
			return
		}
		var def StateDefinition
		if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		def.IsActive = true

		created, err := engine.CreateState(r.Context(), tenancy.NamespaceFromContext(r.Context()), kind, def)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

// createSubjectHandler creates a subject at its first state.
func createSubjectHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, ok := kindParam(w, r)
		if !ok {
			return
		}
		var body CreateSubjectBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		prop, err := body.Proposal()
		if err != nil {
			writeEngineError(w, err)
			return
		}

		res, err := engine.CreateSubject(r.Context(), CreateSubjectRequest{
			Namespace:         tenancy.NamespaceFromContext(r.Context()),
			Kind:              kind,
			Name:              body.Name,
			Proposal:          prop,
			Actor:             tenancy.UserFromContext(r.Context()),
			AlertAcknowledged: body.AlertAcknowledged,
		})
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeResult(w, http.StatusCreated, res)
	}
}

// getSubjectHandler returns one subject.
func getSubjectHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, id, ok := subjectParams(w, r)
		if !ok {
			return
		}
		subject, err := engine.GetSubject(r.Context(), tenancy.NamespaceFromContext(r.Context()), kind, id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, subjectToResponse(subject))
	}
}

// applyTransitionHandler applies a proposed position to a subject.
func applyTransitionHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, id, ok := subjectParams(w, r)
		if !ok {
			return
		}
		var body TransitionRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		prop, err := body.Proposal()
		if err != nil {
			writeEngineError(w, err)
			return
		}

		res, err := engine.Apply(r.Context(), ApplyRequest{
			Namespace:         tenancy.NamespaceFromContext(r.Context()),
			Kind:              kind,
			SubjectID:         id,
			Proposal:          prop,
			Actor:             tenancy.UserFromContext(r.Context()),
			AlertAcknowledged: body.AlertAcknowledged,
		})
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeResult(w, http.StatusOK, res)
	}
}

// previewTransitionHandler reports the events and alerts a transition would
// produce without writing anything.
func previewTransitionHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, id, ok := subjectParams(w, r)
		if !ok {
			return
		}
		var body TransitionRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		prop, err := body.Proposal()
		if err != nil {
			writeEngineError(w, err)
			return
		}

		preview, err := engine.Preview(r.Context(), tenancy.NamespaceFromContext(r.Context()), kind, id, prop)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, preview)
	}
}

// updateReasonsHandler edits the reason fields present in the body.
func updateReasonsHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, id, ok := subjectParams(w, r)
		if !ok {
			return
		}
		var body ReasonsRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		patch, err := body.Patch()
		if err != nil {
			writeEngineError(w, err)
			return
		}
		patch.Namespace = tenancy.NamespaceFromContext(r.Context())
		patch.Kind = kind
		patch.SubjectID = id
		patch.Actor = tenancy.UserFromContext(r.Context())

		res, err := engine.PatchReasons(r.Context(), patch)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeResult(w, http.StatusOK, res)
	}
}

// listHistoryHandler returns a subject's history. ?includeVoided=true keeps
// retracted rows.
func listHistoryHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, id, ok := subjectParams(w, r)
		if !ok {
			return
		}
		includeVoided, _ := strconv.ParseBool(r.URL.Query().Get("includeVoided"))

		rows, err := engine.History(r.Context(), tenancy.NamespaceFromContext(r.Context()), kind, id, includeVoided)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, NewHistoryList(rows))
	}
}

// statisticsHandler returns the reconstructed statistics of a subject.
func statisticsHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, id, ok := subjectParams(w, r)
		if !ok {
			return
		}
		st, err := engine.Statistics(r.Context(), tenancy.NamespaceFromContext(r.Context()), kind, id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// staleSubjectsHandler lists subjects waiting too long in a watched state.
func staleSubjectsHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, ok := kindParam(w, r)
		if !ok {
			return
		}
		stale, err := engine.StaleSubjects(r.Context(), tenancy.NamespaceFromContext(r.Context()), kind)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		out := StaleList{Subjects: make([]StaleEntry, len(stale))}
		for i, s := range stale {
			out.Subjects[i] = StaleEntry{Subject: subjectToResponse(&s.Subject), Alert: s.Alert}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// voidHistoryHandler retracts one history row.
func voidHistoryHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "historyId"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid history id")
			return
		}
		row, err := engine.VoidHistory(r.Context(), VoidRequest{
			Namespace: tenancy.NamespaceFromContext(r.Context()),
			HistoryID: uint(id),
			Actor:     tenancy.UserFromContext(r.Context()),
		})
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, historyToEntry(*row))
	}
}

func kindParam(w http.ResponseWriter, r *http.Request) (SubjectKind, bool) {
	kind := SubjectKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown subject kind: %s", kind))
		return "", false
	}
	return kind, true
}

func subjectParams(w http.ResponseWriter, r *http.Request) (SubjectKind, uint, bool) {
	kind, ok := kindParam(w, r)
	if !ok {
		return "", 0, false
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subject id")
		return "", 0, false
	}
	return kind, uint(id), true
}

func writeResult(w http.ResponseWriter, appliedStatus int, res *ApplyResult) {
	writeJSON(w, ResultStatus(res, appliedStatus), NewTransitionResponse(res))
}

// ResultStatus maps an engine result to its status code. A blocked write is
// 422 so clients can prompt for a note and retry.
func ResultStatus(res *ApplyResult, appliedStatus int) int {
	switch res.Outcome {
	case OutcomeNoChange:
		return http.StatusOK
	case OutcomeValidationBlocked:
		return http.StatusUnprocessableEntity
	}
	return appliedStatus
}

// ErrorStatus maps an engine error to its status code.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeEngineError(w http.ResponseWriter, err error) {
	writeError(w, ErrorStatus(err), err.Error())
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
