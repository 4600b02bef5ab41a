package contractstatus

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/pipeline"
	"github.com/kazuma-ddci/stella-crm-sub002/pkg/tenancy"
)

// StatusList is the API form of a contract catalog.
type StatusList struct {
	Statuses []StatusDefinition `json:"statuses"`
}

// CreateContractRequest is the body of the create endpoint.
type CreateContractRequest struct {
	Name     string `json:"name"`
	StatusID uint   `json:"statusId"`
}

// ChangeStatusRequest is the body of the status change endpoint.
type ChangeStatusRequest struct {
	StatusID          uint   `json:"statusId"`
	Note              string `json:"note,omitempty"`
	AlertAcknowledged bool   `json:"alertAcknowledged,omitempty"`
}

// NewRouter creates the contract status routes. Mount it under
// /api/crm/v1/contracts behind the tenancy middleware.
func NewRouter(svc *Service) chi.Router {
	r := chi.NewRouter()
	r.Get("/statuses", listStatusesHandler(svc))
	r.Post("/statuses", addStatusHandler(svc))
	r.Post("/", createContractHandler(svc))
	r.Put("/{id}/status", changeStatusHandler(svc))
	r.Get("/{id}/history", historyHandler(svc))
	return r
}

func listStatusesHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("includeInactive"))
		statuses, err := svc.Statuses(r.Context(), tenancy.NamespaceFromContext(r.Context()), includeInactive)
		if err != nil {
			writeError(w, pipeline.ErrorStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, StatusList{Statuses: statuses})
	}
}

func addStatusHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var def StatusDefinition
		if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		def.IsActive = true
		created, err := svc.AddStatus(r.Context(), tenancy.NamespaceFromContext(r.Context()), def)
		if err != nil {
			writeError(w, pipeline.ErrorStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func createContractHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body CreateContractRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		ctx := r.Context()
		res, err := svc.Create(ctx, tenancy.NamespaceFromContext(ctx), body.Name, body.StatusID, tenancy.UserFromContext(ctx))
		if err != nil {
			writeError(w, pipeline.ErrorStatus(err), err.Error())
			return
		}
		writeJSON(w, pipeline.ResultStatus(res, http.StatusCreated), pipeline.NewTransitionResponse(res))
	}
}

func changeStatusHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := contractID(w, r)
		if !ok {
			return
		}
		var body ChangeStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		ctx := r.Context()
		res, err := svc.ChangeStatus(ctx, ChangeRequest{
			Namespace:         tenancy.NamespaceFromContext(ctx),
			ContractID:        id,
			StatusID:          body.StatusID,
			Note:              body.Note,
			Actor:             tenancy.UserFromContext(ctx),
			AlertAcknowledged: body.AlertAcknowledged,
		})
		if err != nil {
			writeError(w, pipeline.ErrorStatus(err), err.Error())
			return
		}
		writeJSON(w, pipeline.ResultStatus(res, http.StatusOK), pipeline.NewTransitionResponse(res))
	}
}

func historyHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := contractID(w, r)
		if !ok {
			return
		}
		rows, err := svc.History(r.Context(), tenancy.NamespaceFromContext(r.Context()), id)
		if err != nil {
			writeError(w, pipeline.ErrorStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, pipeline.NewHistoryList(rows))
	}
}

func contractID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid contract id")
		return 0, false
	}
	return uint(id), true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
