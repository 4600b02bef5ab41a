package audit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/pipeline"
	"github.com/kazuma-ddci/stella-crm-sub002/pkg/tenancy"
)

// newAuditedRouter answers every request with status and records it.
func newAuditedRouter(store *Store, cfg Config, status int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Route(base, func(r chi.Router) {
		r.Use(tenancy.NewMiddleware(tenancy.ModeNamespace, tenancy.DefaultNamespace))
		r.Use(Middleware(store, cfg, base, nil))
		r.HandleFunc("/*", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		})
	})
	return r
}

func send(h http.Handler, method, path, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(tenancy.TenantHeader, "sales")
	if user != "" {
		req.Header.Set(tenancy.UserHeader, user)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func listAll(t *testing.T, store *Store) []EventRecord {
	t.Helper()
	recs, _, _, err := store.List(t.Context(), ListFilter{Namespace: "sales"}, maxPageSize, "")
	require.NoError(t, err)
	return recs
}

func TestMiddleware_RecordsMutation(t *testing.T) {
	store := newTestStore(t)
	h := newAuditedRouter(store, DefaultConfig(), http.StatusOK)

	w := send(h, http.MethodPost, base+"/pipeline/subjects/12/transitions", "watanabe")
	require.Equal(t, http.StatusOK, w.Code)

	recs := listAll(t, store)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "sales", rec.Namespace)
	assert.Equal(t, "watanabe", rec.Actor)
	assert.Equal(t, "pipeline", rec.Kind)
	assert.Equal(t, "12", rec.ResourceID)
	assert.Equal(t, "transition", rec.Action)
	assert.Equal(t, OutcomeSuccess, rec.Outcome)
	assert.Equal(t, http.StatusOK, rec.StatusCode)
	assert.NotEmpty(t, rec.RequestID)
	assert.NotEmpty(t, rec.ID)
}

func TestMiddleware_BlockedTransition(t *testing.T) {
	store := newTestStore(t)
	h := newAuditedRouter(store, DefaultConfig(), http.StatusUnprocessableEntity)

	send(h, http.MethodPost, base+"/pipeline/subjects/12/transitions", "")

	recs := listAll(t, store)
	require.Len(t, recs, 1)
	assert.Equal(t, OutcomeBlocked, recs[0].Outcome)
	assert.Equal(t, pipeline.DefaultSystemActor, recs[0].Actor)
}

func TestMiddleware_ConfiguredSystemActor(t *testing.T) {
	store := newTestStore(t)
	cfg := DefaultConfig()
	cfg.SystemActor = "system:importer"
	h := newAuditedRouter(store, cfg, http.StatusOK)

	send(h, http.MethodPatch, base+"/pipeline/subjects/12/reasons", "")
	send(h, http.MethodPatch, base+"/pipeline/subjects/12/reasons", "watanabe")

	recs := listAll(t, store)
	require.Len(t, recs, 2)
	actors := []string{recs[0].Actor, recs[1].Actor}
	assert.ElementsMatch(t, []string{"system:importer", "watanabe"}, actors)
}

func TestMiddleware_SkipsReadsAndPreviews(t *testing.T) {
	store := newTestStore(t)
	h := newAuditedRouter(store, DefaultConfig(), http.StatusOK)

	send(h, http.MethodGet, base+"/pipeline/subjects/12", "watanabe")
	send(h, http.MethodPost, base+"/pipeline/subjects/12/transitions/preview", "watanabe")

	assert.Empty(t, listAll(t, store))
}

func TestMiddleware_LogRejected(t *testing.T) {
	store := newTestStore(t)
	cfg := DefaultConfig()
	cfg.LogRejected = false
	h := newAuditedRouter(store, cfg, http.StatusBadRequest)

	w := send(h, http.MethodPost, base+"/pipeline/subjects", "watanabe")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, listAll(t, store))

	cfg.LogRejected = true
	send(newAuditedRouter(store, cfg, http.StatusBadRequest), http.MethodPost, base+"/pipeline/subjects", "watanabe")
	recs := listAll(t, store)
	require.Len(t, recs, 1)
	assert.Equal(t, OutcomeRejected, recs[0].Outcome)
}

func TestMiddleware_Disabled(t *testing.T) {
	store := newTestStore(t)
	h := newAuditedRouter(store, Config{}, http.StatusCreated)

	w := send(h, http.MethodPost, base+"/pipeline/subjects", "watanabe")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, listAll(t, store))
}

func TestMiddleware_NilStorePassesThrough(t *testing.T) {
	h := newAuditedRouter(nil, DefaultConfig(), http.StatusCreated)
	w := send(h, http.MethodPost, base+"/pipeline/subjects", "watanabe")
	assert.Equal(t, http.StatusCreated, w.Code)
}
