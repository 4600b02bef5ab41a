package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/audit"
	"github.com/kazuma-ddci/stella-crm-sub002/pkg/pipeline"
	"github.com/kazuma-ddci/stella-crm-sub002/pkg/tenancy"
)

func intPtr(v int) *int { return &v }

// newTestAPI serves the CRM API from an in-memory database seeded with a
// four-state pipeline: Lead(1), Hearing(2), Won(3), Lost(4).
func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := pipeline.NewGormStore(db)
	require.NoError(t, store.AutoMigrate())
	require.NoError(t, store.UpsertStates(t.Context(), "default", pipeline.KindPipeline, []pipeline.StateSeed{
		{Name: "Lead", DisplayOrder: intPtr(1)},
		{Name: "Hearing", DisplayOrder: intPtr(2)},
		{Name: "Won", DisplayOrder: intPtr(3), Category: pipeline.CategoryWon},
		{Name: "Lost", DisplayOrder: intPtr(4), Category: pipeline.CategoryLost},
	}))

	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	engine := pipeline.NewEngine(store, nil, pipeline.WithClock(func() time.Time { return now }))

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	auditStore := audit.NewStore(db)
	require.NoError(t, auditStore.AutoMigrate())

	r.Route(apiBase, func(r chi.Router) {
		r.Use(tenancy.NewMiddleware(tenancy.ModeSingle, "default"))
		r.Use(audit.Middleware(auditStore, audit.DefaultConfig(), apiBase, nil))
		r.Mount("/audit", audit.Router(auditStore))
		r.Mount("/", pipeline.NewRouter(engine))
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// run executes crmctl with args against srv and returns its output.
func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--server", srv.URL, "--user", "ito"}, args...))
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores every flag to its default so commands can run again
// in the same process.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestCommands_Workflow(t *testing.T) {
	srv := newTestAPI(t)

	out, err := run(t, srv, "states", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "CATEGORY")
	assert.Contains(t, out, "Hearing")

	out, err = run(t, srv, "subject", "create", "Acme", "--state", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "created")

	out, err = run(t, srv, "transition", "1", "--state", "2", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "progress")
	assert.Contains(t, out, "Valid: true")

	out, err = run(t, srv, "history", "1")
	require.NoError(t, err)
	assert.NotContains(t, out, "progress")

	out, err = run(t, srv, "transition", "1", "--state", "2", "--target-state", "3", "--target-date", "2026-05-31")
	require.NoError(t, err)
	assert.Contains(t, out, "committed")
	assert.Contains(t, out, "Subject 1 is now in state 2")

	out, err = run(t, srv, "transition", "1", "--state", "2", "--target-state", "3", "--target-date", "2026-05-31")
	require.NoError(t, err)
	assert.Contains(t, out, "No change.")

	out, err = run(t, srv, "transition", "1", "--state", "4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transition blocked")
	assert.Contains(t, out, pipeline.AlertLostReasonMissing)

	out, err = run(t, srv, "-o", "json", "history", "1")
	require.NoError(t, err)
	var list pipeline.HistoryList
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Equal(t, 3, list.Size)
	assert.Equal(t, "ito", list.Entries[0].ChangedBy)

	out, err = run(t, srv, "stats", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Achievement rate")

	out, err = run(t, srv, "reasons", "1", "--pending-reason", "waiting for budget")
	require.NoError(t, err)
	assert.Contains(t, out, "reason_updated")

	out, err = run(t, srv, "-o", "yaml", "subject", "get", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "pendingReasonText: waiting for budget")

	_, err = run(t, srv, "reasons", "1", "--lost-reason", "price")
	require.NoError(t, err)
	out, err = run(t, srv, "-o", "yaml", "subject", "get", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "pendingReasonText: waiting for budget")
	assert.Contains(t, out, "lostReasonText: price")

	out, err = run(t, srv, "void", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Voided history row 1")

	out, err = run(t, srv, "stale")
	require.NoError(t, err)
	assert.Contains(t, out, "ALERT")
}

func TestCommands_Health(t *testing.T) {
	srv := newTestAPI(t)

	out, err := run(t, srv, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Liveness")
	assert.Contains(t, out, "ready")
}

func TestCommands_UnknownKind(t *testing.T) {
	srv := newTestAPI(t)

	_, err := run(t, srv, "--kind", "lead", "states", "list")
	assert.ErrorContains(t, err, "unknown kind")
}

func TestCommands_ServerError(t *testing.T) {
	srv := newTestAPI(t)

	_, err := run(t, srv, "subject", "get", "99")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server returned 404")
}

func TestClientSendsTenantAndUserHeaders(t *testing.T) {
	var tenant, principal string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant = r.Header.Get(tenancy.TenantHeader)
		principal = r.Header.Get(tenancy.UserHeader)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	client := &crmClient{baseURL: srv.URL, namespace: "team-a", user: "kato", http: srv.Client()}
	var result map[string]any
	require.NoError(t, client.postJSON("/x", map[string]string{"a": "b"}, &result))
	assert.Equal(t, "team-a", tenant)
	assert.Equal(t, "kato", principal)
}

func TestClientOmitsEmptyHeaders(t *testing.T) {
	var hasTenant, hasUser bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasTenant = r.Header[tenancy.TenantHeader]
		_, hasUser = r.Header[tenancy.UserHeader]
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	client := &crmClient{baseURL: srv.URL, http: srv.Client()}
	var result map[string]any
	require.NoError(t, client.getJSON("/x", &result))
	assert.False(t, hasTenant)
	assert.False(t, hasUser)
}

func TestResolvedNamespace(t *testing.T) {
	oldNs := namespace
	defer func() { namespace = oldNs }()

	t.Setenv("STELLA_NAMESPACE", "from-env")
	namespace = ""
	assert.Equal(t, "from-env", resolvedNamespace())

	namespace = "from-flag"
	assert.Equal(t, "from-flag", resolvedNamespace())
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"this is a long string", 10, "this is..."},
		{"abcd", 3, "abc"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.s, tt.max))
		})
	}
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, []string{"Id", "Name"}, [][]string{{"1", "Lead"}})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "Lead")
}

func TestCommands_Audit(t *testing.T) {
	srv := newTestAPI(t)

	_, err := run(t, srv, "subject", "create", "Acme", "--state", "1")
	require.NoError(t, err)
	_, err = run(t, srv, "transition", "1", "--state", "4")
	require.Error(t, err)

	out, err := run(t, srv, "audit")
	require.NoError(t, err)
	assert.Contains(t, out, "create-subject")
	assert.Contains(t, out, "blocked")
	assert.Contains(t, out, "ito")

	out, err = run(t, srv, "audit", "--outcome", "blocked", "-o", "json")
	require.NoError(t, err)
	var list audit.EventList
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Events, 1)
	assert.Equal(t, "transition", list.Events[0].Action)
	assert.Equal(t, "1", list.Events[0].ResourceID)
}
