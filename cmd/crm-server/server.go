package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/audit"
	"github.com/kazuma-ddci/stella-crm-sub002/pkg/contractstatus"
	"github.com/kazuma-ddci/stella-crm-sub002/pkg/pipeline"
	"github.com/kazuma-ddci/stella-crm-sub002/pkg/tenancy"
)

// apiBasePath is where the CRM API is mounted.
const apiBasePath = "/api/crm/v1"

// handlerDeps is everything newHandler serves.
type handlerDeps struct {
	engine           *pipeline.Engine
	contracts        *contractstatus.Service
	audit            *audit.Store
	auditCfg         audit.Config
	db               *gorm.DB
	registry         *prometheus.Registry
	mode             tenancy.TenancyMode
	defaultNamespace string
	logger           *zap.Logger
}

// newHandler builds the HTTP handler: probes and metrics at the root, the CRM
// API under apiBasePath behind the tenancy and audit middleware.
func newHandler(d handlerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", tenancy.TenantHeader, tenancy.UserHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := d.db.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))

	r.Route(apiBasePath, func(r chi.Router) {
		r.Use(tenancy.NewMiddleware(d.mode, d.defaultNamespace))
		r.Use(audit.Middleware(d.audit, d.auditCfg, apiBasePath, d.logger.Named("audit")))
		r.Mount("/audit", audit.Router(d.audit))
		r.Mount("/contracts", contractstatus.NewRouter(d.contracts))
		r.Mount("/", pipeline.NewRouter(d.engine))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
