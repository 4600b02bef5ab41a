package audit

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/pipeline"
	"github.com/kazuma-ddci/stella-crm-sub002/pkg/tenancy"
)

// Middleware records an EventRecord for every mutating CRM API call under
// basePath. It must run after the tenancy middleware. Audit writes are best
// effort and never change the response.
func Middleware(store *Store, cfg Config, basePath string, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SystemActor == "" {
		cfg.SystemActor = pipeline.DefaultSystemActor
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			tgt, ok := describe(r.Method, basePath, r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			outcome := outcomeFromStatus(status)
			if outcome == OutcomeRejected && !cfg.LogRejected {
				return
			}

			ctx := r.Context()
			actor := cfg.SystemActor
			if u := tenancy.UserFromContext(ctx); u != nil {
				actor = *u
			}
			requestID := middleware.GetReqID(ctx)

			event := &EventRecord{
				ID:         uuid.NewString(),
				Namespace:  tenancy.NamespaceFromContext(ctx),
				Actor:      actor,
				RequestID:  requestID,
				Method:     r.Method,
				Path:       r.URL.Path,
				Kind:       tgt.Kind,
				ResourceID: tgt.ResourceID,
				Action:     tgt.Action,
				Outcome:    outcome,
				StatusCode: status,
				DurationMs: time.Since(start).Milliseconds(),
				CreatedAt:  start,
			}
			if err := store.Append(ctx, event); err != nil {
				logger.Error("failed to write audit event", zap.Error(err), zap.String("requestId", requestID))
			}
		})
	}
}
