// Package api exposes the dashboard backend over HTTP and MCP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/evodash/internal/discovery"
	"github.com/kalambet/evodash/internal/opslog"
	"github.com/kalambet/evodash/internal/orchestrator"
	"github.com/kalambet/evodash/internal/specstore"
	"github.com/kalambet/evodash/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Submitter runs a feature request end to end.
type Submitter interface {
	Submit(ctx context.Context, description string) (orchestrator.SubmitResult, error)
}

// GeneratorChecker reports whether the generator can be invoked.
type GeneratorChecker interface {
	Check() error
}

type Deps struct {
	Store     *storage.Store
	Spec      *specstore.Store
	Registry  *discovery.Registry
	Submitter Submitter
	Generator GeneratorChecker
	Ops       *opslog.Log
	// Token protects mutating routes when non-empty.
	Token   string
	Limiter *RateLimiter
	Logger  *slog.Logger
}

// NewRouter returns the HTTP handler serving every /api route.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handleHealth(deps))
		r.Get("/dashboard/data", handleDashboardData(deps))

		r.Get("/features", handleListFeatures(deps))
		r.Get("/features/requests", handleListRequests(deps))
		r.Get("/features/requests/{id}", handleGetRequest(deps))

		r.Get("/spec", handleGetSpec(deps))
		r.Get("/spec/revisions", handleListRevisions(deps))

		r.Get("/operations", handleListOperations(deps))
		r.Get("/operations/stream", handleOperationStream(deps))

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(deps.Token))
			r.With(deps.Limiter.Middleware).Post("/features/request", handleSubmitRequest(deps))
			r.Post("/features/refresh", handleRefreshFeatures(deps))
			r.Patch("/spec/features/{name}", handlePatchFeature(deps))
			r.Post("/spec/workflows", handleAddWorkflow(deps))
		})
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
