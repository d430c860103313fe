package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riverqueue/river"
	"github.com/rs/zerolog"
	"github.com/trackline/server/internal/api/handlers"
	"github.com/trackline/server/internal/api/middleware"
	"github.com/trackline/server/internal/audit"
	"github.com/trackline/server/internal/auth"
	"github.com/trackline/server/internal/config"
	"github.com/trackline/server/internal/domain/issues"
	"github.com/trackline/server/internal/metrics"
)

// Dependencies carries everything the router wires together. Construction of
// the pool, queue client, and services happens in the serve command, not here.
type Dependencies struct {
	Config      config.Config
	Logger      zerolog.Logger
	Pool        *pgxpool.Pool
	RiverClient *river.Client[pgx.Tx]
	Issues      *issues.Service
	JWT         *auth.JWTManager
	Audit       *audit.Logger
	Version     string
	GitCommit   string
}

func NewRouter(deps Dependencies) http.Handler {
	issuesHandler := handlers.NewIssuesHandler(deps.Issues, deps.Audit, deps.Config.Environment)
	health := handlers.NewHealthChecker(deps.Pool, deps.RiverClient, deps.Version, deps.GitCommit)

	requireAuth := middleware.BearerAuth(deps.JWT, deps.Config.Environment)
	limitBody := middleware.PublicRequestSize()

	mux := http.NewServeMux()
	mux.Handle("/healthz", handlers.Healthz())
	mux.Handle("/readyz", health.Health())
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.Handle("/api/v1/issues", middleware.Metrics("/api/v1/issues")(methodMux(map[string]http.Handler{
		http.MethodGet:  http.HandlerFunc(issuesHandler.List),
		http.MethodPost: requireAuth(limitBody(http.HandlerFunc(issuesHandler.Create))),
	})))
	mux.Handle("/api/v1/issues/{id}", middleware.Metrics("/api/v1/issues/{id}")(methodMux(map[string]http.Handler{
		http.MethodGet:    http.HandlerFunc(issuesHandler.Get),
		http.MethodPatch:  requireAuth(limitBody(http.HandlerFunc(issuesHandler.Update))),
		http.MethodDelete: requireAuth(http.HandlerFunc(issuesHandler.Delete)),
	})))
	mux.Handle("/api/v1/issues/{id}/comments", middleware.Metrics("/api/v1/issues/{id}/comments")(methodMux(map[string]http.Handler{
		http.MethodGet:  http.HandlerFunc(issuesHandler.ListIssueComments),
		http.MethodPost: requireAuth(limitBody(http.HandlerFunc(issuesHandler.CreateComment))),
	})))
	mux.Handle("/api/v1/comments", middleware.Metrics("/api/v1/comments")(methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(issuesHandler.ListComments),
	})))

	var handler http.Handler = mux
	handler = middleware.RateLimit(deps.Config.RateLimit, deps.JWT)(handler)
	handler = middleware.RequestLogging(deps.Logger)(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.CorrelationID(deps.Logger)(handler)
	handler = middleware.SecurityHeaders(deps.Config.Environment == "production")(handler)
	return handler
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
