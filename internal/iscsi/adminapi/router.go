package adminapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coregate/iscsid/internal/logger"
)

// NewRouter builds the admin HTTP surface. issuer may be nil, in which
// case every route beyond /healthz is served unauthenticated -- callers
// are expected to only do this when the listener is bound to a trusted
// network.
func NewRouter(target TargetView, catalog Catalog, reg prometheus.Gatherer, issuer *TokenIssuer) http.Handler {
	if reg == nil {
		reg = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	health := &healthHandler{target: target}
	r.Get("/healthz", health.healthz)

	protected := func(r chi.Router) {
		sessions := &sessionsHandler{target: target}
		targets := &targetsHandler{catalog: catalog}

		r.Get("/sessions", sessions.list)
		r.Get("/targets", targets.list)
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	if issuer == nil {
		r.Group(protected)
	} else {
		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(issuer))
			protected(r)
		})
	}

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("admin api request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}
