package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shaibs3/ResearchGraph/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Handler is implemented by every HTTP surface that mounts routes.
type Handler interface {
	RegisterRoutes(router *mux.Router, logger *zap.Logger)
}

type Router struct {
	limiter   *rate.Limiter
	telemetry *telemetry.Telemetry
	logger    *zap.Logger
	handlers  []Handler
	requests  metric.Int64Counter
}

func NewRouter(limiter *rate.Limiter, tel *telemetry.Telemetry, logger *zap.Logger, handlers []Handler) *Router {
	r := &Router{
		limiter:   limiter,
		telemetry: tel,
		logger:    logger.Named("router"),
		handlers:  handlers,
	}
	if tel != nil {
		r.requests, _ = tel.Meter.Int64Counter(
			"http_requests_total",
			metric.WithDescription("HTTP requests by route and status"),
		)
	}
	return r
}

// Build assembles the mux with health, metrics and every handler's routes.
func (r *Router) Build() *mux.Router {
	m := mux.NewRouter()
	m.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	if r.telemetry != nil {
		m.Handle("/metrics", r.telemetry.Handler()).Methods(http.MethodGet)
	}

	api := m.NewRoute().Subrouter()
	api.Use(r.rateLimitMiddleware, r.loggingMiddleware)
	for _, h := range r.handlers {
		h.RegisterRoutes(api, r.logger)
	}
	return m
}

func (r *Router) CreateServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Build(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (r *Router) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.limiter != nil && !r.limiter.Allow() {
			r.logger.Warn("rate limit exceeded", zap.String("path", req.URL.Path))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (r *Router) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)

		route := req.URL.Path
		if cur := mux.CurrentRoute(req); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		if r.requests != nil {
			r.requests.Add(context.Background(), 1, metric.WithAttributes(
				attribute.String("route", route),
				attribute.Int("status", rec.status),
			))
		}
		r.logger.Debug("request served",
			zap.String("method", req.Method),
			zap.String("route", route),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
