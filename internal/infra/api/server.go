package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"bizbilling/internal/infra/api/apiv1"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Options struct {
	Port           int
	RequestTimeout time.Duration
	// Checks are run by /health; a failing check turns the response into 503.
	Checks  map[string]HealthCheck
	Metrics bool
}

// Server owns the HTTP listener for the billing API.
type Server struct {
	srv *http.Server
	log *zerolog.Logger
}

func NewServer(opts Options, v1 *apiv1.Server, logger *zerolog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Port),
			Handler:           NewRouter(opts, v1, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: logger,
	}
}

// NewRouter builds the full handler tree. Split out so tests can drive it
// through httptest without a listener.
func NewRouter(opts Options, v1 *apiv1.Server, logger *zerolog.Logger) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(logger), RequestLog(logger), Timeout(opts.RequestTimeout))

	r.Get("/health", healthHandler(opts.Checks))
	if opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	apiv1.RegisterAPIV1(r, v1)
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for name, check := range checks {
			if err := check(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = fmt.Fprintf(w, "%s: unavailable", name)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// Start blocks until the listener stops. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
