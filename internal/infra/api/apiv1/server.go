package apiv1

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"bizbilling/internal/domain/model"
	"bizbilling/internal/infra/logging"
	red "bizbilling/internal/infra/redis"
	"bizbilling/internal/usecase"
)

// PollLimiter bounds client-driven status polling per user.
type PollLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Deps struct {
	Payments      usecase.PaymentUseCase
	Services      usecase.ClientServiceUseCase
	Maintenance   usecase.MaintenanceUseCase
	Notifications usecase.NotificationUseCase
	Auth          *Authenticator
	// Limiter is optional; nil disables poll throttling.
	Limiter    PollLimiter
	PollLimit  int
	PollWindow time.Duration
	// WebhookTimeout bounds reconciliation triggered by a webhook.
	WebhookTimeout time.Duration
}

type Server struct {
	payments      usecase.PaymentUseCase
	services      usecase.ClientServiceUseCase
	maintenance   usecase.MaintenanceUseCase
	notifications usecase.NotificationUseCase
	auth          *Authenticator
	limiter       PollLimiter
	pollLimit     int
	pollWindow    time.Duration
	hookTimeout   time.Duration
	validate      *requestValidator
	log           *zerolog.Logger
}

func NewServer(d Deps, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if d.PollLimit <= 0 {
		d.PollLimit = 30
	}
	if d.PollWindow <= 0 {
		d.PollWindow = time.Minute
	}
	if d.WebhookTimeout <= 0 {
		d.WebhookTimeout = 30 * time.Second
	}
	compLog := logger.With().Str("component", "apiv1").Logger()
	return &Server{
		payments:      d.Payments,
		services:      d.Services,
		maintenance:   d.Maintenance,
		notifications: d.Notifications,
		auth:          d.Auth,
		limiter:       d.Limiter,
		pollLimit:     d.PollLimit,
		pollWindow:    d.PollWindow,
		hookTimeout:   d.WebhookTimeout,
		validate:      newRequestValidator(),
		log:           &compLog,
	}
}

// RegisterAPIV1 mounts every /api/v1 route on r.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Route("/api/v1", func(r chi.Router) {
		// Gateways do not authenticate; the payload signature is checked instead.
		r.Post("/payments/webhook", s.handleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/purchases", s.handlePurchase)
			r.Get("/payments/{reference}", s.handleGetPayment)
			r.Post("/payments/{reference}/poll", s.handlePoll)
			r.Get("/notifications", s.handleListNotifications)

			r.Route("/client-services", func(r chi.Router) {
				r.Get("/", s.handleListServices)
				r.With(s.requireAdmin).Post("/", s.handleProvision)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetService)
					r.Post("/cash/{track}/report", s.handleServiceCashReport)
					r.With(s.requireAdmin).Post("/cash/{track}/confirm", s.handleServiceCashConfirm)
					r.Post("/pause", s.handleServiceLifecycle(opPause))
					r.Post("/resume", s.handleServiceLifecycle(opResume))
					r.Post("/cancel", s.handleServiceLifecycle(opCancel))
				})
			})

			r.Route("/maintenances", func(r chi.Router) {
				r.With(s.requireAdmin).Post("/", s.handleCreateMaintenance)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetMaintenance)
					r.Post("/cash/{track}/report", s.handleMaintenanceCashReport)
					r.Group(func(r chi.Router) {
						r.Use(s.requireAdmin)
						r.Post("/cash/{track}/confirm", s.handleMaintenanceCashConfirm)
						r.Post("/pause", s.handleMaintenanceLifecycle(opPause))
						r.Post("/resume", s.handleMaintenanceLifecycle(opResume))
						r.Post("/cancel", s.handleMaintenanceLifecycle(opCancel))
					})
				})
			})
		})
	})
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(r.Context(), w, &ValidationError{Fields: map[string]string{"limit": "must be a positive integer"}})
			return
		}
		limit = n
	}
	items, err := s.notifications.ListForUser(r.Context(), claimsFrom(r.Context()).Subject, limit)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	out := make([]Notification, 0, len(items))
	for _, n := range items {
		out = append(out, toNotification(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func trackParam(r *http.Request) (model.CashTrackKind, error) {
	return model.ParseCashTrackKind(chi.URLParam(r, "track"))
}

func (s *Server) logger(ctx context.Context) *zerolog.Logger {
	return logging.With(ctx, s.log)
}

func pollKey(userID string) string { return red.UserActionKey(userID, "payment_poll") }
