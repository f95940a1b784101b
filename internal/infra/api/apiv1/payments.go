package apiv1

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bizbilling/internal/domain"
	"bizbilling/internal/usecase"
)

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req PurchaseRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(ctx, w, err)
		return
	}

	res, err := s.payments.InitiatePurchase(ctx, usecase.PurchaseRequest{
		UserID:      claimsFrom(ctx).Subject,
		PayerEmail:  req.PayerEmail,
		Item:        req.item(),
		Quantity:    req.Quantity,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Method:      req.Method,
		Description: req.Description,
		ReturnURL:   req.ReturnURL,
	})
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, PurchaseResponse{
		Payment:     toPayment(res.Payment, res.Order),
		RedirectURL: res.RedirectURL,
	})
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, o, err := s.payments.GetPayment(ctx, ownerScope(ctx), chi.URLParam(r, "reference"))
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayment(p, o))
}

// handlePoll is the client fallback when the webhook is late. A gateway outage
// still returns the stored payment so the client can keep waiting.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := claimsFrom(ctx)
	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, pollKey(claims.Subject), s.pollLimit, s.pollWindow)
		if err != nil {
			s.logger(ctx).Warn().Err(err).Msg("poll limiter unavailable; allowing request")
		} else if !ok {
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "too many status checks, slow down")
			return
		}
	}

	reference := chi.URLParam(r, "reference")
	p, err := s.payments.Poll(ctx, ownerScope(ctx), reference)
	if err != nil && !(p != nil && errors.Is(err, domain.ErrGatewayUnavailable)) {
		s.writeError(ctx, w, err)
		return
	}
	if err != nil {
		s.logger(ctx).Info().Err(err).Str("reference", reference).Msg("poll fell back to stored status")
	}
	_, o, oerr := s.payments.GetPayment(ctx, ownerScope(ctx), reference)
	if oerr != nil {
		o = nil
	}
	writeJSON(w, http.StatusOK, toPayment(p, o))
}

// handleWebhook always acknowledges. Processing is detached from the request so
// a gateway that hangs up early does not abort reconciliation.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.logger(r.Context()).Warn().Err(err).Msg("unreadable webhook body")
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.hookTimeout)
	defer cancel()
	s.payments.HandleWebhook(ctx, r.PostForm)
	w.WriteHeader(http.StatusOK)
}
