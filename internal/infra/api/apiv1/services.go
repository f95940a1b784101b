package apiv1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"bizbilling/internal/domain"
	"bizbilling/internal/domain/model"
	"bizbilling/internal/usecase"
)

// ----- client services -----

func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ProvisionRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(ctx, w, err)
		return
	}
	if req.Units == 0 {
		req.Units = 1
	}
	cs, err := s.services.Provision(ctx, model.ProvisionSpec{
		UserID:                 req.UserID,
		DefinitionID:           req.DefinitionID,
		Units:                  req.Units,
		EnableRecurring:        req.EnableRecurring,
		CustomRecurringPrice:   req.CustomRecurringPrice,
		OneOffPaidInCash:       req.OneOffPaidInCash,
		CurrentMonthPaidInCash: req.CurrentMonthPaidInCash,
	})
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientService(cs))
}

// handleListServices lists the caller's services; admins may pass ?user_id=.
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := claimsFrom(ctx).Subject
	if q := r.URL.Query().Get("user_id"); q != "" && claimsFrom(ctx).IsAdmin() {
		userID = q
	}
	items, err := s.services.ListByUser(ctx, userID)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	out := make([]ClientService, 0, len(items))
	for _, cs := range items {
		out = append(out, toClientService(cs))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cs, err := s.services.Get(ctx, chi.URLParam(r, "id"), ownerScope(ctx))
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientService(cs))
}

func (s *Server) handleServiceCashReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	track, err := trackParam(r)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	cs, err := s.services.ReportCashPayment(ctx, chi.URLParam(r, "id"), ownerScope(ctx), track)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientService(cs))
}

func (s *Server) handleServiceCashConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	track, err := trackParam(r)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	cs, err := s.services.ConfirmCashPayment(ctx, chi.URLParam(r, "id"), track, claimsFrom(ctx).Subject)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientService(cs))
}

type lifecycleOp int

const (
	opPause lifecycleOp = iota
	opResume
	opCancel
)

func (s *Server) handleServiceLifecycle(op lifecycleOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, owner := chi.URLParam(r, "id"), ownerScope(ctx)
		var (
			cs  *model.ClientService
			err error
		)
		switch op {
		case opPause:
			cs, err = s.services.Pause(ctx, id, owner)
		case opResume:
			cs, err = s.services.Resume(ctx, id, owner)
		default:
			cs, err = s.services.Cancel(ctx, id, owner)
		}
		if err != nil {
			s.writeError(ctx, w, err)
			return
		}
		writeJSON(w, http.StatusOK, toClientService(cs))
	}
}

// ----- maintenance contracts -----

func (s *Server) handleCreateMaintenance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req MaintenanceRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(ctx, w, err)
		return
	}
	m, err := s.maintenance.Create(ctx, usecase.MaintenanceSpec{
		ProjectID:        req.ProjectID,
		UserID:           req.UserID,
		Title:            req.Title,
		Amount:           req.Amount,
		Currency:         req.Currency,
		BillingCycleDays: req.BillingCycleDays,
		EnableRecurring:  req.EnableRecurring,
		PaidInCash:       req.PaidInCash,
	})
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMaintenance(m))
}

func (s *Server) handleGetMaintenance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, err := s.maintenance.Get(ctx, chi.URLParam(r, "id"))
	if err == nil {
		if owner := ownerScope(ctx); owner != "" && m.UserID != owner {
			err = domain.ErrNotFound
		}
	}
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMaintenance(m))
}

func (s *Server) handleMaintenanceCashReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	track, err := trackParam(r)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	m, err := s.maintenance.ReportCashPayment(ctx, chi.URLParam(r, "id"), ownerScope(ctx), track)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMaintenance(m))
}

func (s *Server) handleMaintenanceCashConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	track, err := trackParam(r)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	m, err := s.maintenance.ConfirmCashPayment(ctx, chi.URLParam(r, "id"), track, claimsFrom(ctx).Subject)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMaintenance(m))
}

func (s *Server) handleMaintenanceLifecycle(op lifecycleOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "id")
		var (
			m   *model.Maintenance
			err error
		)
		switch op {
		case opPause:
			m, err = s.maintenance.Pause(ctx, id)
		case opResume:
			m, err = s.maintenance.Resume(ctx, id)
		default:
			m, err = s.maintenance.Cancel(ctx, id)
		}
		if err != nil {
			s.writeError(ctx, w, err)
			return
		}
		writeJSON(w, http.StatusOK, toMaintenance(m))
	}
}
