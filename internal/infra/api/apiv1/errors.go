package apiv1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"bizbilling/internal/domain"
	"bizbilling/internal/infra/logging"
)

type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, errorBody{Error: kind, Message: msg})
}

// writeError maps domain errors onto HTTP statuses. Storage details are logged,
// never returned.
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var verr *ValidationError
	var terr *domain.TransitionError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Fields: verr.Fields})
	case errors.As(err, &terr):
		writeJSONError(w, http.StatusConflict, "invalid_transition", terr.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		writeJSONError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, "forbidden", "not allowed")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeJSONError(w, http.StatusConflict, "already_exists", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrCashNotClaimed):
		writeJSONError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, domain.ErrInactiveDefinition):
		writeJSONError(w, http.StatusUnprocessableEntity, "inactive_definition", err.Error())
	case errors.Is(err, domain.ErrGatewayRejected):
		writeJSONError(w, http.StatusBadGateway, "gateway_rejected", "the payment provider rejected the request")
	case errors.Is(err, domain.ErrGatewayUnavailable), errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, http.StatusServiceUnavailable, "gateway_unavailable", "the payment provider is unavailable, try again later")
	default:
		log := logging.With(ctx, s.log)
		log.Error().Err(err).Msg("request failed")
		writeJSONError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
