package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/apperrors"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error          string                 `json:"error"`
	Fields         []apperrors.FieldError `json:"fields,omitempty"`
	ActiveYearID   string                 `json:"active_year_id,omitempty"`
	ActiveYearName string                 `json:"active_year_name,omitempty"`
}

// statusFor maps typed application errors to HTTP status codes.
func statusFor(err error) int {
	var (
		ve *apperrors.ValidationError
		ue *apperrors.UnauthorizedError
		fe *apperrors.ForbiddenError
		nf *apperrors.NotFoundError
		ce *apperrors.ConflictError
		ie *apperrors.InvalidStateError
		he *apperrors.HasDependentsError
		cv *apperrors.ConservationViolationError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ue):
		return http.StatusUnauthorized
	case errors.As(err, &fe):
		return http.StatusForbidden
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ce), errors.As(err, &ie), errors.As(err, &he):
		return http.StatusConflict
	case errors.As(err, &cv):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as JSON. Store and unexpected errors are logged and
// replaced with a generic message.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	if !apperrors.IsUserFacing(err) {
		logger.Error().Err(err).Msg("request failed")
		resp.Error = "internal error"
	}

	var ve *apperrors.ValidationError
	if errors.As(err, &ve) {
		resp.Fields = ve.Fields
	}
	var ce *apperrors.ConflictError
	if errors.As(err, &ce) {
		resp.ActiveYearID = ce.ActiveYearID
		resp.ActiveYearName = ce.ActiveYearName
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.NewValidationError(fmt.Errorf("request body must be valid JSON: %w", err))
	}
	return nil
}
