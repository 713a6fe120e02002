package controllers

import (
	"encoding/json"
	"io"
	"net/http"

	apperrors "karte/internal/shared_kernel/errors"
)

const maxRequestBodyBytes = 1 << 20

type errorResponse struct {
	Error errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAppError(w http.ResponseWriter, appErr *apperrors.AppError) {
	status := http.StatusInternalServerError
	switch appErr.Type {
	case apperrors.TypeValidation:
		status = http.StatusBadRequest
	case apperrors.TypeNotFound:
		status = http.StatusNotFound
	case apperrors.TypeConflict:
		status = http.StatusConflict
	case apperrors.TypeUnavailable:
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, errorResponse{
		Error: errorEnvelope{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
	})
}

// decodeJSONBody reads exactly one JSON object into target. An empty body
// leaves target untouched when allowEmpty is set.
func decodeJSONBody(body io.Reader, target any, allowEmpty bool) *apperrors.AppError {
	decoder := json.NewDecoder(io.LimitReader(body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	decoder.UseNumber()

	if err := decoder.Decode(target); err != nil {
		if err == io.EOF && allowEmpty {
			return nil
		}
		return apperrors.NewValidation(
			"invalid_request",
			"request body must be valid JSON",
			map[string]any{"error": err.Error()},
		)
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return apperrors.NewValidation(
			"invalid_request",
			"request body must contain a single JSON object",
			nil,
		)
	}
	return nil
}
