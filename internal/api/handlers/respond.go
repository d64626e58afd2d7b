package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/shivam13669/CRMManagementt-sub003/pkg/errors"
)

// Helper functions

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

var statusByErrorType = map[apperrors.ErrorType]int{
	apperrors.ErrorTypeNotFound:              http.StatusNotFound,
	apperrors.ErrorTypeValidation:            http.StatusBadRequest,
	apperrors.ErrorTypeUnauthorized:          http.StatusUnauthorized,
	apperrors.ErrorTypeForbidden:             http.StatusForbidden,
	apperrors.ErrorTypeExternal:              http.StatusBadGateway,
	apperrors.ErrorTypeFetch:                 http.StatusBadGateway,
	apperrors.ErrorTypeTransitionRejected:    http.StatusConflict,
	apperrors.ErrorTypePreconditionFailed:    http.StatusPreconditionFailed,
	apperrors.ErrorTypeResolutionUnavailable: http.StatusServiceUnavailable,
}

// respondWithAppError maps an AppError to its status code. Anything else
// is reported as an internal error without detail.
func respondWithAppError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status, ok := statusByErrorType[appErr.Type]
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	body := map[string]string{
		"error": appErr.Message,
		"type":  string(appErr.Type),
	}
	if appErr.Reason != "" {
		body["reason"] = appErr.Reason
	}
	respondWithJSON(w, status, body)
}
