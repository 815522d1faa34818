package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"barter/internal/apperr"
	"barter/internal/constants"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, constants.ErrCodeInvalidRequest, message)
}

func unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, constants.ErrCodeUnauthorized, message)
}

// writeAppError maps a service error onto the error envelope. Internal errors
// are logged and answered with a generic message.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status, code := statusForKind(kind)
	if kind == apperr.Internal {
		slog.Error("request failed", "component", "api", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, code, apperr.Message(err))
}

func statusForKind(kind apperr.Kind) (int, string) {
	switch kind {
	case apperr.NotFound:
		return http.StatusNotFound, constants.ErrCodeNotFound
	case apperr.Forbidden:
		return http.StatusForbidden, constants.ErrCodeForbidden
	case apperr.Unauthorized:
		return http.StatusUnauthorized, constants.ErrCodeAuthFailed
	case apperr.InvalidArgument:
		return http.StatusBadRequest, constants.ErrCodeInvalidRequest
	case apperr.InvalidTransition:
		return http.StatusConflict, constants.ErrCodeInvalidTransition
	case apperr.Conflict:
		return http.StatusConflict, constants.ErrCodeConflict
	case apperr.InvalidToken:
		return http.StatusUnauthorized, constants.ErrCodeInvalidToken
	case apperr.RateLimited:
		return http.StatusTooManyRequests, constants.ErrCodeRateLimited
	}
	return http.StatusInternalServerError, constants.ErrCodeInternal
}
