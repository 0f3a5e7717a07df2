package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/server/sharing"
)

const (
	codeValidation   = "VALIDATION_ERROR"
	codeRejected     = "REJECTED"
	codeNotFound     = "NOT_FOUND"
	codeForbidden    = "FORBIDDEN"
	codeUnauthorized = "UNAUTHORIZED"
	codeConflict     = "CONFLICT"
	codeUnavailable  = "STORAGE_UNAVAILABLE"
	codeTooLarge     = "FILE_TOO_LARGE"
	codeInternal     = "INTERNAL_ERROR"
)

// errorBody is the envelope of every error response:
// {"error": {"code": "...", "message": "..."}}.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// classify maps a service error to its status, code and client-safe
// message.
func classify(err error) (int, string, string) {
	reason := common.ReasonOf(err)

	switch {
	case errors.Is(err, common.ErrRejected):
		return http.StatusUnprocessableEntity, codeRejected, reason
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, codeValidation, reason
	case errors.Is(err, common.ErrAccessDenied):
		// A bare denial must look like a missing file.
		if reason == sharing.ReasonAccessDenied {
			return http.StatusNotFound, codeNotFound, reason
		}
		return http.StatusForbidden, codeForbidden, reason
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, codeNotFound, "file not found"
	case errors.Is(err, common.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, codeUnavailable, "storage is temporarily unavailable, retry later"
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, codeUnauthorized, "access token expired"
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return http.StatusUnauthorized, codeUnauthorized, "refresh token expired"
	case errors.Is(err, common.ErrAccountLocked):
		return http.StatusForbidden, codeForbidden, "account is locked due to too many failed login attempts, reset the password to unlock it"
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized, codeUnauthorized, "invalid credentials"
	case errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusConflict, codeConflict, "already exists"
	default:
		return http.StatusInternalServerError, codeInternal, "internal server error"
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "route", r.URL.Path, "error", err)
	}
	writeError(w, status, code, message)
}

// decodeJSON reads a single JSON object into dst, rejecting unknown
// fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return common.Invalid("invalid request body")
	}
	return nil
}
