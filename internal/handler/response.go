package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/security"
)

const maxBodyBytes = 1 << 20

var errInternal = &domain.Error{Code: "internal", Message: "internal error"}

// ErrorResponse is the error envelope of every endpoint
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusFor(e *domain.Error) int {
	switch e {
	case domain.ErrUnauthenticated:
		return http.StatusUnauthorized
	case domain.ErrPermissionDenied:
		return http.StatusForbidden
	case domain.ErrInviteInvalid, domain.ErrInvalidInput:
		return http.StatusBadRequest
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrConflict:
		return http.StatusConflict
	case domain.ErrIdentityCreationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto the stable envelope. Only invalid_input carries
// the wrapped reason; every other code uses its canonical message.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	e := domain.Classify(err)
	if e == nil {
		logger.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: ErrorDetail{Code: errInternal.Code, Message: errInternal.Message}})
		return
	}

	status := statusFor(e)
	message := e.Message
	if e == domain.ErrInvalidInput {
		message = err.Error()
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.String("code", e.Code), slog.String("error", err.Error()))
	}
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: e.Code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON reads a bounded JSON body. An empty body is invalid input.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.InvalidInput("request body is required")
		}
		return domain.InvalidInput("malformed request body")
	}
	return nil
}

// principal returns nil for anonymous requests; every service guard treats
// nil as unauthenticated.
func principal(r *http.Request) *security.Principal {
	p, _ := security.PrincipalFromContext(r.Context())
	return p
}
