package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/security"
	"github.com/roxdxebec/jenga-biz/internal/security/audit"
	"github.com/roxdxebec/jenga-biz/internal/security/auth"
	"github.com/roxdxebec/jenga-biz/internal/security/ratelimit"
)

// PrincipalResolver resolves a bearer credential into a Principal.
type PrincipalResolver interface {
	Resolve(ctx context.Context, token string) (*security.Principal, error)
}

// PathMatcher decides whether a request is handled by a middleware.
type PathMatcher func(r *http.Request) bool

// PublicPaths are reachable without a credential.
func PublicPaths(r *http.Request) bool {
	p := r.URL.Path
	switch p {
	case "/healthz", "/readyz", "/metrics", "/api/signup", "/api/dev/login":
		return true
	}
	return r.Method == http.MethodGet && strings.HasPrefix(p, "/api/invites/") && strings.HasSuffix(p, "/validate")
}

// RateLimitedPaths are the public routes that mint or guess credentials.
func RateLimitedPaths(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return false
	}
	return PublicPaths(r)
}

func AuthMiddleware(resolver PrincipalResolver, public PathMatcher, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public(r) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated)
				return
			}

			token, err := auth.ExtractToken(authHeader)
			if err != nil {
				writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated)
				return
			}

			principal, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthenticated) {
					log.Debug("credential rejected", slog.String("error", err.Error()))
					writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated)
					return
				}
				log.Error("resolve principal failed", slog.String("error", err.Error()))
				writeError(w, http.StatusInternalServerError, &domain.Error{Code: "internal", Message: "internal error"})
				return
			}

			next.ServeHTTP(w, r.WithContext(security.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func RateLimitMiddleware(limiter *ratelimit.Limiter, clients *ClientIPResolver, limited PathMatcher, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limited(r) {
				next.ServeHTTP(w, r)
				return
			}

			ip := clients.ClientIP(r)
			if !limiter.Allow(ip) {
				log.Warn("rate limit exceeded", slog.String("ip", ip), slog.String("path", r.URL.Path))
				writeError(w, http.StatusTooManyRequests, &domain.Error{Code: "rate_limited", Message: "rate limit exceeded"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuditMiddleware records requests rejected with 401. No principal exists
// for those; 403s are audited by the services that know the caller.
func AuditMiddleware(auditLog *audit.Logger, clients *ClientIPResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			if sw.status != http.StatusUnauthorized {
				return
			}
			auditLog.LogUnauthenticated(r.Context(), clients.ClientIP(r), r.Method+" "+r.URL.Path)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, e *domain.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Code: e.Code, Message: e.Message}})
}
