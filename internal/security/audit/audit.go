package audit

import (
	"context"
	"log/slog"
	"time"
)

type requestIDKey struct{}

// ContextWithRequestID attaches the request id so audit records can be
// correlated with access logs.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(slog.String("component", "audit"))}
}

func (al *Logger) LogAction(ctx context.Context, hubID, userID, action, resource, resourceID, status, details string) {
	if al == nil {
		return
	}
	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("hub_id", hubID),
		slog.String("user_id", userID),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", RequestIDFromContext(ctx)),
		slog.Time("timestamp", time.Now()),
	)
}

func (al *Logger) LogInviteIssued(ctx context.Context, hubID, userID, code, accountType string) {
	al.LogAction(ctx, hubID, userID, "issue", "invite", code, "success", accountType)
}

func (al *Logger) LogInviteConsumed(ctx context.Context, hubID, userID, code string) {
	al.LogAction(ctx, hubID, userID, "consume", "invite", code, "success", "")
}

func (al *Logger) LogSignup(ctx context.Context, hubID, userID, code, status, details string) {
	al.LogAction(ctx, hubID, userID, "signup", "identity", code, status, details)
}

func (al *Logger) LogImpersonation(ctx context.Context, hubID, userID, action string) {
	al.LogAction(ctx, hubID, userID, action, "impersonation", "", "success", "")
}

func (al *Logger) LogRoleChange(ctx context.Context, hubID, actorID, action, targetUserID, role string) {
	al.LogAction(ctx, hubID, actorID, action, "role", targetUserID, "success", role)
}

func (al *Logger) LogDenied(ctx context.Context, hubID, userID, reason string) {
	al.LogAction(ctx, hubID, userID, "access_denied", "api", "", "denied", reason)
}

// LogUnauthenticated records a request rejected before any principal existed.
func (al *Logger) LogUnauthenticated(ctx context.Context, clientIP, route string) {
	if al == nil {
		return
	}
	al.logger.Warn("audit",
		slog.String("action", "unauthenticated"),
		slog.String("resource", "api"),
		slog.String("resource_id", route),
		slog.String("client_ip", clientIP),
		slog.String("status", "denied"),
		slog.String("request_id", RequestIDFromContext(ctx)),
		slog.Time("timestamp", time.Now()),
	)
}
