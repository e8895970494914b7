package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/roxdxebec/jenga-biz/internal/domain"
	"github.com/roxdxebec/jenga-biz/internal/featureflags"
	"github.com/roxdxebec/jenga-biz/internal/handler"
	"github.com/roxdxebec/jenga-biz/internal/identity"
	"github.com/roxdxebec/jenga-biz/internal/infrastructure/logger"
	"github.com/roxdxebec/jenga-biz/internal/infrastructure/redis"
	"github.com/roxdxebec/jenga-biz/internal/observability/metrics"
	"github.com/roxdxebec/jenga-biz/internal/observability/tracing"
	"github.com/roxdxebec/jenga-biz/internal/reliability/retry"
	"github.com/roxdxebec/jenga-biz/internal/repository"
	"github.com/roxdxebec/jenga-biz/internal/safego"
	"github.com/roxdxebec/jenga-biz/internal/security"
	"github.com/roxdxebec/jenga-biz/internal/security/audit"
	"github.com/roxdxebec/jenga-biz/internal/security/auth"
	"github.com/roxdxebec/jenga-biz/internal/security/middleware"
	"github.com/roxdxebec/jenga-biz/internal/security/ratelimit"
	"github.com/roxdxebec/jenga-biz/internal/service"
	"github.com/roxdxebec/jenga-biz/internal/worker"
	"github.com/roxdxebec/jenga-biz/pkg/config"
	"github.com/roxdxebec/jenga-biz/pkg/database"
)

const serviceName = "jenga-biz"

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	log.Info("starting jenga-biz server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, log, serviceName, cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Database
	pool, err := database.NewConnectionPool(ctx, &database.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: 30 * time.Minute,
	}, log)
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()
	db := pool.GetDB()

	if cfg.RunMigrations {
		if err := database.RunMigrations(db, log); err != nil {
			log.Error("failed to run migrations", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 4. Orphan queue: Redis when configured, process memory otherwise
	var (
		setStore   repository.SetStore
		redisCheck handler.Pinger
	)
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
		setStore = redisClient
		redisCheck = redisClient
	} else {
		log.Warn("REDIS_URL not set, orphaned identities are queued in memory")
		setStore = repository.NewMemorySetStore()
	}

	// 5. Initialize repositories
	invites := repository.NewPostgresInviteRepository(db, log)
	redemptions := repository.NewPostgresRedemptionRepository(db, log)
	profiles := repository.NewPostgresProfileRepository(db, log)
	roles := repository.NewPostgresRoleRepository(db, log)
	sessions := repository.NewPostgresImpersonationRepository(db, log)
	subscriptions := repository.NewPostgresSubscriptionRepository(db, log)
	hubs := repository.NewCachedHubRepository(repository.NewPostgresHubRepository(db, log), cfg.HubCacheTTL)
	orphans := repository.NewOrphanRepository(setStore, log)

	// 6. Credential verification and identity provider
	var verifiers auth.Chain
	var tokenManager *auth.TokenManager
	if cfg.JWTSecret != "" {
		tokenManager = auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer)
		verifiers = append(verifiers, tokenManager)
	}
	if cfg.OIDCIssuerURL != "" {
		oidcVerifier, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuerURL, cfg.OIDCAudience)
		if err != nil {
			log.Error("failed to initialize OIDC verifier", slog.String("error", err.Error()))
			os.Exit(1)
		}
		verifiers = append(verifiers, oidcVerifier)
	}

	var (
		provider    domain.IdentityProvider
		devProvider *identity.MemoryProvider
	)
	switch cfg.IdentityProvider {
	case config.IdentityProviderMemory:
		devProvider = identity.NewMemoryProvider()
		provider = devProvider
	default:
		provider = identity.NewClient(cfg.IdentityAdminURL, cfg.IdentityServiceKey, log)
	}

	// 7. Initialize services
	auditLogger := audit.NewLogger(log)
	scope := security.NewTenantScope(sessions, time.Now, log)
	resolver := service.NewResolver(verifiers, profiles, roles, log)
	subscriptionService := service.NewSubscriptionService(subscriptions, service.SubscriptionConfig{
		PlanName: cfg.SubscriptionPlanName,
		Period:   cfg.SubscriptionPeriod,
		Enabled:  featureflags.EnabledOr(featureflags.SubscriptionAutoAssign, true),
	}, log)
	inviteService := service.NewInviteService(invites, redemptions, hubs, scope, subscriptionService, auditLogger, cfg.InviteTTL, log)
	signupService := service.NewSignupService(invites, redemptions, provider, orphans, subscriptionService, auditLogger, &retry.Config{
		MaxAttempts:       cfg.CompensationMaxAttempts,
		InitialBackoff:    cfg.CompensationInitialBackoff,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}, log)
	impersonationService := service.NewImpersonationService(sessions, hubs, auditLogger, cfg.ImpersonationTTL, log)
	roleService := service.NewRoleService(roles, profiles, scope, auditLogger, log)
	profileService := service.NewProfileService(scope, impersonationService)

	// 8. Initialize handlers
	inviteHandler := handler.NewInviteHandler(inviteService, log)
	signupHandler := handler.NewSignupHandler(signupService, log)
	impersonationHandler := handler.NewImpersonationHandler(impersonationService, log)
	profileHandler := handler.NewProfileHandler(profileService, scope, log)
	roleHandler := handler.NewRoleHandler(roleService, log)
	healthHandler := handler.NewHealthHandler(map[string]handler.Pinger{
		"postgres": handler.PingFunc(pool.Health),
		"redis":    redisCheck,
	}, log)

	// 9. Setup HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/invites", inviteHandler.Issue)
	mux.HandleFunc("GET /api/invites", inviteHandler.List)
	mux.HandleFunc("GET /api/invites/{code}/validate", inviteHandler.Validate)
	mux.HandleFunc("POST /api/invites/consume", inviteHandler.Consume)
	mux.Handle("POST /api/signup", signupHandler)
	mux.HandleFunc("POST /api/impersonation/start", impersonationHandler.Start)
	mux.HandleFunc("POST /api/impersonation/stop", impersonationHandler.Stop)
	mux.HandleFunc("GET /api/impersonation/status", impersonationHandler.Status)
	mux.HandleFunc("GET /api/tenant/scope", profileHandler.Scope)
	mux.HandleFunc("GET /api/me", profileHandler.Me)
	mux.HandleFunc("POST /api/roles/grant", roleHandler.Grant)
	mux.HandleFunc("POST /api/roles/revoke", roleHandler.Revoke)
	mux.HandleFunc("POST /api/users/{id}/deactivate", roleHandler.Deactivate)
	mux.HandleFunc("GET /healthz", healthHandler.Health)
	mux.HandleFunc("GET /readyz", healthHandler.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	if devProvider != nil && tokenManager != nil && featureflags.Enabled(featureflags.DevLogin) {
		if err := seedDevUser(devProvider, cfg); err != nil {
			log.Error("failed to seed dev user", slog.String("error", err.Error()))
			os.Exit(1)
		}
		mux.Handle("POST /api/dev/login", handler.NewLoginHandler(tokenManager, devProvider, log))
		log.Warn("dev login enabled")
	}

	rateLimiter := ratelimit.NewLimiter(cfg.PublicRateLimitPerMinute)
	clientIPs, err := middleware.NewClientIPResolver(cfg.TrustedProxies)
	if err != nil {
		log.Error("invalid TRUSTED_PROXIES", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Chain middleware: request ID -> tracing -> metrics -> CORS -> audit -> rate limit -> auth -> validation
	var rootHandler http.Handler = mux
	rootHandler = middleware.SanitizeInputs(log)(rootHandler)
	rootHandler = middleware.ValidateJSONContentType(log)(rootHandler)
	rootHandler = middleware.AuthMiddleware(resolver, middleware.PublicPaths, log)(rootHandler)
	rootHandler = middleware.RateLimitMiddleware(rateLimiter, clientIPs, middleware.RateLimitedPaths, log)(rootHandler)
	rootHandler = middleware.AuditMiddleware(auditLogger, clientIPs)(rootHandler)
	rootHandler = withCORS(cfg.CORSAllowedOrigins, rootHandler)
	rootHandler = metrics.HTTPMetricsMiddleware(rootHandler)
	rootHandler = otelhttp.NewHandler(rootHandler, serviceName)
	rootHandler = withRequestID(rootHandler, log)

	// 10. Start sweeper in background
	sweeper := worker.NewSweeper(sessions, subscriptions, orphans, provider, hubs, cfg.SweepInterval, log)
	safego.Go(log, "sweeper", func() { sweeper.Start(ctx) })

	// 11. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      rootHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("identity_provider", cfg.IdentityProvider),
		slog.Int("verifiers", len(verifiers)),
		slog.Int("public_rate_limit", cfg.PublicRateLimitPerMinute),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // Stop sweeper
	rateLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

// seedDevUser creates the login used with the in-memory identity provider.
// Its super_admin binding still has to exist in user_roles.
func seedDevUser(p *identity.MemoryProvider, cfg *config.Config) error {
	if cfg.DevUserEmail == "" || cfg.DevUserPassword == "" {
		return nil
	}
	return p.Seed(cfg.DevUserID, cfg.DevUserEmail, cfg.DevUserPassword)
}

// withRequestID attaches a ULID request ID to the context and response headers for traceability
func withRequestID(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = ulid.Make().String()
		}
		w.Header().Set("X-Request-ID", reqID)

		ctx := audit.ContextWithRequestID(r.Context(), reqID)
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r.WithContext(ctx))

		log.Info("request completed",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Duration("duration_ms", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withCORS honours the configured origins
func withCORS(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(allowed) > 0 {
			w.Header().Set("Access-Control-Allow-Origin", allowed[0])
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
