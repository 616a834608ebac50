package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MGallo-Code/aadhaar-verify/internal/config"
	"github.com/MGallo-Code/aadhaar-verify/internal/oauth"
	"github.com/MGallo-Code/aadhaar-verify/internal/store"
	"github.com/MGallo-Code/aadhaar-verify/internal/verify"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Embeds the migration files INTO the go bin

//go:embed migrations/*.sql
var migrationsDir embed.FS

func main() {
	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback logger before config is available
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	// Include source location in log entries at debug level only.
	addSrc := cfg.LogLevel == slog.LevelDebug

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: addSrc,
	})))

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run() is a separate func so deferred closes (ps, rdb) always execute before os.Exit.
	if err := run(ctx, cfg, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	ps, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to set up postgres store: %w", err)
	}
	defer ps.Close()

	migrationsFS, err := fs.Sub(migrationsDir, "migrations")
	if err != nil {
		return fmt.Errorf("failed to access embedded migrations: %w", err)
	}
	if err := ps.Migrate(ctx, migrationsFS); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// One Redis pool shared by the attempt registry and the rate limiter.
	rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to set up redis client: %w", err)
	}
	defer rdb.Close()

	h := newVerifyHandler(cfg, store.NewRedisStore(rdb), ps, store.NewRedisRateLimiter(rdb))

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{
		Handler:           buildRouter(h, cfg.TrustProxyHeaders),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("aadhaar-verify listening", "addr", ln.Addr().String())
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	// In-flight callbacks get up to 30s to finish their exchange and insert.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// newVerifyHandler wires config into a VerifyHandler over the given stores.
// The DigiLocker client gets its own timeout on top of the per-callback context.
func newVerifyHandler(cfg *config.Config, as verify.AttemptStore, rs verify.RecordStore, rl verify.RateLimiter) *verify.VerifyHandler {
	provider := oauth.NewDigiLockerProvider(
		cfg.DigiLockerBaseURL,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.CallbackURL,
		&http.Client{Timeout: cfg.ExchangeTimeout},
	)

	return &verify.VerifyHandler{
		Registry: verify.NewRegistry(as, cfg.AttemptTTL),
		PS:       rs,
		RL:       rl,
		Provider: provider,
		Destinations: verify.Destinations{
			verify.RoleAgentSelf:   cfg.AgentSelfRedirectURL,
			verify.RoleAgentTM:     cfg.AgentTMRedirectURL,
			verify.RoleDistributor: cfg.DistributorRedirectURL,
			verify.RoleTeamMember:  cfg.TeamMemberRedirectURL,
		},
		StartPolicy: store.RateLimit{
			MaxAttempts: cfg.RateStartMax,
			Window:      cfg.RateStartWindow,
			LockoutTTL:  cfg.RateStartLockout,
		},
		ExchangeTimeout: cfg.ExchangeTimeout,
	}
}

// buildRouter wires all routes and middleware.
// Called from run() and from smoke tests.
// trustProxy enables RealIP; without it the client IP is the TCP peer.
func buildRouter(h *verify.VerifyHandler, trustProxy bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(verify.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/", verify.Index)
	r.Get("/health", h.CheckHealth)
	r.Post("/start-authorization", h.StartAuthorization)
	r.Get("/start-authorization/redirect", h.StartAuthorizationRedirect)
	r.Get("/callback", h.Callback)

	return r
}
