package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-auth-service/internal/config"
	"go-auth-service/internal/database"
	"go-auth-service/internal/handler"
	"go-auth-service/internal/kvstore"
	"go-auth-service/internal/middleware"
	"go-auth-service/internal/password"
	"go-auth-service/internal/ratelimit"
	"go-auth-service/internal/repository"
	"go-auth-service/internal/router"
	"go-auth-service/internal/service"
	"go-auth-service/internal/token"
)

const memorySweepInterval = time.Minute

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	var cleanups []func()
	fail := func(err error) (*App, error) {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		return nil, err
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fail(fmt.Errorf("failed to connect to database: %w", err))
	}
	cleanups = append(cleanups, db.Close)

	if err := db.EnsureSchema(context.Background()); err != nil {
		return fail(fmt.Errorf("failed to ensure database schema: %w", err))
	}

	store, storeHealth, closeStore, err := openStore(cfg)
	if err != nil {
		return fail(fmt.Errorf("failed to open shared store: %w", err))
	}
	cleanups = append(cleanups, closeStore)

	codec, err := token.NewCodec(cfg.JWTSecret)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize token codec: %w", err))
	}

	authService, err := service.NewAuthService(service.AuthServiceDeps{
		Users:      repository.NewUserRepository(db.Pool),
		Hasher:     password.NewBcrypt(cfg.BcryptCost),
		Codec:      codec,
		Refresh:    repository.NewTokenRepository(store, cfg.JWTRefreshTTL),
		Limiter:    ratelimit.NewLoginLimiter(store),
		AccessTTL:  cfg.JWTAccessTTL,
		RefreshTTL: cfg.JWTRefreshTTL,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to initialize auth service: %w", err))
	}

	appRouter := router.New(cfg,
		middleware.NewAuthMiddleware(authService),
		handler.NewAuthHandler(authService, cfg.TrustProxyHeaders),
		func(ctx context.Context) error {
			if err := db.Health(ctx); err != nil {
				return err
			}
			return storeHealth(ctx)
		},
	)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{server: server, cleanupFuncs: cleanups}, nil
}

// openStore connects to Redis when REDIS_URL is set and otherwise falls back
// to the in-process store, which only works for a single replica.
func openStore(cfg *config.Config) (kvstore.Store, router.HealthChecker, func(), error) {
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		store, err := kvstore.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Info("using redis for login counters and refresh tokens")
		return store, store.Ping, func() { _ = store.Close() }, nil
	}

	slog.Warn("REDIS_URL not set; using in-memory store, do not run more than one replica")
	store := kvstore.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	go store.StartJanitor(ctx, memorySweepInterval)
	return store, func(context.Context) error { return nil }, cancel, nil
}

func (a *App) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-stop:
	case err := <-serveErr:
		runErr = fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil && runErr == nil {
		runErr = fmt.Errorf("graceful shutdown failed: %w", err)
	}

	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}

	slog.Info("server stopped")
	return runErr
}
