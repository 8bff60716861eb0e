package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/xtrntr/nuamexchange/internal/api"
	"github.com/xtrntr/nuamexchange/internal/auth"
	"github.com/xtrntr/nuamexchange/internal/config"
	"github.com/xtrntr/nuamexchange/internal/db"
	"github.com/xtrntr/nuamexchange/internal/docstore"
	"github.com/xtrntr/nuamexchange/internal/exchange"
	"github.com/xtrntr/nuamexchange/internal/memstore"
	"github.com/xtrntr/nuamexchange/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// stores groups the backends chosen by the storage setting
type stores struct {
	users  auth.CredentialStore
	orders exchange.OrderStore
	fees   exchange.FeeStore
	checks map[string]api.Pinger
	close  []func(context.Context) error
}

func main() {
	configPath := flag.String("config", "", "Path to an optional config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		for _, c := range st.close {
			if err := c(closeCtx); err != nil {
				logger.Warn("failed to close store", slog.String("error", err.Error()))
			}
		}
	}()

	sessions, err := openSessions(ctx, cfg, st)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	authService := auth.NewAuthService(st.users, sessions, cfg.TokenSecret)
	ex := exchange.NewExchange(st.orders, st.fees, newMatcher(cfg))
	ex.Logger = logger

	handler := api.NewHandler(authService, ex, m, logger, cfg.AllowedOrigins)
	for name, p := range st.checks {
		handler.Checks[name] = p
	}
	defer handler.Feed.Close()

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(handler, cfg.AllowedOrigins),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("storage", cfg.Storage),
			slog.String("sessions", cfg.SessionBackend),
			slog.String("match_mode", cfg.MatchMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("server stopped")
	return nil
}

// openStores connects to PostgreSQL and MongoDB, or builds the in-memory
// store when storage is "memory"
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	if cfg.Storage == "memory" {
		store := memstore.New()
		n, err := auth.SeedUsers(ctx, store, auth.DefaultAccounts, bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to seed users: %w", err)
		}
		logger.Warn("using in-memory storage, data is lost on exit", slog.Int("seeded_users", n))
		return &stores{
			users:  store,
			orders: store,
			fees:   store,
			checks: map[string]api.Pinger{"memory": store},
		}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	database, err := db.NewDB(connectCtx, cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(connectCtx); err != nil {
		database.Close(ctx)
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	if err := database.Migrate(connectCtx); err != nil {
		database.Close(ctx)
		return nil, err
	}
	logger.Info("connected to postgres")

	docs, err := docstore.Connect(connectCtx, cfg.MongoURI, cfg.MongoDatabase, cfg.ConnectTimeout)
	if err != nil {
		database.Close(ctx)
		return nil, fmt.Errorf("failed to reach mongodb: %w", err)
	}
	if err := docs.EnsureIndexes(connectCtx); err != nil {
		docs.Close(ctx)
		database.Close(ctx)
		return nil, err
	}
	logger.Info("connected to mongodb", slog.String("database", cfg.MongoDatabase))

	return &stores{
		users:  docs,
		orders: database,
		fees:   docs,
		checks: map[string]api.Pinger{"postgres": database, "mongodb": docs},
		close:  []func(context.Context) error{database.Close, docs.Close},
	}, nil
}

func openSessions(ctx context.Context, cfg *config.Config, st *stores) (auth.SessionStore, error) {
	if cfg.SessionBackend != "redis" {
		return auth.NewMemorySessionStore(), nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DialTimeout: cfg.ConnectTimeout})
	sessions := auth.NewRedisSessionStore(client)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := sessions.Ping(pingCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	st.checks["redis"] = sessions
	st.close = append(st.close, func(context.Context) error { return client.Close() })
	return sessions, nil
}

func newMatcher(cfg *config.Config) exchange.Matcher {
	switch cfg.MatchMode {
	case "always":
		return exchange.NewSeededMatcher(1)
	case "never":
		return exchange.NewSeededMatcher(0)
	default:
		return exchange.NewSeededMatcher(cfg.FillProbability)
	}
}
