package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nftmarket/core"
	"nftmarket/gateway/middleware"
	"nftmarket/observability/logging"
	telemetry "nftmarket/observability/otel"
	"nftmarket/services/marketplaced/config"
	"nftmarket/services/marketplaced/idempotency"
	"nftmarket/services/marketplaced/journal"
	"nftmarket/services/marketplaced/server"
	"nftmarket/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to marketplaced configuration (.yaml or .toml)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Observability.ServiceName, cfg.Observability.Environment, logging.Options{
		Level:      cfg.Observability.LogLevel,
		File:       cfg.Observability.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 14,
	})

	logger.Info("configuration loaded",
		"listen", cfg.ListenAddress,
		"storage", cfg.Storage.Engine,
		"journal", cfg.Journal.Driver,
		"auth_enabled", cfg.Auth.Enabled,
		logging.MaskField("hmac_secret", cfg.Auth.HMACSecret),
		"otlp_endpoint", cfg.Observability.OTLPEndpoint,
		logging.MaskField("otlp_headers", cfg.Observability.OTLPHeaders))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("marketplaced stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Observability.ServiceName,
		Environment: cfg.Observability.Environment,
		Endpoint:    cfg.Observability.OTLPEndpoint,
		Insecure:    cfg.Observability.OTLPInsecure,
		Headers:     telemetry.ParseHeaders(cfg.Observability.OTLPHeaders),
		Metrics:     cfg.Observability.Tracing,
		Traces:      cfg.Observability.Tracing,
		SampleRatio: cfg.Observability.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	db, err := storage.Open(cfg.Storage.Engine, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	proc, err := core.NewProcessor(db, core.Config{
		Operator:     cfg.OperatorAddress(),
		Vault:        cfg.VaultAddress(),
		HistoryLimit: cfg.EventHistory,
	}, logger)
	if err != nil {
		db.Close()
		return err
	}
	defer proc.Close()

	var history server.EventHistory
	if cfg.Journal.Driver != "" {
		j, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
		if err != nil {
			return err
		}
		defer j.Close()
		restored, err := j.Load(ctx, cfg.EventHistory)
		if err != nil {
			return err
		}
		proc.RestoreEvents(restored)
		proc.AddSink(j)
		history = j
		logger.Info("event journal attached",
			"driver", cfg.Journal.Driver,
			"dsn", logging.MaskDSN(cfg.Journal.DSN),
			"restored", len(restored))
	}

	var replay func(http.Handler) http.Handler
	if cfg.Idempotency.Path != "" {
		store, err := idempotency.Open(cfg.Idempotency.Path, cfg.Idempotency.TTL, logger)
		if err != nil {
			return fmt.Errorf("open idempotency store: %w", err)
		}
		defer store.Close()
		replay = store.Middleware
	}

	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for name, limit := range cfg.RateLimits {
		limits[name] = middleware.RateLimit{RatePerSecond: limit.RatePerSecond, Burst: limit.Burst}
	}
	origins := cfg.AllowedOrigins
	handler := server.New(server.Config{
		Backend: proc,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:       cfg.Auth.Enabled,
			HMACSecret:    cfg.Auth.HMACSecret,
			Issuer:        cfg.Auth.Issuer,
			Audience:      cfg.Auth.Audience,
			ScopeClaim:    cfg.Auth.ScopeClaim,
			OptionalPaths: cfg.Auth.OptionalPaths,
			ClockSkew:     cfg.Auth.ClockSkew,
		}, logger),
		RateLimiter: middleware.NewRateLimiter(limits, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: cfg.Observability.ServiceName,
			LogRequests: cfg.Observability.LogRequests,
			Enabled:     cfg.Observability.Metrics || cfg.Observability.Tracing,
		}, logger),
		Idempotency:   replay,
		CORS:          middleware.CORSConfig{AllowedOrigins: origins},
		AdminScope:    cfg.Auth.AdminScope,
		Metrics:       cfg.Observability.Metrics,
		StreamOrigins: origins,
		History:       history,
		Logger:        logger,
	})
	if cfg.Observability.Tracing {
		handler = otelhttp.NewHandler(handler, cfg.Observability.ServiceName)
	}
	if !cfg.Auth.Enabled {
		logger.Warn("authentication disabled; callers are taken from X-Caller-Address")
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("marketplaced listening",
			"addr", listener.Addr().String(),
			"storage", cfg.Storage.Engine,
			"operator", proc.Operator().Hex(),
			"vault", proc.Vault().Hex())
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	return nil
}
