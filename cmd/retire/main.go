package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"retire/internal/backend"
	"retire/internal/cli"
	"retire/internal/config"
	"retire/internal/core"
	apphttp "retire/internal/http"
	"retire/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(config.Load(), nil)
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid diagnostics backend", "error", err)
		os.Exit(1)
	}
	diag, err := backend.NewFactory(logger).Create(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize diagnostics", "error", err, "backend", cfg.DiagnosticsBackend)
		os.Exit(1)
	}

	svc := services.NewEstimateService(core.NewCalculator(cfg.Policy()), diag.Sink, diag.Reader, logger)

	var healthCheck func(context.Context) error
	if pinger, ok := diag.Reader.(interface{ Ping(context.Context) error }); ok {
		healthCheck = pinger.Ping
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RateLimitBurst:     cfg.RateLimitBurst,
		EventsCacheTTL:     cfg.EventsCacheTTL,
		TrustedProxies:     cfg.TrustedProxies,
		HealthCheck:        healthCheck,
	})
	srv.MaxHeaderBytes = 1 << 16

	ctx, stop, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close diagnostics", "error", err)
		}
	})

	logger.Info("Starting retirement calculator",
		"port", cfg.Port,
		"backend", cfg.DiagnosticsBackend,
		"sinks", diag.Sinks,
		"policy", cfg.Policy().String())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		stop()
		<-done
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
