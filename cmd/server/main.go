package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"licenseportal/internal/access"
	"licenseportal/internal/config"
	"licenseportal/internal/entitlement"
	"licenseportal/internal/handler"
	"licenseportal/internal/jwtauth"
	"licenseportal/internal/logging"
	"licenseportal/internal/middleware"
	"licenseportal/internal/telemetry"

	"go.uber.org/zap"
)

const serviceName = "license-portal"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	shutdownTracing, err := telemetry.Setup(context.Background(), serviceName, cfg.Telemetry.Endpoint, cfg.Telemetry.Enabled)
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	if !cfg.DevOps.Configured() {
		logger.Warn("AZURE_DEVOPS_PAT is not set; Azure DevOps actions will not work")
	}
	if len(cfg.DevOps.Orgs) == 0 {
		logger.Warn("AZDO_ORGS is empty; no organizations will be queried")
	}

	// Entitlement store client and the engine built on it
	client := entitlement.NewClient(cfg.DevOps.EntitlementConfig(),
		entitlement.WithLogger(logger.Named("entitlement")),
	)
	reconciler := access.NewReconciler(client, nil,
		access.WithLogger(logger.Named("reconcile")),
		access.WithConcurrency(cfg.DevOps.MaxConcurrency),
	)
	upgrader := access.NewUpgrader(client, cfg.DevOps.Orgs,
		access.WithLogger(logger.Named("upgrade")),
	)
	logger.Info("azure devops organizations configured",
		zap.Strings("orgs", cfg.DevOps.Orgs),
		zap.Bool("credential_configured", cfg.DevOps.Configured()),
	)

	verifier, err := jwtauth.NewVerifier(jwtauth.Config{
		TenantID: cfg.Entra.TenantID,
		ClientID: cfg.Entra.ClientID,
	}, logger.Named("jwtauth"))
	if err != nil {
		logger.Fatal("failed to initialize token verifier", zap.Error(err))
	}

	// Set up routes with dependencies
	deps := &handler.Deps{
		Config:     cfg,
		Logger:     logger,
		Verifier:   verifier,
		Reconciler: reconciler,
		Upgrader:   upgrader,
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, deps)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           middleware.RequestID(middleware.Trace(middleware.AccessLog(logger)(mux))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal server errors
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("license portal starting",
			zap.String("addr", server.Addr),
			zap.String("env", cfg.Environment),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	case sig := <-shutdown:
		logger.Info("initiating graceful shutdown", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		logger.Info("waiting for in-flight requests to complete")
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("graceful shutdown failed, forcing shutdown", zap.Error(err))
			if err := server.Close(); err != nil {
				logger.Error("forced shutdown failed", zap.Error(err))
			}
		}

		logger.Info("server shutdown complete")
	}
}
