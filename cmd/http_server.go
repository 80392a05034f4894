package cmd

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

	"github.com/frahmantamala/institution-management/internal/auth"
	"github.com/frahmantamala/institution-management/internal/provisioning"
	"github.com/frahmantamala/institution-management/internal/transport/middleware"
	"github.com/frahmantamala/institution-management/internal/transport/rest"
	"github.com/frahmantamala/institution-management/internal/user"
	"github.com/frahmantamala/institution-management/pkg/logger"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"
)

const apiBasePath = "/api/v1"

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	App    *application
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	if err := setupRoutes(deps); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up routes: %v\n", err)
		os.Exit(1)
	}

	cfg := deps.App.Config
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		deps.App.Close(ctx)
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) error {
	app := deps.App
	cfg := app.Config

	health := rest.NewHealthHandler(app.SQL)
	if app.RedisCache != nil {
		health.WithCheck("redis", app.RedisCache.Ping)
	}

	var validator *middleware.OpenAPIValidator
	if cfg.Server.OpenAPISpecPath != "" {
		doc, err := middleware.LoadOpenAPIDocument(context.Background(), cfg.Server.OpenAPISpecPath)
		if err != nil {
			return err
		}
		validator, err = middleware.NewOpenAPIValidator(doc, apiBasePath, deps.Logger)
		if err != nil {
			return err
		}
	}

	tokens := auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.AccessTokenDuration)

	opts := rest.Options{
		Institutions:    app.Institutions,
		Validator:       validator,
		OpenAPISpecPath: cfg.Server.OpenAPISpecPath,
		Logger:          deps.Logger,
	}
	if cfg.Observability.Metrics.Enabled {
		opts.Metrics = app.Metrics
		opts.Gatherer = app.Registry
		opts.MetricsPath = cfg.Observability.Metrics.Path
	}

	rest.RegisterAllRoutes(deps.Router, rest.Handlers{
		Health:       health,
		Auth:         auth.NewHandler(auth.NewService(tokens), deps.Logger),
		RBAC:         auth.NewRBACAuthorization(auth.NewPermissionChecker(), deps.Logger),
		User:         user.NewHandler(app.Users, deps.Logger),
		Provisioning: provisioning.NewHandler(app.Orchestrator, app.Bulk, app.Roles, deps.Logger),
	}, opts)
	return nil
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	lg := logger.Configure(os.Stdout, config.Observability.Logging.Level, config.Observability.Logging.Format)

	app, err := buildApplication(config, lg)
	if err != nil {
		return nil, err
	}

	return &Dependencies{
		App:    app,
		Router: chi.NewRouter(),
		Logger: lg,
	}, nil
}
