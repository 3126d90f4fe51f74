package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"graphplan-mcp/internal/agents"
	"graphplan-mcp/internal/api"
	"graphplan-mcp/internal/auth"
	"graphplan-mcp/internal/config"
	"graphplan-mcp/internal/critic"
	"graphplan-mcp/internal/files"
	"graphplan-mcp/internal/graphdb"
	"graphplan-mcp/internal/llm"
	"graphplan-mcp/internal/logging"
	"graphplan-mcp/internal/mcp"
	"graphplan-mcp/internal/planner"
	"graphplan-mcp/internal/repository"
	"graphplan-mcp/internal/tls"
	"graphplan-mcp/internal/workflow"
)

func main() {
	var configFile string

	root := &cobra.Command{
		Use:   "graphplan-server",
		Short: "Graph construction plan service",
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), configFile)
		},
	}
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, configFile string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}

	logger := logging.NewLogger(cfg.IsDev())
	defer logger.Sync()

	logger.Info("Starting graph construction plan service",
		"environment", cfg.Environment,
		"import_root", cfg.Import.Root,
		"max_turns", cfg.Workflow.MaxTurns,
	)

	// Database is optional; without it runs stay in memory and the graph
	// store endpoints are disabled.
	var dbPool *pgxpool.Pool
	var store workflow.Snapshots
	var applier *graphdb.Applier
	fsvc := files.NewService(cfg.Import.Root)
	if cfg.DB.Host != "" {
		dbPool, err = initDatabase(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("database initialization failed: %w", err)
		}
		defer dbPool.Close()
		store = repository.NewPostgresRunStore(dbPool)
		applier = graphdb.NewApplier(graphdb.NewPostgresExecutor(dbPool), fsvc, logger)
		logger.Info("Database connected")
	} else {
		logger.Warn("No database configured; run snapshots and plan apply are disabled")
	}

	// Workflow core.
	builder := planner.NewBuilder(fsvc)
	criticSvc := critic.New(fsvc)

	var proposer workflow.Proposer
	if cfg.LLM.APIKey != "" {
		client, err := llm.NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			return fmt.Errorf("llm initialization failed: %w", err)
		}
		proposer = agents.NewLLMProposer(client, logger, cfg.Workflow.MaxActionsPerTurn)
		logger.Info("Embedded proposer enabled", "model", cfg.LLM.Model)
	} else {
		logger.Warn("No LLM configured; runs must be driven through the MCP tools")
	}

	coordinator, err := workflow.NewCoordinator(proposer, criticSvc, builder, fsvc, store, logger, cfg.Workflow.MaxTurns)
	if err != nil {
		return fmt.Errorf("coordinator initialization failed: %w", err)
	}
	manager := workflow.NewManager()

	// Create Echo server
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("graphplan-mcp"))

	// Initialize authentication
	authz, err := auth.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("auth initialization failed: %w", err)
	}
	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	// Mount REST API handlers under /api/v1 behind auth.
	apiHandler := api.NewHandler(ctx, manager, coordinator, fsvc, applier, logger)
	e.GET("/health", apiHandler.HandleHealth)
	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	api.RegisterHandlers(apiGroup, apiHandler)
	logger.Info("REST API handlers mounted")

	// Mount MCP protocol handlers
	mcpServer := mcp.NewServer(manager, coordinator, builder, fsvc, logger, cfg.Import.SampleLines)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))
	logger.Info("MCP protocol handlers mounted")

	// Create HTTP server
	addr := ":8080"
	if cfg.TLS.Enable {
		addr = ":8443"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
				logger.Error("TLS enabled but cert/key file not provided")
				serverErrors <- server.ListenAndServe()
				return
			}
			// generate if missing and hostnames provided
			if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) {
				if len(cfg.TLS.Hostnames) > 0 {
					if err := tls.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
						logger.Error("failed to generate self-signed cert", "error", err)
					}
				}
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}
		logger.Info("Server stopped gracefully")
	}
	return nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
