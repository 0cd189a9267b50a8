// wabridge bridges WhatsApp chats to Copilot through an editor extension,
// exposing the whole thing as an MCP server and a small HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/codebridge/wabridge/internal/bridge"
	"github.com/codebridge/wabridge/internal/cache"
	"github.com/codebridge/wabridge/internal/chat"
	"github.com/codebridge/wabridge/internal/chat/meow"
	"github.com/codebridge/wabridge/internal/config"
	"github.com/codebridge/wabridge/internal/editor"
	"github.com/codebridge/wabridge/internal/health"
	"github.com/codebridge/wabridge/internal/httpapi"
	"github.com/codebridge/wabridge/internal/mcpserver"
	"github.com/codebridge/wabridge/internal/session"
)

const appVersion = "0.1.0"

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "wabridge",
		Short:        "WhatsApp to Copilot bridge",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wabridge v%s\n", appVersion)
		},
	}
}

func newServeCmd(configPath *string) *cobra.Command {
	var stdioMCP bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge: session directory, MCP server, and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cmd.Context(), cfg, stdioMCP)
		},
	}
	cmd.Flags().BoolVar(&stdioMCP, "stdio", false, "serve MCP over stdio instead of HTTP/SSE")

	return cmd
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

func run(ctx context.Context, cfg config.Config, stdioMCP bool) error {
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Starting wabridge",
		"version", appVersion,
		"storage_root", cfg.Session.StorageRoot,
		"editor_url", cfg.Editor.BaseURL,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Session directory over the whatsmeow-backed chat client. QR codes go
	// to stderr so stdio MCP transport stays clean.
	var renderer chat.QRRenderer = chat.NewTerminalRenderer(os.Stderr)
	directory := session.NewDirectory(
		cfg.Session,
		cfg.Health.StaleSessionAge,
		meow.Factory(logger.With("component", "chat")),
		renderer,
		logger.With("component", "session"),
	)
	if err := directory.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize session directory: %w", err)
	}

	resultCache := cache.New(cfg.Cache.TTL, cfg.Cache.CleanupInterval)
	defer resultCache.Close()

	editorClient := editor.New(cfg.Editor, logger.With("component", "editor"))

	// Incoming WhatsApp commands go through the responder.
	responder := bridge.New(directory, editorClient, resultCache, logger.With("component", "bridge"))
	directory.SetMessageHandler(responder.Handle)

	// Metrics and health monitoring.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	healthSvc := health.NewService(
		cfg.Health.CheckInterval,
		health.NewMetrics(registry),
		logger.With("component", "health"),
	)
	healthSvc.Register(health.SessionChecker(directory))
	healthSvc.Register(health.CacheChecker(resultCache))
	healthSvc.Register(health.EditorChecker(editorClient))
	go healthSvc.Run(ctx)

	// MCP server.
	mcpSrv := mcpserver.New(
		mcpserver.Config{Name: "wabridge", Version: appVersion},
		directory,
		editorClient,
		resultCache,
		mcpserver.NewAuditLogger(logger.With("component", "audit")),
		logger.With("component", "mcp"),
	)

	errCh := make(chan error, 2)
	go func() {
		if stdioMCP {
			errCh <- mcpSrv.Serve()
			return
		}
		errCh <- mcpSrv.ServeSSE(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port+1))
	}()

	// HTTP API.
	api := httpapi.New(directory, healthSvc, registry, logger.With("component", "http"))
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.Router(),
		ReadTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout: cfg.Server.RequestTimeout,
	}
	go func() {
		logger.Info("HTTP API listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case runErr = <-errCh:
		logger.Error("Server failed", "error", runErr)
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", "error", err)
	}
	directory.Shutdown(shutdownCtx)

	logger.Info("Bridge stopped")
	return runErr
}
