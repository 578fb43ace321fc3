// CLAUDE:SUMMARY CLI entry point for tabkeeper — browser-session daemon with HTTP control port and MCP-over-stdio mode.
// Command tabkeeper is the browser-session daemon. It owns one browser
// and a set of named page sessions that survive client disconnects.
//
// Usage:
//
//	tabkeeper                               # defaults: headless, 127.0.0.1:8377
//	tabkeeper -config tabkeeper.yaml        # run with config file
//	tabkeeper -listen 127.0.0.1:9000        # override the control port
//	tabkeeper -mcp                          # serve MCP tools on stdio instead of HTTP
//	tabkeeper -hash-token S3CRET            # print a bcrypt hash for auth.token_hash
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tabkeeper"
	"github.com/hazyhaar/tabkeeper/internal/shield"
)

func main() {
	configPath := flag.String("config", "", "path to tabkeeper.yaml config file")
	listen := flag.String("listen", "", "control port address (overrides config)")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools on stdio instead of the HTTP API")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	hashToken := flag.String("hash-token", "", "print a bcrypt hash of the given token and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("tabkeeper", tabkeeper.Version)
		return
	}
	if *hashToken != "" {
		h, err := shield.HashToken(*hashToken)
		if err != nil {
			fmt.Fprintln(os.Stderr, "hash token:", err)
			os.Exit(1)
		}
		fmt.Println(h)
		return
	}

	cfg, err := resolveConfig(*configPath, *listen, *logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, *mcpStdio); err != nil {
		logger.Error("tabkeeper: fatal", "error", err)
		os.Exit(1)
	}
}

// resolveConfig layers flag and environment overrides on top of the file.
func resolveConfig(configPath, listen, logLevel string) (*tabkeeper.Config, error) {
	var cfg *tabkeeper.Config
	if configPath == "" {
		configPath = os.Getenv("TABKEEPER_CONFIG")
	}
	if configPath != "" {
		c, err := tabkeeper.LoadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		cfg = tabkeeper.DefaultConfig()
	}

	if v := env("TABKEEPER_LISTEN", ""); v != "" {
		cfg.Listen = v
	}
	if v := env("TABKEEPER_TOKEN", ""); v != "" {
		cfg.Auth.Token = v
	}
	if v := env("TABKEEPER_STORE", ""); v != "" {
		cfg.Store.Path = v
	}
	if v := env("TABKEEPER_REMOTE", ""); v != "" {
		cfg.Browser.Remote = v
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run(ctx context.Context, logger *slog.Logger, cfg *tabkeeper.Config, mcpStdio bool) error {
	k, err := tabkeeper.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := k.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := k.Stop(stopCtx); err != nil {
			logger.Warn("tabkeeper: stop", "error", err)
		}
	}()

	// MCP mode: tools on stdio, no HTTP listener. Logs go to stderr so
	// stdout stays a clean protocol stream.
	if mcpStdio {
		srv := mcp.NewServer(&mcp.Implementation{
			Name:    "tabkeeper",
			Version: tabkeeper.Version,
		}, nil)
		k.RegisterMCP(srv)
		logger.Info("tabkeeper: serving MCP on stdio")
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil
	}

	done := make(chan struct{})
	defer close(done)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newRouter(k, cfg, logger, done),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("tabkeeper: control port listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("tabkeeper: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("tabkeeper: http shutdown", "error", err)
	}
	return nil
}
