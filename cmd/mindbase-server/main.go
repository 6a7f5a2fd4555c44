// Package main provides the HTTP API server for MindBase.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/mindbase/internal/app"
	"github.com/raphaelgruber/mindbase/internal/auth"
	"github.com/raphaelgruber/mindbase/internal/config"
)

const version = "0.1.0"

func main() {
	// Parse flags
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	issueFor := flag.String("issue-token", "", "print a signed token for this owner and exit")
	tokenTTL := flag.Duration("token-ttl", 30*24*time.Hour, "lifetime of tokens printed by -issue-token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config: %v\n", err)
		os.Exit(1)
	}

	if *issueFor != "" {
		if err := issueToken(cfg, *issueFor, *tokenTTL); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger("mindbase-server", cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	logger.Info("starting mindbase-server",
		"version", version,
		"addr", cfg.Addr,
		"surrealdb_url", cfg.SurrealDBURL,
	)

	if err := run(cfg, logger, *wipeDB); err != nil {
		logger.Error("server failed", "error", err)
		_ = cleanup()
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg config.Config, logger *slog.Logger, wipe bool) error {
	// Create app with all dependencies
	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(initCtx, cfg, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Error("failed to close app", "error", err)
		}
	}()

	// Wipe database if requested (via flag or env var)
	if wipe || os.Getenv("MINDBASE_WIPE_DB") == "true" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := a.WipeData(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("wipe database: %w", err)
		}
	}

	if !cfg.AuthEnabled() {
		logger.Warn("MINDBASE_JWT_SECRET not set, every request acts as the default owner",
			"owner", cfg.DefaultOwner)
	}

	// Serve until SIGINT or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.Server().Run(ctx)
}

// issueToken prints a bearer token for owner, for use as MINDBASE_TOKEN.
func issueToken(cfg config.Config, owner string, ttl time.Duration) error {
	if !cfg.AuthEnabled() {
		return fmt.Errorf("MINDBASE_JWT_SECRET must be set to issue tokens")
	}
	v := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.DefaultOwner)
	token, err := v.Issue(owner, ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Println(token)
	return nil
}
