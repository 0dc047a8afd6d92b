package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"

	"github.com/Tyrowin/chatwave/internal/auth"
	"github.com/Tyrowin/chatwave/internal/server"
	"github.com/Tyrowin/chatwave/internal/storage"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatwave terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	config, err := server.LoadConfig()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	store, err := storage.Open(config.BadgerPath, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = store.Close()
	}()

	tokens := auth.NewManager(auth.Config{
		Secret:     config.JWTSecret,
		Issuer:     config.JWTIssuer,
		AccessTTL:  config.AccessTokenTTL,
		RefreshTTL: config.RefreshTokenTTL,
	})
	srv := server.New(logger, config, store, tokens)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		if err != nil {
			return exitRuntime, err
		}
		return exitOK, nil
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return exitRuntime, fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, context.Canceled) {
		return exitRuntime, err
	}
	logger.Info("Server stopped cleanly")
	return exitOK, nil
}
