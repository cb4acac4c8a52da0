// Package main is the entry point for the chat console server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/admin-chat/internal/config"
	"github.com/capitalize-ai/admin-chat/internal/handler"
	natsclient "github.com/capitalize-ai/admin-chat/internal/nats"
	"github.com/capitalize-ai/admin-chat/internal/remote"
	"github.com/capitalize-ai/admin-chat/internal/service"
	"github.com/capitalize-ai/admin-chat/internal/store"
	"github.com/capitalize-ai/admin-chat/pkg/logger"
	"github.com/capitalize-ai/admin-chat/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "admin-chat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.ForEnvironment(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting chat console",
		zap.Int64("operator_id", cfg.OperatorID),
		zap.String("broadcast_topic", cfg.BroadcastTopic),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "admin-chat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	api, err := remote.NewClient(remote.Config{
		BaseURL:         cfg.BackendURL,
		Token:           cfg.BackendToken,
		Timeout:         cfg.BackendTimeout,
		FetchMaxElapsed: cfg.FetchMaxElapsed,
	}, log)
	if err != nil {
		return fmt.Errorf("create backend client: %w", err)
	}

	session := natsclient.NewSession(natsclient.SessionConfig{
		Conn: natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		},
		SendPrefix: cfg.SendPrefix,
	}, log)

	// Initialize services
	chat := service.NewChatService(service.ChatConfig{
		OperatorID:      cfg.OperatorID,
		BroadcastTopic:  cfg.BroadcastTopic,
		DefaultPageSize: cfg.DefaultPageSize,
	}, store.New(log), session, api, log)
	defer chat.Close()

	// Without the transport the console keeps serving the bulk state.
	if err := chat.Start(ctx); err != nil {
		log.Warn("live updates unavailable, serving without broadcast stream", zap.Error(err))
	}

	// Create HTTP server
	server := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: handler.NewRouter(handler.RouterConfig{
			JWTSecret:         cfg.JWTSecret,
			RateLimitRequests: cfg.RateLimitRequests,
			RateLimitWindow:   cfg.RateLimitWindow,
		}, chat, log),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Closing the service ends open SSE streams so Shutdown does not wait on them.
	server.RegisterOnShutdown(chat.Close)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}
