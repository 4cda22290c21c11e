package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apresai/symposium/internal/config"
	"github.com/apresai/symposium/internal/mcpserver"
	"github.com/apresai/symposium/internal/observability"
)

func main() {
	logger := observability.InitLogger()

	logger.Info("Symposium MCP Server starting...")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, err := observability.InitTracer(ctx, "symposium-mcp", mcpserver.Version)
	if err != nil {
		logger.Warn("Failed to init tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("Tracer shutdown error", "error", err)
			}
		}()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	srv, err := mcpserver.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received, waiting for the running discussion...")
		done := make(chan struct{})
		go func() {
			if err := srv.Close(); err != nil {
				logger.Error("Close error", "error", err)
			}
			close(done)
		}()
		// The cancelled discussion stores its partial transcript before exiting.
		select {
		case <-done:
		case <-time.After(8 * time.Second):
			logger.Warn("Timed out waiting for the running discussion")
		}
		logger.Info("Shutdown complete")
		os.Exit(0)
	}()

	if err := srv.Start(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
