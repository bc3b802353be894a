package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/replayio/devtools-sub005/internal/infrastructure/config"
	"github.com/replayio/devtools-sub005/internal/infrastructure/logging"
	"github.com/replayio/devtools-sub005/internal/infrastructure/server"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Flags override the environment
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Listen host")
	flag.StringVar(&cfg.Resolver.Mode, "resolver", cfg.Resolver.Mode, "Resolver backend: sandbox, remote, snapshot or cdp")
	flag.StringVar(&cfg.Resolver.RemoteURL, "remote", cfg.Resolver.RemoteURL, "Base URL of a remote resolver")
	flag.StringVar(&cfg.Resolver.SnapshotPath, "snapshot", cfg.Resolver.SnapshotPath, "Snapshot file to serve")
	flag.StringVar(&cfg.Resolver.CDPURL, "cdp", cfg.Resolver.CDPURL, "DevTools websocket URL; empty launches a browser")
	flag.IntVar(&cfg.Inspector.MaxDepth, "max-depth", cfg.Inspector.MaxDepth, "Copy depth limit")
	flag.IntVar(&cfg.Inspector.BucketSize, "bucket-size", cfg.Inspector.BucketSize, "Elements per bucket")
	flag.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development logging")
	flag.Parse()

	logger := logging.FromConfig(cfg.Logging.Level, cfg.Logging.Development)
	defer logger.Sync()

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case <-sigChan:
		logger.Info("Shutting down gracefully")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
	case err := <-errChan:
		if err != nil {
			logger.Fatal("Server error", zap.Error(err))
		}
	}
}
