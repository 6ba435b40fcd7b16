package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"shelfdesk/internal/app"
	"shelfdesk/internal/config"
	"shelfdesk/internal/logger"
	"shelfdesk/internal/server"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	boot := logger.NewWithDefaults()
	cfg, err := config.Load(boot)
	boot.Sync()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting shelfdesk API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Driver),
	)

	// first signal starts the graceful shutdown, a second one kills the process
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}

	srv := server.NewServer(a, log)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := a.Sessions.Init(gctx); err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}
		log.Info("Session resolved", zap.String("state", string(a.Sessions.State())))
		return a.Identity.AutoRefresh(gctx)
	})

	g.Go(func() error {
		// an already hydrated catalog is kept; a failed load is recorded in the store state
		if err := a.Catalog.FetchProducts(gctx, false); err != nil {
			log.Warn("Initial catalog load failed", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		stop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	srv.Close()
	log.Info("Server exiting")
	return err
}
