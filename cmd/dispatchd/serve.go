package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"water-dispatch-backend/config"
	"water-dispatch-backend/internal/api"
	"water-dispatch-backend/internal/db"
	"water-dispatch-backend/internal/dispatch"
	"water-dispatch-backend/internal/events"
	"water-dispatch-backend/internal/geo"
	"water-dispatch-backend/internal/logging"
	"water-dispatch-backend/internal/notification"
	"water-dispatch-backend/internal/requestsvc"
	"water-dispatch-backend/internal/store"
)

// serveCmd runs the HTTP API and the per-user completion pollers
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatch API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.String("path", configPath))

	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (or JWT_SECRET) must be set")
	}
	if cfg.RequestService.BaseURL == "" {
		return errors.New("request_service.base_url must be set")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		return err
	}
	appStore := store.NewGormStore(gormDB)

	publisher, err := events.Connect(cfg.Events, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	g, gctx := errgroup.WithContext(ctx)

	var (
		notifier       dispatch.Notifier = dispatch.NopNotifier{}
		webpushOptions *webpush.Options
	)
	if cfg.Push.Enabled {
		if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
			return errors.New("push is enabled but VAPID keys are not configured")
		}
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, logger)
		pool.Start(gctx)
		notifier = pool
	}

	client := requestsvc.NewClient(cfg.RequestService, logger)
	catalog := geo.NewCatalogFromConfig(cfg.Dispatch)
	logger.Info("candidate catalog loaded",
		zap.Int("candidates", len(cfg.Dispatch.Candidates)),
		zap.Int("eligible", len(catalog.Eligible())))

	hub := dispatch.NewHub(gctx, cfg.Dispatch, dispatch.Deps{
		Service:  client,
		Store:    appStore,
		Catalog:  catalog,
		Notifier: notifier,
		Events:   publisher,
		Log:      logger,
	})

	handler := api.NewHandler(hub, appStore, client, catalog, webpushOptions, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(handler, cfg.Server, cfg.Auth),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, stopping services")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}
		if err := hub.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("unmount monitors: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("server gracefully stopped")
	return nil
}
