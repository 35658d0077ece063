package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"datacatalog/api"
	"datacatalog/api/services"
	"datacatalog/pkg/cache"
	"datacatalog/pkg/config"
	"datacatalog/pkg/dictization"
	embeddednats "datacatalog/pkg/services/embedded-nats"
	"datacatalog/pkg/services/workers"

	"github.com/spf13/cobra"
)

const (
	defaultPort     = 5000
	defaultNATSPort = 4222
)

type serveOptions struct {
	port   int
	noNATS bool
}

func (a *app) serveCommand() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the catalog API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "HTTP port (overrides CATALOG_PORT)")
	cmd.Flags().BoolVar(&opts.noNATS, "no-nats", false, "disable the embedded activity stream")

	return cmd
}

func (a *app) serve(ctx context.Context, opts serveOptions) error {
	logger := loggerFromContext(ctx)

	dbService, err := a.openDB()
	if err != nil {
		return err
	}
	defer dbService.Close()
	logger.Info("Database ready", "path", dbService.DBPath)

	licenses, err := a.licenses()
	if err != nil {
		return err
	}

	countsCache, err := a.countsCache(ctx)
	if err != nil {
		return err
	}
	defer countsCache.Close()
	counts := dictization.NewCountsCache(countsCache, a.cfg.GetDuration(config.KeyCountsTTL, dictization.DefaultCountsTTL))

	var (
		publisher services.Publisher
		health    api.HealthChecker
		manager   *workers.Manager
		nats      *embeddednats.EmbeddedNATS
	)
	if !opts.noNATS {
		nats, err = a.startNATS()
		if err != nil {
			return err
		}
		defer func() {
			if err := nats.Shutdown(context.Background()); err != nil {
				logger.Warn("Failed to shutdown NATS", "err", err)
			}
		}()

		recorder := workers.NewActivityWorker(nats.Connection(), nats.JetStream(), dbService.DB, counts)
		manager, err = workers.NewManager(nats, recorder)
		if err != nil {
			return fmt.Errorf("failed to create worker manager: %w", err)
		}
		if err := manager.Start(); err != nil {
			return fmt.Errorf("failed to start workers: %w", err)
		}
		defer manager.Stop()

		publisher, health = nats, nats
	}

	catalog := services.NewCatalogService(dbService.DB, a.cfg, licenses, counts, publisher)
	handlers := api.NewHandlers(dbService, a.cfg, catalog, health)

	port := opts.port
	if port == 0 {
		port = a.cfg.GetInt(config.KeyPort, defaultPort)
	}

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      handlers.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting catalog API server", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Failed to shutdown server gracefully", "err", err)
	}
	logger.Info("Server shutdown complete")
	return nil
}

// countsCache picks Redis when CATALOG_REDIS_URL is set, otherwise an
// in-process cache.
func (a *app) countsCache(ctx context.Context) (cache.Cache, error) {
	url := a.cfg.Get(config.KeyRedisURL, "")
	if url == "" {
		return cache.NewMemoryCache(), nil
	}
	c, err := cache.NewRedisCache(ctx, url, "catalog:")
	if err != nil {
		return nil, err
	}
	loggerFromContext(ctx).Info("Using redis for dataset counts")
	return c, nil
}

func (a *app) startNATS() (*embeddednats.EmbeddedNATS, error) {
	natsCfg := embeddednats.DefaultConfig()
	natsCfg.Port = a.cfg.GetInt(config.KeyNATSPort, defaultNATSPort)
	natsCfg.DataDir = a.cfg.Get(config.KeyNATSDataDir, natsCfg.DataDir)

	nats, err := embeddednats.New(natsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS: %w", err)
	}
	if err := nats.Start(); err != nil {
		return nil, fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	if err := nats.CreateCatalogStreams(); err != nil {
		_ = nats.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create catalog streams: %w", err)
	}
	return nats, nil
}
