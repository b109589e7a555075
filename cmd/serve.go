package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lokatools/marketmirror/internal/api"
	"github.com/lokatools/marketmirror/internal/app"
)

// newServeCmd creates the serve command: the HTTP API plus, when enabled,
// the background crawl loop.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFromContext(cmd.Context())
			if a == nil {
				return fmt.Errorf("application not initialized")
			}
			return runServe(cmd.Context(), a)
		},
	}
}

func runServe(ctx context.Context, a *app.App) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(a.Resolver, a.Aggregator, a.Crawler, a.Records, a.Links, a.Config, a.Logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if a.Config.Crawler.Background {
		go crawlLoop(ctx, a)
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", zap.Int("port", a.Config.Server.Port))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// crawlLoop runs crawl cycles on a fixed cadence until the context ends.
// An immediate first cycle is opt-in via crawler.initial_update.
func crawlLoop(ctx context.Context, a *app.App) {
	if a.Config.Crawler.InitialUpdate {
		runCycle(ctx, a)
	}
	ticker := time.NewTicker(a.Config.Crawler.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCycle(ctx, a)
		}
	}
}

func runCycle(ctx context.Context, a *app.App) {
	stats, err := a.Crawler.RunCycle(ctx)
	if err != nil {
		a.Logger.Error("background crawl cycle failed", zap.Error(err))
		return
	}
	a.Logger.Info("background crawl cycle finished",
		zap.Int("pages_checked", stats.PagesChecked),
		zap.Int("new_records", stats.NewRecords),
		zap.Int("cached_records", stats.CachedRecords),
	)
}
