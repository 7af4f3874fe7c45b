package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"clockify-sync/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP trigger and reporting API, optionally syncing on a schedule",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default: HTTP_ADDR)")
	serveCmd.Flags().String("schedule", "", "Cron schedule for periodic syncs (default: SYNC_SCHEDULE)")
	serveCmd.Flags().Bool("daily", false, "Sync at local midnight each day (uses SYNC_TZ, default UTC)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	schedule, _ := cmd.Flags().GetString("schedule")
	daily, _ := cmd.Flags().GetBool("daily")
	if addr == "" {
		addr = cfg.HTTP.Addr
	}
	if schedule == "" {
		schedule = cfg.Sync.Schedule
	}
	if daily {
		schedule = "0 0 * * *"
	}

	ctx := cmd.Context()
	application, err := app.New(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	if schedule != "" {
		sched, err := application.NewScheduler(ctx, schedule, cfg.Sync.Timezone)
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
		logger.Info("scheduled sync enabled", slog.String("schedule", schedule), slog.String("tz", cfg.Sync.Timezone))
	}

	srv := application.HTTPServer(addr, cfg.HTTP.AllowOrigins)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
