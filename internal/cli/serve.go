package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/healfactory/internal/config"
	"github.com/lucasnoah/healfactory/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the JSON API that triggers and observes healing runs:

  POST /api/run-agent   start a run (409 while one is in flight)
  GET  /api/status      run slot status
  GET  /api/results     record of the latest finished run
  GET  /api/timeline    events of the current or last run
  POST /api/reset       return the slot to idle
  POST /api/cancel      cancel the in-flight run
  GET  /api/runs        run history (requires database.url)
  GET  /api/analytics   aggregate statistics (requires database.url)
  GET  /metrics         prometheus metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if errs := config.Validate(appConfig); len(errs) > 0 {
			return validationFailure(cmd, errs)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := newService(ctx, appConfig, logger)
		if err != nil {
			return err
		}
		defer svc.close()

		srv := web.NewServer(svc.controller, svc.registry, logger, web.Config{
			Host: appConfig.Server.Host,
			Port: appConfig.Server.Port,
		})
		if svc.database != nil {
			srv.SetHistory(svc.database)
			srv.SetAnalytics(svc.database.Pool())
		}

		errc := make(chan error, 1)
		go func() { errc <- srv.Start() }()
		cmd.Printf("healfactory API: http://%s:%d (config: %s)\n", appConfig.Server.Host, appConfig.Server.Port, describeSource(configFrom))

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}

		logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		if err := svc.controller.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	},
}

func describeSource(path string) string {
	if path == "" {
		return "built-in defaults"
	}
	return path
}

func init() {
	serveCmd.Flags().String("host", "", "Address to listen on (default from config)")
	serveCmd.Flags().Int("port", 0, "Port to listen on (default from config)")
	serveCmd.Flags().String("database-url", "", "PostgreSQL URL for run history")
	serveCmd.Flags().Bool("open-pr", false, "Open a pull request after each successful push")
}
