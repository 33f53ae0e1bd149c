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
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/admissions-crawler/internal/api"
	"github.com/JakeFAU/admissions-crawler/internal/query"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(cfgFile *string) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored admission data over HTTP",
		Long: `Starts the read-only query API. Storage units are opened lazily from the
base directory and are never created by this command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v, *cfgFile)
		},
	}
	cmd.Flags().String("path", "./", "base directory holding <year>.db files (overrides storage.base_dir)")
	cmd.Flags().Int("port", 8095, "listen port (overrides server.port)")
	_ = v.BindPFlag("storage.base_dir", cmd.Flags().Lookup("path"))
	_ = v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	return cmd
}

func runServe(parent context.Context, v *viper.Viper, cfgFile string) error {
	cfg, logger, err := bootstrap(v, cfgFile)
	if err != nil {
		return err
	}
	defer syncLogger(logger)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache := newStoreCache(cfg, logger)
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("close storage handles", zap.Error(err))
		}
	}()

	queries := query.New(cache, cfg.Years.Available, logger)
	apiServer := api.NewServer(queries, api.Config{
		RequestTimeout: cfg.RequestTimeout(),
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
	}, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started",
			zap.Int("port", cfg.Server.Port),
			zap.String("base_dir", cfg.Storage.BaseDir),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server error", zap.Error(err))
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
