package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/admissions-crawler/internal/clock/system"
	"github.com/JakeFAU/admissions-crawler/internal/id/uuid"
	"github.com/JakeFAU/admissions-crawler/internal/ingest"
	"github.com/JakeFAU/admissions-crawler/internal/progress"
	"github.com/JakeFAU/admissions-crawler/internal/progress/sinks"
)

func newIngestCmd(cfgFile *string) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "ingest <year>",
		Short: "Crawl one admission year into its storage unit",
		Long: `Fetches the region index for the given year, then every region's offer and
candidate feeds, and writes the normalized records into <base_dir>/<year>.db.
A region that fails is reported and does not stop its siblings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), v, *cfgFile, args[0])
		},
	}
	cmd.Flags().String("path", "", "base directory for the storage units (overrides storage.base_dir)")
	_ = v.BindPFlag("storage.base_dir", cmd.Flags().Lookup("path"))
	return cmd
}

func parseYear(raw string) (int, error) {
	year, err := strconv.Atoi(raw)
	if err != nil || year <= 0 {
		return 0, fmt.Errorf("invalid year %q", raw)
	}
	return year, nil
}

func runIngest(parent context.Context, v *viper.Viper, cfgFile, rawYear string) error {
	year, err := parseYear(rawYear)
	if err != nil {
		return err
	}
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

	src, closeArchive, err := newSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeArchive(); err != nil {
			logger.Warn("close archive", zap.Error(err))
		}
	}()

	pub, closePublisher, err := newPublisher(ctx, cfg.Notify)
	if err != nil {
		return err
	}
	defer func() {
		if err := closePublisher(); err != nil {
			logger.Warn("close publisher", zap.Error(err))
		}
	}()

	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return fmt.Errorf("init progress metrics: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger},
		sinks.NewLogSink(logger.Named("progress"), zapcore.DebugLevel),
		promSink,
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("close progress hub", zap.Error(err))
		}
	}()

	coordinator, err := ingest.New(ingest.Config{
		RegionConcurrency: cfg.Ingest.RegionConcurrency,
		ReleaseHandle:     cfg.Ingest.CloseHandle,
		NotifyTopic:       cfg.Notify.Topic,
	}, ingest.Deps{
		Handles:   cache,
		Source:    src,
		Publisher: pub,
		Progress:  hub,
		Clock:     system.New(),
		IDs:       uuid.New(),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("init coordinator: %w", err)
	}

	report, err := coordinator.IngestYear(ctx, year)
	if err != nil {
		logger.Error("ingestion aborted", zap.Int("year", year), zap.Error(err))
		return err
	}
	if report.Err() != nil {
		logger.Warn("ingestion finished with failed regions",
			zap.Int("year", year),
			zap.Strings("failed_regions", report.Failed()),
		)
	}
	return nil
}
