package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/admissions-crawler/internal/admission"
	"github.com/JakeFAU/admissions-crawler/internal/config"
	collyfetcher "github.com/JakeFAU/admissions-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/admissions-crawler/internal/hash/sha256"
	"github.com/JakeFAU/admissions-crawler/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/admissions-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/admissions-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/admissions-crawler/internal/source"
	"github.com/JakeFAU/admissions-crawler/internal/storage"
	gcsstorage "github.com/JakeFAU/admissions-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/admissions-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/admissions-crawler/internal/storage/memory"
	"github.com/JakeFAU/admissions-crawler/internal/storage/sqlite"
)

type closer func() error

func noopCloser() error { return nil }

// newStoreCache builds the year handle cache over SQLite files in cfg.Storage.BaseDir.
func newStoreCache(cfg config.Config, logger *zap.Logger) *storage.Cache {
	sqlCfg := sqlite.Config{
		BaseDir:      cfg.Storage.BaseDir,
		MaxOpenConns: cfg.Storage.MaxOpenConns,
	}
	storeLogger := logger.Named("sqlite")
	open := func(ctx context.Context, year int, create bool) (admission.Store, error) {
		s, err := sqlite.Open(ctx, sqlCfg, year, create, storeLogger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return storage.NewCache(open, logger.Named("cache"))
}

// newSource wires the colly fetcher, the per-host limiter and the optional raw archive.
func newSource(ctx context.Context, cfg config.Config, logger *zap.Logger) (*source.Source, closer, error) {
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Source.UserAgent,
		Timeout:     cfg.FetchTimeout(),
		MaxBodySize: cfg.Source.MaxBodyBytes,
	})

	opts := []source.Option{source.WithLogger(logger.Named("source"))}
	if cfg.Source.RequestsPerSecond > 0 {
		opts = append(opts, source.WithLimiter(ratelimit.New(ratelimit.Config{
			RequestsPerSecond: cfg.Source.RequestsPerSecond,
			Burst:             cfg.Source.Burst,
		})))
	}

	blobs, closeBlobs, err := newArchiveStore(ctx, cfg.Archive, logger)
	if err != nil {
		return nil, nil, err
	}
	if blobs != nil {
		archive, err := source.NewArchive(blobs, sha256.New(), cfg.Archive.Prefix)
		if err != nil {
			_ = closeBlobs()
			return nil, nil, fmt.Errorf("init archive: %w", err)
		}
		opts = append(opts, source.WithArchive(archive))
	}

	src, err := source.New(source.Config{BaseURL: cfg.Source.BaseURL}, fetcher, opts...)
	if err != nil {
		_ = closeBlobs()
		return nil, nil, fmt.Errorf("init source: %w", err)
	}
	return src, closeBlobs, nil
}

func newArchiveStore(ctx context.Context, cfg config.ArchiveConfig, logger *zap.Logger) (admission.BlobStore, closer, error) {
	switch cfg.Provider {
	case config.ProviderMemory:
		return memorystorage.NewBlobStore(), noopCloser, nil
	case config.ProviderLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, nil, fmt.Errorf("init local archive: %w", err)
		}
		return store, noopCloser, nil
	case config.ProviderGCS:
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: cfg.Bucket}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init gcs archive: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, noopCloser, nil
	}
}

// newPublisher returns nil when notifications are disabled.
func newPublisher(ctx context.Context, cfg config.NotifyConfig) (admission.Publisher, closer, error) {
	switch cfg.Provider {
	case config.ProviderMemory:
		return memorypublisher.New(), noopCloser, nil
	case config.ProviderPubSub:
		pub, err := pubsubpublisher.New(ctx, cfg.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		return pub, pub.Close, nil
	default:
		return nil, noopCloser, nil
	}
}
