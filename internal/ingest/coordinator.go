// Package ingest crawls one admission year into its storage unit.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/admissions-crawler/internal/admission"
	"github.com/JakeFAU/admissions-crawler/internal/metrics"
	"github.com/JakeFAU/admissions-crawler/internal/normalize"
	"github.com/JakeFAU/admissions-crawler/internal/progress"
)

// DefaultRegionConcurrency bounds simultaneously running region units.
const DefaultRegionConcurrency = 8

// Handles hands out per-year storage handles.
type Handles interface {
	GetOrCreate(ctx context.Context, year int, create bool) (admission.Store, error)
	Release(year int) error
}

// Config controls one Coordinator.
type Config struct {
	// RegionConcurrency caps parallel region units. Non-positive uses the default.
	RegionConcurrency int
	// ReleaseHandle closes the year's handle after ingestion. Only one-shot
	// processes should set it; a server shares handles with readers.
	ReleaseHandle bool
	// NotifyTopic receives an admission.IngestEvent when a Publisher is set.
	NotifyTopic string
}

// Deps are the collaborators of a Coordinator. Publisher and Progress are optional.
type Deps struct {
	Handles   Handles
	Source    admission.Source
	Publisher admission.Publisher
	Progress  progress.Emitter
	Clock     admission.Clock
	IDs       admission.IDGenerator
	Logger    *zap.Logger
}

// Coordinator runs ingestion for whole years.
type Coordinator struct {
	cfg       Config
	handles   Handles
	source    admission.Source
	publisher admission.Publisher
	progress  progress.Emitter
	clock     admission.Clock
	ids       admission.IDGenerator
	logger    *zap.Logger
}

// New validates deps and builds a Coordinator.
func New(cfg Config, deps Deps) (*Coordinator, error) {
	if deps.Handles == nil {
		return nil, errors.New("handles is required")
	}
	if deps.Source == nil {
		return nil, errors.New("source is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if deps.IDs == nil {
		return nil, errors.New("id generator is required")
	}
	if cfg.RegionConcurrency <= 0 {
		cfg.RegionConcurrency = DefaultRegionConcurrency
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:       cfg,
		handles:   deps.Handles,
		source:    deps.Source,
		publisher: deps.Publisher,
		progress:  deps.Progress,
		clock:     deps.Clock,
		ids:       deps.IDs,
		logger:    logger.Named("ingest"),
	}, nil
}

// IngestYear crawls every region of year into the year's storage unit.
//
// A failure to open the store or to fetch the region index aborts the run and
// is returned as the error. Per-region failures do not abort siblings; they
// are collected in the Report.
func (c *Coordinator) IngestYear(ctx context.Context, year int) (Report, error) {
	runID, err := c.ids.NewID()
	if err != nil {
		return Report{}, fmt.Errorf("run id: %w", err)
	}
	report := Report{Year: year, RunID: runID, StartedAt: c.clock.Now()}
	logger := c.logger.With(zap.Int("year", year), zap.String("run_id", runID))

	store, err := c.handles.GetOrCreate(ctx, year, true)
	if err != nil {
		return report, fmt.Errorf("storage for %d: %w", year, err)
	}
	if c.cfg.ReleaseHandle {
		defer func() {
			if err := c.handles.Release(year); err != nil {
				logger.Warn("release storage handle", zap.Error(err))
			}
		}()
	}

	links, err := c.source.FetchRegionIndex(ctx, year)
	if err != nil {
		logger.Error("region index unavailable, aborting year", zap.Error(err))
		return report, fmt.Errorf("region index for %d: %w", year, err)
	}
	links = distinctLinks(logger, links)
	regions := make([]admission.Region, len(links))
	for i, link := range links {
		regions[i] = normalize.Region(i+1, link)
	}
	logger.Info("ingestion started", zap.Int("regions", len(regions)))
	c.emit(progress.Event{RunID: runID, Year: year, Stage: progress.StageRunStart})

	report.Regions = make([]RegionResult, len(regions))
	c.insertRegions(ctx, store, logger, regions, report.Regions)
	c.runRegionUnits(ctx, store, logger, runID, year, regions, report.Regions)

	report.FinishedAt = c.clock.Now()
	failed := report.Failed()
	done := progress.Event{
		RunID: runID,
		Year:  year,
		Stage: progress.StageRunDone,
		Dur:   report.FinishedAt.Sub(report.StartedAt),
	}
	for _, res := range report.Regions {
		done.Offers += res.OffersInserted
		done.Skipped += res.OffersSkipped
		done.Candidates += res.CandidatesInserted
	}
	c.emit(done)
	logger.Info("ingestion finished",
		zap.Int("regions", len(regions)),
		zap.Strings("failed_regions", failed),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	c.notify(ctx, logger, report, failed)
	return report, nil
}

// distinctLinks keeps the first link of each region code. A repeated code
// would otherwise get a second id that is never stored.
func distinctLinks(logger *zap.Logger, links []admission.RegionLink) []admission.RegionLink {
	seen := make(map[string]struct{}, len(links))
	out := make([]admission.RegionLink, 0, len(links))
	for _, link := range links {
		if _, ok := seen[link.Code]; ok {
			logger.Warn("duplicate region in index ignored", zap.String("region", link.Code))
			continue
		}
		seen[link.Code] = struct{}{}
		out = append(out, link)
	}
	return out
}

// insertRegions writes every region before any region unit starts.
func (c *Coordinator) insertRegions(ctx context.Context, store admission.Store, logger *zap.Logger, regions []admission.Region, results []RegionResult) {
	var g errgroup.Group
	g.SetLimit(c.cfg.RegionConcurrency)
	for i, region := range regions {
		results[i].Code = region.Code
		g.Go(func() error {
			if err := store.InsertRegion(ctx, region); err != nil {
				results[i].Err = err
				logger.Error("insert region failed", zap.String("region", region.Code), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Coordinator) runRegionUnits(ctx context.Context, store admission.Store, logger *zap.Logger, runID string, year int, regions []admission.Region, results []RegionResult) {
	var g errgroup.Group
	g.SetLimit(c.cfg.RegionConcurrency)
	for i, region := range regions {
		if results[i].Err != nil {
			metrics.ObserveRegion("failed")
			c.emit(progress.Event{
				RunID: runID, Year: year, Region: region.Code,
				Stage: progress.StageRegionError, Note: results[i].Err.Error(),
			})
			continue
		}
		g.Go(func() error {
			c.emit(progress.Event{RunID: runID, Year: year, Region: region.Code, Stage: progress.StageRegionStart})
			started := c.clock.Now()
			regionLogger := logger.With(zap.String("region", region.Code))
			results[i] = c.ingestRegion(ctx, store, regionLogger, year, region)
			c.emitRegionDone(runID, year, results[i], c.clock.Now().Sub(started))
			if results[i].Err != nil {
				metrics.ObserveRegion("failed")
				regionLogger.Error("region failed", zap.Error(results[i].Err))
				return nil
			}
			metrics.ObserveRegion("ok")
			regionLogger.Info("region ingested",
				zap.Int("offers", results[i].OffersInserted),
				zap.Int("offers_skipped", results[i].OffersSkipped),
				zap.Int("candidates", results[i].CandidatesInserted),
			)
			return nil
		})
	}
	_ = g.Wait()
}

// ingestRegion inserts the unassigned offer, the real offers, then the
// candidates of one region. Offer insert failures are skipped; any candidate
// insert failure fails the region.
func (c *Coordinator) ingestRegion(ctx context.Context, store admission.Store, logger *zap.Logger, year int, region admission.Region) (res RegionResult) {
	res.Code = region.Code
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
			logger.Error("region unit panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()

	c.insertOffer(ctx, store, logger, normalize.UnassignedOffer(region), &res)

	rawOffers, err := c.source.FetchOffers(ctx, year, region.Code)
	if err != nil {
		res.Err = fmt.Errorf("fetch offers: %w", err)
		return res
	}
	offers, err := normalize.Offers(rawOffers)
	if err != nil {
		res.Err = fmt.Errorf("normalize offers: %w", err)
		return res
	}
	for _, offer := range offers {
		// Records are scoped to the region whose feed they came from.
		offer.RegionCode = region.Code
		c.insertOffer(ctx, store, logger, offer, &res)
	}

	rawCandidates, err := c.source.FetchCandidates(ctx, year, region.Code)
	if err != nil {
		res.Err = fmt.Errorf("fetch candidates: %w", err)
		return res
	}
	candidates, err := normalize.Candidates(rawCandidates, region.ID)
	if err != nil {
		res.Err = fmt.Errorf("normalize candidates: %w", err)
		return res
	}
	for i := range candidates {
		candidates[i].RegionCode = region.Code
	}
	if err := store.InsertCandidates(ctx, candidates); err != nil {
		metrics.ObserveRecords("candidate", "failed", len(candidates))
		res.Err = fmt.Errorf("insert candidates: %w", err)
		return res
	}
	res.CandidatesInserted = len(candidates)
	metrics.ObserveRecords("candidate", "inserted", len(candidates))
	return res
}

func (c *Coordinator) emitRegionDone(runID string, year int, res RegionResult, elapsed time.Duration) {
	evt := progress.Event{
		RunID:      runID,
		Year:       year,
		Region:     res.Code,
		Stage:      progress.StageRegionDone,
		Offers:     res.OffersInserted,
		Skipped:    res.OffersSkipped,
		Candidates: res.CandidatesInserted,
		Dur:        max(elapsed, 0),
	}
	if res.Err != nil {
		evt.Stage = progress.StageRegionError
		evt.Note = res.Err.Error()
	}
	c.emit(evt)
}

// emit stamps evt with the coordinator clock.
func (c *Coordinator) emit(evt progress.Event) {
	if c.progress == nil {
		return
	}
	evt.TS = c.clock.Now()
	c.progress.Emit(evt)
}

// insertOffer logs and counts a failed insert instead of failing the region.
func (c *Coordinator) insertOffer(ctx context.Context, store admission.Store, logger *zap.Logger, offer admission.Offer, res *RegionResult) {
	if err := store.InsertOffer(ctx, offer); err != nil {
		res.OffersSkipped++
		metrics.ObserveRecords("offer", "skipped", 1)
		logger.Warn("offer insert skipped", zap.Int("offer_id", offer.ID), zap.Error(err))
		return
	}
	res.OffersInserted++
	metrics.ObserveRecords("offer", "inserted", 1)
}

func (c *Coordinator) notify(ctx context.Context, logger *zap.Logger, report Report, failed []string) {
	if c.publisher == nil {
		return
	}
	event := admission.IngestEvent{
		Year:          report.Year,
		RunID:         report.RunID,
		Regions:       len(report.Regions),
		FailedRegions: failed,
		StartedAt:     report.StartedAt,
		FinishedAt:    report.FinishedAt,
	}
	id, err := c.publisher.Publish(ctx, c.cfg.NotifyTopic, event)
	if err != nil {
		logger.Warn("publish ingestion event failed", zap.Error(err))
		return
	}
	logger.Info("ingestion event published", zap.String("message_id", id))
}
