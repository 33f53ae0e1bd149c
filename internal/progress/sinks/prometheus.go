package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/admissions-crawler/internal/progress"
)

// PrometheusSink tracks in-flight regions and region/run wall time.
type PrometheusSink struct {
	runsStarted    prometheus.Counter
	regionsRunning prometheus.Gauge
	regionRuntime  *prometheus.HistogramVec
	runRuntime     prometheus.Histogram
	lastRunRecords *prometheus.GaugeVec

	mu      sync.Mutex
	running map[string]struct{}
}

// NewPrometheusSink registers the collectors against reg, or the default registerer when nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "admissions_ingest_runs_started_total",
			Help: "Ingestion runs started.",
		}),
		regionsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "admissions_ingest_regions_running",
			Help: "Region units currently in flight.",
		}),
		regionRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "admissions_ingest_region_duration_seconds",
			Help:    "Wall time per region unit, by result.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"result"}),
		runRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "admissions_ingest_run_duration_seconds",
			Help:    "Wall time per ingestion run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		lastRunRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "admissions_ingest_last_run_records",
			Help: "Records written by the most recent completed run, by kind.",
		}, []string{"kind"}),
		running: make(map[string]struct{}),
	}
	for _, c := range []prometheus.Collector{
		s.runsStarted, s.regionsRunning, s.regionRuntime, s.runRuntime, s.lastRunRecords,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
		case progress.StageRunDone:
			if evt.Dur > 0 {
				s.runRuntime.Observe(evt.Dur.Seconds())
			}
			s.lastRunRecords.WithLabelValues("offer").Set(float64(evt.Offers))
			s.lastRunRecords.WithLabelValues("candidate").Set(float64(evt.Candidates))
		case progress.StageRegionStart:
			if s.track(evt, true) {
				s.regionsRunning.Inc()
			}
		case progress.StageRegionDone, progress.StageRegionError:
			result := "ok"
			if evt.Stage == progress.StageRegionError {
				result = "failed"
			}
			if evt.Dur > 0 {
				s.regionRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
			}
			if s.track(evt, false) {
				s.regionsRunning.Dec()
			}
		}
	}
	return nil
}

// track records a region as started or finished and reports whether the
// running set changed.
func (s *PrometheusSink) track(evt progress.Event, start bool) bool {
	key := evt.RunID + "/" + evt.Region
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[key]
	if start {
		if ok {
			return false
		}
		s.running[key] = struct{}{}
		return true
	}
	if !ok {
		return false
	}
	delete(s.running, key)
	return true
}

// Close is a no-op.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
