package ingest

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// RegionResult is the outcome of one region unit.
type RegionResult struct {
	Code               string
	OffersInserted     int
	OffersSkipped      int
	CandidatesInserted int
	Err                error
}

// Report summarizes one IngestYear run.
type Report struct {
	Year       int
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Regions    []RegionResult
}

// Failed returns the codes of regions whose unit failed, in index order.
func (r Report) Failed() []string {
	failed := []string{}
	for _, res := range r.Regions {
		if res.Err != nil {
			failed = append(failed, res.Code)
		}
	}
	return failed
}

// Err combines every region failure, or returns nil when all regions succeeded.
func (r Report) Err() error {
	var err error
	for _, res := range r.Regions {
		if res.Err != nil {
			err = multierr.Append(err, fmt.Errorf("region %s: %w", res.Code, res.Err))
		}
	}
	return err
}
