package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageRegionStart Stage = "REGION_START"
	StageRegionDone  Stage = "REGION_DONE"
	StageRegionError Stage = "REGION_ERROR"
)

// Event is one ingestion milestone.
type Event struct {
	RunID string
	Year  int
	// TS is the emitter's clock reading.
	TS    time.Time
	Stage Stage
	// Region is empty for run-level stages.
	Region     string
	Offers     int
	Skipped    int
	Candidates int
	// Dur is the elapsed time of the region or run on completion stages.
	Dur  time.Duration
	Note string
}

// Validate rejects events the sinks cannot attribute.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.Year <= 0 {
		return errors.New("year must be > 0")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageRegionStart, StageRegionDone, StageRegionError:
		if e.Region == "" {
			return fmt.Errorf("%s requires region", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
