package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event records.
type Stage string

// Supported stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageUnitStart   Stage = "UNIT_START"
	StageUnitBlocked Stage = "UNIT_BLOCKED"
	StageSiteDone    Stage = "SITE_DONE"
	StageSiteError   Stage = "SITE_ERROR"
	StageRunDone     Stage = "RUN_DONE"
)

// Event is one milestone of a run.
type Event struct {
	RunID string    `json:"run_id"`
	TS    time.Time `json:"ts"`
	Stage Stage     `json:"stage"`
	Site  string    `json:"site,omitempty"`
	// Unit is the city or name prefix for unit stages.
	Unit    string `json:"unit,omitempty"`
	Page    int    `json:"page,omitempty"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
	// Records is the running record count for site and run stages.
	Records int           `json:"records,omitempty"`
	Dur     time.Duration `json:"dur,omitempty"`
	Note    string        `json:"note,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageUnitStart, StageUnitBlocked:
		if e.Site == "" || e.Unit == "" {
			return fmt.Errorf("%s requires site and unit", e.Stage)
		}
	case StageSiteDone, StageSiteError:
		if e.Site == "" {
			return fmt.Errorf("%s requires site", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
