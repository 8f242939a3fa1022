// Package progress carries run milestones from the crawl workers to
// observers (logs, metrics) without ever blocking the pipeline.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageRunDone      Stage = "RUN_DONE"
	StageProcessStart Stage = "PROCESS_START"
	StageProcessDone  Stage = "PROCESS_DONE"
	StageProcessError Stage = "PROCESS_ERROR"
	StageScan         Stage = "ATTACHMENT_SCANNED"
)

// Event is a single audit-run milestone.
type Event struct {
	// RunID identifies the audit run in its 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Term is the parliamentary term being audited.
	Term int
	// TreeID locates the process or attachment in the document hierarchy.
	TreeID string
	// Filename is set for attachment scans.
	Filename string
	// Risk is the final attachment score for StageScan events.
	Risk int
	// Bytes is the downloaded attachment size for StageScan events.
	Bytes int64
	// Dur is the wall time of the unit of work.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate rejects events that no sink could attribute.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageProcessStart, StageProcessDone, StageProcessError, StageScan:
		if e.TreeID == "" {
			return errors.New("event requires tree id")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
