package snapshot

import (
	"math"
	"time"

	"github.com/oklog/ulid/v2"
)

// SchemaVersion is the version written into every snapshot.
const SchemaVersion = "1.0.0"

// Failure describes why an item has no successful result.
type Failure struct {
	Error    string `json:"error"`
	Attempts int    `json:"attempts"`
}

// Stats is the processing_stats section of a snapshot.
type Stats struct {
	RunID                  string     `json:"run_id"`
	TotalImages            int        `json:"total_images"`
	TimestampStart         time.Time  `json:"timestamp_start"`
	LastUpdated            time.Time  `json:"last_updated"`
	TotalTimeSeconds       *float64   `json:"total_time_seconds,omitempty"`
	AvgTimePerImageSeconds *float64   `json:"avg_time_per_image_seconds,omitempty"`
	TimestampEnd           *time.Time `json:"timestamp_end,omitempty"`
}

// Snapshot is the persisted record of a batch run.
//
// Results maps item identity to the result text or an error description.
// Failures repeats the failed entries with their attempt counts.
type Snapshot struct {
	SchemaVersion string             `json:"schema_version"`
	Stats         Stats              `json:"processing_stats"`
	Results       map[string]string  `json:"results"`
	Failures      map[string]Failure `json:"failures,omitempty"`
}

// New creates an empty snapshot for a run of total items starting at start.
func New(total int, start time.Time) *Snapshot {
	return &Snapshot{
		SchemaVersion: SchemaVersion,
		Stats: Stats{
			RunID:          ulid.Make().String(),
			TotalImages:    total,
			TimestampStart: start,
			LastUpdated:    start,
		},
		Results:  make(map[string]string),
		Failures: make(map[string]Failure),
	}
}

// Set records the result text for id. A nil failure clears any failure
// previously recorded for id.
func (s *Snapshot) Set(id, text string, failure *Failure, now time.Time) {
	s.Results[id] = text
	if failure != nil {
		s.Failures[id] = *failure
	} else {
		delete(s.Failures, id)
	}
	s.Stats.LastUpdated = now
}

// Finish adds the final timing statistics.
func (s *Snapshot) Finish(end time.Time) {
	total := end.Sub(s.Stats.TimestampStart).Seconds()
	totalRounded := round2(total)
	s.Stats.TotalTimeSeconds = &totalRounded

	avg := 0.0
	if s.Stats.TotalImages > 0 {
		avg = round2(total / float64(s.Stats.TotalImages))
	}
	s.Stats.AvgTimePerImageSeconds = &avg
	s.Stats.TimestampEnd = &end
	s.Stats.LastUpdated = end
}

// Completed returns the number of items with a recorded result.
func (s *Snapshot) Completed() int {
	return len(s.Results)
}

// FailedIDs returns the identities of failed items.
func (s *Snapshot) FailedIDs() []string {
	ids := make([]string, 0, len(s.Failures))
	for id := range s.Failures {
		ids = append(ids, id)
	}
	return ids
}

func round2(v float64) float64 {
	const hundred = 100
	return math.Round(v*hundred) / hundred
}
