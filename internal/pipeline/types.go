// Package pipeline is the execution engine: it drives paginated extraction,
// applies transforms once over the extracted set, delivers ordered batches to
// a target and always tears down the adapters it created.
//
// # Run lifecycle
//
//	start -> extract -> transform -> post-extract hook -> pre-send hook -> load -> complete
//	                 \___________________ any failure ___________________/ -> error
//
// Cleanup runs after every run regardless of outcome. A single run is strictly
// sequential: pages are fetched one at a time and batches are delivered one at
// a time. Independent runs may execute concurrently through RunAll.
package pipeline

import (
	"time"

	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/ajitpratap0/relay/pkg/retry"
)

// RateLimiting paces adapter calls within one run
type RateLimiting struct {
	// RequestsPerSecond <= 0 disables pacing
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" mapstructure:"requests_per_second"`
}

// Hooks are caller callbacks invoked synchronously at fixed points of a run
type Hooks struct {
	// Logging receives every event of the run
	Logging func(models.Event)
	// OnLoad observes the transformed data after extraction
	OnLoad func(records []models.Record)
	// OnBeforeSend runs only when a target exists. A non-nil slice replaces
	// the data to deliver; returning false halts the run before delivery.
	OnBeforeSend func(records []models.Record) ([]models.Record, bool)
	// OnUpload observes every batch the target accepted
	OnUpload func(batch []models.Record)
}

// Pipeline is a single execution unit. Exactly one of Source and Data must be
// set; Target is optional.
type Pipeline struct {
	Name   string
	Source *models.Connector
	Target *models.Connector
	// Data is an inline dataset used instead of a source
	Data          []models.Record
	ErrorHandling retry.Policy
	RateLimiting  RateLimiting
	Hooks         Hooks
}

// Status is the terminal state of a run
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Result summarizes one run
type Result struct {
	RunID    string
	Pipeline string
	Status   Status
	// Extracted is the number of records after the cap was applied
	Extracted int
	// Delivered is the number of records in accepted batches
	Delivered      int
	Batches        int
	SkippedBatches int
	Pages          int
	// StopReason explains why extraction ended
	StopReason string
	TimedOut   bool
	// Halted is set when the pre-send hook stopped delivery
	Halted   bool
	Duration time.Duration
	// Err holds the failure of the run, including failures swallowed by a
	// fail-soft policy
	Err error
}
