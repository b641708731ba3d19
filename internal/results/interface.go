package results

import (
	"context"
	"time"

	"codeberg.org/mutker/sigjitter/internal/report"
)

// Recorder accepts finished run reports. Every field of a report is written or
// none is.
type Recorder interface {
	Record(ctx context.Context, r *report.RunReport) error
	Close() error
}

// Store is a Recorder that can also be queried, which is what a dashboard
// needs to chart stored runs.
type Store interface {
	Recorder

	// Batches returns every batch, newest first.
	Batches(ctx context.Context) ([]Batch, error)

	// Runs returns the runs of one batch in the order they were recorded.
	Runs(ctx context.Context, uuid string) ([]*report.RunReport, error)

	// Run returns a single run by batch and name.
	Run(ctx context.Context, uuid, name string) (*report.RunReport, error)

	IsEnabled() bool
}

// Repository defines the interface for run data storage
type Repository interface {
	Insert(ctx context.Context, r *report.RunReport) error
	Batches(ctx context.Context) ([]Batch, error)
	Runs(ctx context.Context, uuid string) ([]*report.RunReport, error)
	Run(ctx context.Context, uuid, name string) (*report.RunReport, error)
	Close() error
}

// Batch summarises the runs sharing one uuid and timestamp.
type Batch struct {
	UUID      string
	Timestamp time.Time
	Runs      int
	Passed    bool
}
