package catalog

import (
	"context"

	"stubgen/internal/symbol"
)

// Run is one job's reconciliation outcome as persisted.
type Run struct {
	Job          string
	Output       string
	Artifact     string
	Digest       string
	Inventory    symbol.Set
	Dispositions []symbol.Disposition
}

// JobSummary is a catalog row with disposition counts.
type JobSummary struct {
	Job       string
	Output    string
	Artifact  string
	Digest    string
	Inventory int
	Satisfied int
	Forwarded int
	Stubbed   int
}

// Catalog persists reconciliation snapshots for later inspection.
type Catalog interface {
	// SaveRun replaces the stored snapshot of run.Job.
	SaveRun(ctx context.Context, run Run) error

	// LoadRun retrieves the stored snapshot of a job.
	LoadRun(ctx context.Context, job string) (*Run, error)

	// FindDisposition retrieves one entry's disposition.
	FindDisposition(ctx context.Context, job string, name symbol.Name) (*symbol.Disposition, error)

	// Jobs lists every stored job in name order.
	Jobs(ctx context.Context) ([]JobSummary, error)

	Close() error
}
