package jobs

import (
	"context"
	"time"
)

// Store keeps the rebuild history.
type Store interface {
	UpsertRun(ctx context.Context, run *RebuildRun) error
	// LoadRuns returns up to limit runs, newest first. limit <= 0 means all.
	LoadRuns(ctx context.Context, limit int) ([]*RebuildRun, error)
	// LastSuccess is when the asset was last rebuilt successfully.
	LastSuccess(ctx context.Context, relativePath string) (time.Time, bool, error)
}
