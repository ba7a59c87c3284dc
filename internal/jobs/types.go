package jobs

import "time"

type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Done reports whether the status is final.
func (s Status) Done() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped
}

// Source names what started a run.
type Source string

const (
	SourceManual   Source = "manual"
	SourceSchedule Source = "schedule"
)

// AssetResult is the outcome of rebuilding one asset within a run.
type AssetResult struct {
	RelativePath string `json:"relative_path"`
	Status       Status `json:"status"`
	Entries      int    `json:"entries"`
	Patched      int    `json:"patched"`
	OutputPath   string `json:"output_path,omitempty"`
	Error        string `json:"error,omitempty"`
	// StartedAt is taken before the asset's overlay is read; an overlay
	// saved after it is newer than the rebuilt copy.
	StartedAt time.Time `json:"started_at,omitzero"`
}

// RebuildRun is one pass over the project's assets.
type RebuildRun struct {
	ID        string        `json:"id"`
	Source    Source        `json:"source"`
	Status    Status        `json:"status"`
	Assets    []AssetResult `json:"assets"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Counts tallies the asset results by status.
func (r *RebuildRun) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, a := range r.Assets {
		counts[a.Status]++
	}
	return counts
}
