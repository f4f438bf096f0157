// Package state tracks pipeline runs and their per-table manifests in
// SQLite. The warehouse itself is derived and disposable; the state store
// is the durable record of what ran, what succeeded, and how many rows
// each table carried.
package state

import "time"

// RunStatus is the lifecycle status of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// TableStatus is the lifecycle status of one table build within a run.
type TableStatus string

const (
	TableStatusPending TableStatus = "pending"
	TableStatusRunning TableStatus = "running"
	TableStatusSuccess TableStatus = "success"
	TableStatusFailed  TableStatus = "failed"
	TableStatusSkipped TableStatus = "skipped"
)

// Run is one execution of the pipeline.
type Run struct {
	ID          string
	Environment string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// TableRun records the build of one table within a run. Together the
// TableRuns of a run form its manifest: {table: status, row_count,
// rejected_count}.
type TableRun struct {
	ID            string
	RunID         string
	Table         string // fully qualified table name
	Layer         string // raw, base, or star
	Status        TableStatus
	RowCount      int64
	RejectedCount int64
	Error         string
	StartedAt     time.Time
	CompletedAt   *time.Time
	ExecutionMS   int64
}

// Store persists runs and their manifests.
type Store interface {
	// Open opens the store at path. Use ":memory:" for an in-memory store.
	Open(path string) error

	// Close closes the store.
	Close() error

	// Migrate applies pending schema migrations.
	Migrate() error

	// CreateRun starts a new run in the given environment.
	CreateRun(env string) (*Run, error)

	// CompleteRun marks a run finished with the given status.
	CompleteRun(id string, status RunStatus, errMsg string) error

	// GetRun retrieves a run by ID.
	GetRun(id string) (*Run, error)

	// GetLatestRun retrieves the most recent run for an environment, or
	// nil when none exists.
	GetLatestRun(env string) (*Run, error)

	// RecordTableRun records a new table build (filling in ID and start
	// time).
	RecordTableRun(tr *TableRun) error

	// UpdateTableRun updates the status and counters of a table build.
	UpdateTableRun(id string, status TableStatus, rows, rejected int64, errMsg string) error

	// GetTableRunsForRun returns a run's manifest ordered by start time.
	GetTableRunsForRun(runID string) ([]*TableRun, error)
}
