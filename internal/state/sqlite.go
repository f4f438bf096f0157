package state

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // sqlite driver
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite state store instance.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Single connection: the store is a low-traffic single writer, and an
	// in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	s.logger.Debug("state store opened", "path", path)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// --- Run operations ---

// CreateRun starts a new pipeline run.
func (s *SQLiteStore) CreateRun(env string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &Run{
		ID:          generateID(),
		Environment: env,
		Status:      RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (id, environment, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Environment, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return run, nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(id string, status RunStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}

	result, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, now, errorPtr, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &Run{}
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := s.db.QueryRow(
		`SELECT id, environment, status, started_at, completed_at, error FROM runs WHERE id = ?`,
		id,
	).Scan(&run.ID, &run.Environment, &run.Status, &run.StartedAt, &completedAt, &errMsg)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	return run, nil
}

// GetLatestRun retrieves the most recent run for an environment.
func (s *SQLiteStore) GetLatestRun(env string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &Run{}
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := s.db.QueryRow(
		`SELECT id, environment, status, started_at, completed_at, error
		 FROM runs WHERE environment = ? ORDER BY started_at DESC LIMIT 1`,
		env,
	).Scan(&run.ID, &run.Environment, &run.Status, &run.StartedAt, &completedAt, &errMsg)

	if err == sql.ErrNoRows {
		return nil, nil // no runs yet
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	return run, nil
}

// --- Table run operations ---

// RecordTableRun records a new table build.
func (s *SQLiteStore) RecordTableRun(tr *TableRun) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if tr.ID == "" {
		tr.ID = generateID()
	}
	tr.StartedAt = time.Now().UTC()

	_, err := s.db.Exec(
		`INSERT INTO table_runs (id, run_id, table_name, layer, status, row_count, rejected_count, error, started_at, execution_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.RunID, tr.Table, tr.Layer, tr.Status, tr.RowCount, tr.RejectedCount, tr.Error, tr.StartedAt, tr.ExecutionMS,
	)
	if err != nil {
		return fmt.Errorf("failed to record table run: %w", err)
	}
	return nil
}

// UpdateTableRun updates the status and counters of a table build.
func (s *SQLiteStore) UpdateTableRun(id string, status TableStatus, rows, rejected int64, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}

	var startedAt time.Time
	if err := s.db.QueryRow(`SELECT started_at FROM table_runs WHERE id = ?`, id).Scan(&startedAt); err != nil {
		return fmt.Errorf("failed to get table run start time: %w", err)
	}
	executionMS := now.Sub(startedAt).Milliseconds()

	result, err := s.db.Exec(
		`UPDATE table_runs SET status = ?, row_count = ?, rejected_count = ?, completed_at = ?, error = ?, execution_ms = ? WHERE id = ?`,
		status, rows, rejected, now, errorPtr, executionMS, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update table run: %w", err)
	}

	rowsUpdated, _ := result.RowsAffected()
	if rowsUpdated == 0 {
		return fmt.Errorf("table run not found: %s", id)
	}
	return nil
}

// GetTableRunsForRun returns a run's manifest ordered by start time.
func (s *SQLiteStore) GetTableRunsForRun(runID string) ([]*TableRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, table_name, layer, status, row_count, rejected_count, error, started_at, completed_at, execution_ms
		 FROM table_runs WHERE run_id = ? ORDER BY started_at, table_name`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get table runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tableRuns []*TableRun
	for rows.Next() {
		tr := &TableRun{}
		var completedAt sql.NullTime
		var errMsg sql.NullString

		err := rows.Scan(&tr.ID, &tr.RunID, &tr.Table, &tr.Layer, &tr.Status, &tr.RowCount,
			&tr.RejectedCount, &errMsg, &tr.StartedAt, &completedAt, &tr.ExecutionMS)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table run: %w", err)
		}

		if completedAt.Valid {
			tr.CompletedAt = &completedAt.Time
		}
		if errMsg.Valid {
			tr.Error = errMsg.String
		}
		tableRuns = append(tableRuns, tr)
	}

	return tableRuns, rows.Err()
}

// Ensure SQLiteStore implements the Store interface
var _ Store = (*SQLiteStore)(nil)
