package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s := NewSQLiteStore(nil)
	require.NoError(t, s.Open(":memory:"))
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_NotOpened(t *testing.T) {
	s := NewSQLiteStore(nil)
	_, err := s.CreateRun("dev")
	assert.Error(t, err)
	assert.Error(t, s.Migrate())
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)

	run, err := s.CreateRun("dev")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	require.NoError(t, s.CompleteRun(run.ID, RunStatusCompleted, ""))

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.Error)
}

func TestCompleteRun_WithError(t *testing.T) {
	s := newTestStore(t)

	run, err := s.CreateRun("dev")
	require.NoError(t, err)

	require.NoError(t, s.CompleteRun(run.ID, RunStatusFailed, "2 table(s) failed"))

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "2 table(s) failed", got.Error)
}

func TestCompleteRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.CompleteRun("missing", RunStatusCompleted, ""))
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun("missing")
	assert.Error(t, err)
}

func TestGetLatestRun(t *testing.T) {
	s := newTestStore(t)

	// No runs yet
	run, err := s.GetLatestRun("dev")
	require.NoError(t, err)
	assert.Nil(t, run)

	first, err := s.CreateRun("dev")
	require.NoError(t, err)
	_ = first

	second, err := s.CreateRun("dev")
	require.NoError(t, err)

	_, err = s.CreateRun("prod")
	require.NoError(t, err)

	latest, err := s.GetLatestRun("dev")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, "dev", latest.Environment)
}

func TestTableRunLifecycle(t *testing.T) {
	s := newTestStore(t)

	run, err := s.CreateRun("dev")
	require.NoError(t, err)

	tr := &TableRun{
		RunID:  run.ID,
		Table:  "base.student",
		Layer:  "base",
		Status: TableStatusPending,
	}
	require.NoError(t, s.RecordTableRun(tr))
	assert.NotEmpty(t, tr.ID)

	require.NoError(t, s.UpdateTableRun(tr.ID, TableStatusSuccess, 120, 3, ""))

	manifest, err := s.GetTableRunsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, manifest, 1)

	got := manifest[0]
	assert.Equal(t, "base.student", got.Table)
	assert.Equal(t, "base", got.Layer)
	assert.Equal(t, TableStatusSuccess, got.Status)
	assert.Equal(t, int64(120), got.RowCount)
	assert.Equal(t, int64(3), got.RejectedCount)
	require.NotNil(t, got.CompletedAt)
}

func TestTableRun_FailedWithError(t *testing.T) {
	s := newTestStore(t)

	run, err := s.CreateRun("dev")
	require.NoError(t, err)

	tr := &TableRun{RunID: run.ID, Table: "raw.vle", Layer: "raw", Status: TableStatusPending}
	require.NoError(t, s.RecordTableRun(tr))
	require.NoError(t, s.UpdateTableRun(tr.ID, TableStatusFailed, 0, 0, "vle.csv: 2 ragged row(s)"))

	manifest, err := s.GetTableRunsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, manifest, 1)
	assert.Equal(t, TableStatusFailed, manifest[0].Status)
	assert.Equal(t, "vle.csv: 2 ragged row(s)", manifest[0].Error)
}

func TestUpdateTableRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.UpdateTableRun("missing", TableStatusSuccess, 0, 0, ""))
}

func TestGetTableRunsForRun_ManyTables(t *testing.T) {
	s := newTestStore(t)

	run, err := s.CreateRun("dev")
	require.NoError(t, err)

	tables := []string{"raw.courses", "raw.vle", "base.course", "star.dim_course"}
	for _, name := range tables {
		tr := &TableRun{RunID: run.ID, Table: name, Layer: "raw", Status: TableStatusPending}
		require.NoError(t, s.RecordTableRun(tr))
	}

	manifest, err := s.GetTableRunsForRun(run.ID)
	require.NoError(t, err)
	assert.Len(t, manifest, len(tables))
}

func TestOpenFile(t *testing.T) {
	path := t.TempDir() + "/state.db"

	s := NewSQLiteStore(nil)
	require.NoError(t, s.Open(path))
	require.NoError(t, s.Migrate())

	run, err := s.CreateRun("dev")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopen and verify persistence
	s2 := NewSQLiteStore(nil)
	require.NoError(t, s2.Open(path))
	require.NoError(t, s2.Migrate())
	defer func() { _ = s2.Close() }()

	got, err := s2.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
}
