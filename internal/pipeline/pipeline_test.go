package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakemill/lakemill/internal/adapter"
	"github.com/lakemill/lakemill/internal/state"
	"github.com/lakemill/lakemill/internal/testutil"
)

// newTestPipeline builds a pipeline over an in-memory warehouse and state
// store. mutate can adjust the config before construction.
func newTestPipeline(t *testing.T, mutate func(*Config)) *Pipeline {
	t.Helper()

	cfg := Config{
		SourcesDir:  filepath.Join("testdata", "sources"),
		StatePath:   ":memory:",
		Environment: "test",
		Adapter:     adapter.Config{Type: "duckdb", Path: ":memory:"},
		Logger:      testutil.NewTestLogger(t),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	p, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// copySources copies the fixture files into a temp dir so a test can mutate
// them without touching testdata.
func copySources(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	src := filepath.Join("testdata", "sources")
	entries, err := os.ReadDir(src)
	require.NoError(t, err)
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(src, e.Name()))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, e.Name()), data, 0644))
	}
	return dir
}

// manifestByTable indexes a run's table runs by fully qualified name.
func manifestByTable(t *testing.T, p *Pipeline, runID string) map[string]*state.TableRun {
	t.Helper()

	tableRuns, err := p.Store().GetTableRunsForRun(runID)
	require.NoError(t, err)

	byTable := make(map[string]*state.TableRun, len(tableRuns))
	for _, tr := range tableRuns {
		byTable[tr.Table] = tr
	}
	return byTable
}

func warehouseCount(t *testing.T, p *Pipeline, sql string) int64 {
	t.Helper()
	count, err := p.queryCount(context.Background(), sql)
	require.NoError(t, err)
	return count
}

func TestRun_FullPipeline(t *testing.T) {
	p := newTestPipeline(t, nil)

	run, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, state.RunStatusCompleted, run.Status)

	byTable := manifestByTable(t, p, run.ID)
	require.Len(t, byTable, 19)

	wantRows := map[string]int64{
		"raw.student_info":           4,
		"raw.courses":                3,
		"raw.student_registration":   4,
		"raw.assessments":            5,
		"raw.student_assessment":     5,
		"raw.vle":                    3,
		"raw.student_vle":            4,
		"base.student":               4,
		"base.course":                3,
		"base.registration":          4,
		"base.assessment":            5,
		"base.student_assessment":    4,
		"base.vle_site":              3,
		"base.student_vle":           4,
		"star.dim_student":           3,
		"star.dim_course":            3,
		"star.dim_assessment":        5,
		"star.fact_assessment_score": 4,
		"star.fact_vle_interactions": 4,
	}
	for table, want := range wantRows {
		tr := byTable[table]
		require.NotNil(t, tr, "missing manifest entry for %s", table)
		assert.Equal(t, state.TableStatusSuccess, tr.Status, "table %s", table)
		assert.Equal(t, want, tr.RowCount, "row count for %s", table)
	}

	// The unparseable score is the only rejected row.
	assert.Equal(t, int64(1), byTable["base.student_assessment"].RejectedCount)

	// Row conservation: every raw row lands in the base table or its
	// rejects.
	assert.Equal(t,
		byTable["raw.student_assessment"].RowCount,
		byTable["base.student_assessment"].RowCount+byTable["base.student_assessment"].RejectedCount)
}

func TestRun_FactCarriesAssessmentAttributes(t *testing.T) {
	p := newTestPipeline(t, nil)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	count := warehouseCount(t, p, `
		SELECT COUNT(*) FROM star.fact_assessment_score
		WHERE id_assessment = 1752 AND id_student = 11391
		  AND date_submitted = 18 AND is_banked = 0 AND score = 78.0
		  AND code_module = 'AAA' AND code_presentation = '2013J'
		  AND assessment_type = 'TMA' AND weight = 10`)
	assert.Equal(t, int64(1), count)
}

func TestRun_OrphanSiteKeepsEventRow(t *testing.T) {
	p := newTestPipeline(t, nil)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	// The click on the unknown site survives with NULL site attributes.
	count := warehouseCount(t, p, `
		SELECT COUNT(*) FROM star.fact_vle_interactions
		WHERE id_site = 999999 AND code_module IS NULL AND activity_type IS NULL`)
	assert.Equal(t, int64(1), count)
}

func TestRun_RejectRouting(t *testing.T) {
	p := newTestPipeline(t, nil)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	count := warehouseCount(t, p, `
		SELECT COUNT(*) FROM base.student_assessment_rejects
		WHERE reject_column = 'score' AND reject_value = 'noscore'`)
	assert.Equal(t, int64(1), count)

	// The rejected row never reaches the typed table.
	count = warehouseCount(t, p, `
		SELECT COUNT(*) FROM base.student_assessment WHERE id_assessment = 24290`)
	assert.Equal(t, int64(0), count)
}

func TestRun_EmptyNumericBecomesNull(t *testing.T) {
	p := newTestPipeline(t, nil)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	// Empty date_unregistration is absence, not a cast fault.
	count := warehouseCount(t, p, `
		SELECT COUNT(*) FROM base.registration WHERE date_unregistration IS NULL`)
	assert.Equal(t, int64(3), count)

	count = warehouseCount(t, p, `
		SELECT COUNT(*) FROM base.assessment WHERE date IS NULL`)
	assert.Equal(t, int64(1), count)
}

func TestRun_StudentDriftResolvedLastWriteWins(t *testing.T) {
	p := newTestPipeline(t, nil)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	// Student 11391 appears in 2013J and 2014J with different regions; the
	// later presentation wins and the dimension has one row per student.
	count := warehouseCount(t, p, `
		SELECT COUNT(*) FROM star.dim_student WHERE id_student = 11391`)
	assert.Equal(t, int64(1), count)

	count = warehouseCount(t, p, `
		SELECT COUNT(*) FROM star.dim_student
		WHERE id_student = 11391 AND region = 'Scotland'`)
	assert.Equal(t, int64(1), count)
}

func TestRun_Idempotent(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	first, err := p.Run(ctx)
	require.NoError(t, err)

	// Snapshot one table per layer so the rerun can be compared row for
	// row, not just by counts.
	snapshotted := []string{"raw.student_info", "base.student_assessment", "star.fact_assessment_score"}
	for _, table := range snapshotted {
		snap := "snap_" + strings.ReplaceAll(table, ".", "_")
		require.NoError(t, p.db.Exec(ctx,
			fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s", snap, table)))
	}

	second, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.RunStatusCompleted, second.Status)

	firstManifest := manifestByTable(t, p, first.ID)
	secondManifest := manifestByTable(t, p, second.ID)
	require.Len(t, secondManifest, len(firstManifest))
	for table, tr := range firstManifest {
		again := secondManifest[table]
		require.NotNil(t, again, "missing %s in second run", table)
		assert.Equal(t, tr.RowCount, again.RowCount, "row count drifted for %s", table)
		assert.Equal(t, tr.RejectedCount, again.RejectedCount, "rejected count drifted for %s", table)
	}

	// The rebuilt tables hold exactly the same rows as before.
	for _, table := range snapshotted {
		snap := "snap_" + strings.ReplaceAll(table, ".", "_")
		diff := warehouseCount(t, p, fmt.Sprintf(`
			SELECT COUNT(*) FROM (
				(SELECT * FROM %s EXCEPT ALL SELECT * FROM %s)
				UNION ALL
				(SELECT * FROM %s EXCEPT ALL SELECT * FROM %s)
			)`, table, snap, snap, table))
		assert.Equal(t, int64(0), diff, "contents drifted for %s", table)
	}
}

func TestRun_FailureIsolation(t *testing.T) {
	dir := copySources(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "assessments.csv")))

	p := newTestPipeline(t, func(cfg *Config) { cfg.SourcesDir = dir })

	run, err := p.Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, state.RunStatusFailed, run.Status)

	byTable := manifestByTable(t, p, run.ID)

	assert.Equal(t, state.TableStatusFailed, byTable["raw.assessments"].Status)
	assert.Equal(t, state.TableStatusSkipped, byTable["base.assessment"].Status)
	assert.Equal(t, state.TableStatusSkipped, byTable["star.dim_assessment"].Status)
	assert.Equal(t, state.TableStatusSkipped, byTable["star.fact_assessment_score"].Status)

	// Unrelated tables build normally.
	for _, table := range []string{
		"raw.courses", "base.course", "star.dim_course",
		"base.student_vle", "star.fact_vle_interactions",
	} {
		assert.Equal(t, state.TableStatusSuccess, byTable[table].Status, "table %s", table)
	}
}

func TestRun_RaggedFailPolicy(t *testing.T) {
	dir := copySources(t)
	f, err := os.OpenFile(filepath.Join(dir, "courses.csv"), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("AAA,2014B,300,99\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	p := newTestPipeline(t, func(cfg *Config) { cfg.SourcesDir = dir })

	run, err := p.Run(context.Background())
	require.Error(t, err)

	byTable := manifestByTable(t, p, run.ID)
	assert.Equal(t, state.TableStatusFailed, byTable["raw.courses"].Status)
	assert.Contains(t, byTable["raw.courses"].Error, "ragged")
	assert.Equal(t, state.TableStatusSkipped, byTable["base.course"].Status)
	assert.Equal(t, state.TableStatusSkipped, byTable["star.dim_course"].Status)
	assert.Equal(t, state.TableStatusSuccess, byTable["raw.student_info"].Status)
}

func TestRun_RaggedSkipPolicy(t *testing.T) {
	dir := copySources(t)
	f, err := os.OpenFile(filepath.Join(dir, "courses.csv"), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("AAA,2014B,300,99\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	p := newTestPipeline(t, func(cfg *Config) {
		cfg.SourcesDir = dir
		cfg.OnRagged = RaggedSkip
	})

	run, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.RunStatusCompleted, run.Status)

	byTable := manifestByTable(t, p, run.ID)
	assert.Equal(t, state.TableStatusSuccess, byTable["raw.courses"].Status)
	assert.Equal(t, int64(3), byTable["raw.courses"].RowCount)
	assert.Equal(t, int64(1), byTable["raw.courses"].RejectedCount)
}

func TestRun_CastFailPolicy(t *testing.T) {
	p := newTestPipeline(t, func(cfg *Config) { cfg.OnCastError = CastFail })

	run, err := p.Run(context.Background())
	require.Error(t, err)

	byTable := manifestByTable(t, p, run.ID)
	assert.Equal(t, state.TableStatusFailed, byTable["base.student_assessment"].Status)
	assert.Contains(t, byTable["base.student_assessment"].Error, "cast")
	assert.Equal(t, state.TableStatusSkipped, byTable["star.fact_assessment_score"].Status)
	assert.Equal(t, state.TableStatusSuccess, byTable["base.student"].Status)
}

func TestRun_CastNullPolicy(t *testing.T) {
	p := newTestPipeline(t, func(cfg *Config) { cfg.OnCastError = CastNull })

	run, err := p.Run(context.Background())
	require.NoError(t, err)

	byTable := manifestByTable(t, p, run.ID)
	// All five rows kept, bad score coerced to NULL.
	assert.Equal(t, int64(5), byTable["base.student_assessment"].RowCount)
	assert.Equal(t, int64(0), byTable["base.student_assessment"].RejectedCount)

	count := warehouseCount(t, p, `
		SELECT COUNT(*) FROM base.student_assessment WHERE score IS NULL`)
	assert.Equal(t, int64(1), count)

	assert.Equal(t, int64(5), byTable["star.fact_assessment_score"].RowCount)
}

func TestRunSelected_Downstream(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	_, err := p.Run(ctx)
	require.NoError(t, err)

	run, err := p.RunSelected(ctx, []string{"base.student_assessment"}, true)
	require.NoError(t, err)

	byTable := manifestByTable(t, p, run.ID)
	require.Len(t, byTable, 2)
	assert.Equal(t, state.TableStatusSuccess, byTable["base.student_assessment"].Status)
	assert.Equal(t, state.TableStatusSuccess, byTable["star.fact_assessment_score"].Status)
}

func TestRunSelected_UnknownTable(t *testing.T) {
	p := newTestPipeline(t, nil)

	_, err := p.RunSelected(context.Background(), []string{"base.nope"}, false)
	assert.Error(t, err)
}

func TestGraphShape(t *testing.T) {
	p := newTestPipeline(t, nil)
	g := p.Graph()

	assert.Equal(t, 19, g.NodeCount())

	// Facts depend on both their left and right base tables.
	parents := g.Parents("star.fact_assessment_score")
	assert.ElementsMatch(t, []string{"base.student_assessment", "base.assessment"}, parents)

	parents = g.Parents("star.dim_student")
	assert.ElementsMatch(t, []string{"base.student"}, parents)

	levels, err := g.ExecutionLevels()
	require.NoError(t, err)
	require.Len(t, levels, 3)
	assert.Len(t, levels[0], 7)
	assert.Len(t, levels[1], 7)
	assert.Len(t, levels[2], 5)
}

func TestTables(t *testing.T) {
	p := newTestPipeline(t, nil)

	raw := p.Tables(LayerRaw)
	require.Len(t, raw, 7)
	for _, id := range raw {
		assert.Contains(t, id, "raw.")
	}

	assert.Len(t, p.Tables(""), 19)
	assert.Len(t, p.Tables(LayerStar), 5)
}

// A base-layer build failing while the scheduler is still marking skips
// from an upstream raw failure exercises both writers of the failure
// bookkeeping in the same level.
func TestRun_SameLevelFailureAndSkip(t *testing.T) {
	dir := copySources(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "assessments.csv")))

	for i := 0; i < 10; i++ {
		p := newTestPipeline(t, func(cfg *Config) {
			cfg.SourcesDir = dir
			cfg.OnCastError = CastFail
			cfg.Workers = 8
		})

		run, err := p.Run(context.Background())
		require.Error(t, err)

		byTable := manifestByTable(t, p, run.ID)
		assert.Equal(t, state.TableStatusFailed, byTable["raw.assessments"].Status)
		assert.Equal(t, state.TableStatusSkipped, byTable["base.assessment"].Status)
		assert.Equal(t, state.TableStatusFailed, byTable["base.student_assessment"].Status)
		assert.Equal(t, state.TableStatusSkipped, byTable["star.fact_assessment_score"].Status)
		assert.Equal(t, state.TableStatusSuccess, byTable["base.student"].Status)
	}
}

// recordFailStore delegates to a real store but starts refusing new table
// runs after failAfter calls, and counts every status update it sees.
type recordFailStore struct {
	state.Store

	mu        sync.Mutex
	records   int
	failAfter int
	updates   []state.TableStatus
}

func (s *recordFailStore) RecordTableRun(tr *state.TableRun) error {
	s.mu.Lock()
	s.records++
	n := s.records
	s.mu.Unlock()
	if n > s.failAfter {
		return errors.New("state store unavailable")
	}
	return s.Store.RecordTableRun(tr)
}

func (s *recordFailStore) UpdateTableRun(id string, status state.TableStatus, rows, rejected int64, errMsg string) error {
	s.mu.Lock()
	s.updates = append(s.updates, status)
	s.mu.Unlock()
	return s.Store.UpdateTableRun(id, status, rows, rejected, errMsg)
}

func TestRun_StoreFailureDrainsInFlightBuilds(t *testing.T) {
	p := newTestPipeline(t, func(cfg *Config) { cfg.Workers = 8 })
	fs := &recordFailStore{Store: p.store, failAfter: 3}
	p.store = fs

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record table run")

	// Every build that started had finished before Run returned; nothing
	// is left racing the store or the warehouse connection.
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var running, finished int
	for _, status := range fs.updates {
		if status == state.TableStatusRunning {
			running++
		} else {
			finished++
		}
	}
	assert.Equal(t, 3, running)
	assert.Equal(t, running, finished)
}

func TestRun_MissingSourcesDir(t *testing.T) {
	p := newTestPipeline(t, func(cfg *Config) { cfg.SourcesDir = filepath.Join(t.TempDir(), "nope") })

	run, err := p.Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, state.RunStatusFailed, run.Status)

	// Every raw table failed, everything downstream skipped.
	byTable := manifestByTable(t, p, run.ID)
	for table, tr := range byTable {
		switch tr.Layer {
		case LayerRaw:
			assert.Equal(t, state.TableStatusFailed, tr.Status, "table %s", table)
		default:
			assert.Equal(t, state.TableStatusSkipped, tr.Status, "table %s", table)
		}
	}
}
