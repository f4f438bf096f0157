// Package pipeline orchestrates the staged builds that move the seven
// source files through the raw, base, and star layers. Tables within a
// stage run in parallel; a failed table never blocks its siblings but
// marks every downstream table skipped until it is fixed and rerun.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lakemill/lakemill/internal/adapter"
	"github.com/lakemill/lakemill/internal/dag"
	"github.com/lakemill/lakemill/internal/dialect"
	"github.com/lakemill/lakemill/internal/plan"
	"github.com/lakemill/lakemill/internal/source"
	"github.com/lakemill/lakemill/internal/star"
	"github.com/lakemill/lakemill/internal/state"
)

// Layer names for the three table groups.
const (
	LayerRaw  = "raw"
	LayerBase = "base"
	LayerStar = "star"
)

// RaggedPolicy decides what happens when a source file contains rows whose
// field count differs from the header.
type RaggedPolicy string

const (
	// RaggedFail rejects the whole file.
	RaggedFail RaggedPolicy = "fail"
	// RaggedSkip drops ragged rows and reports the count.
	RaggedSkip RaggedPolicy = "skip"
)

// CastPolicy decides what happens when a value fails a declared cast.
type CastPolicy string

const (
	// CastReject routes bad rows to a side rejects table and continues.
	CastReject CastPolicy = "reject"
	// CastFail aborts the table build on the first bad value.
	CastFail CastPolicy = "fail"
	// CastNull coerces bad values to NULL and keeps the row.
	CastNull CastPolicy = "null"
)

// Schemas names the warehouse schemas holding the three layers.
type Schemas struct {
	Raw  string
	Base string
	Star string
}

// DefaultSchemas returns the standard raw/base/star schema names.
func DefaultSchemas() Schemas {
	return Schemas{Raw: "raw", Base: "base", Star: "star"}
}

// Config holds pipeline configuration.
type Config struct {
	// SourcesDir is the directory holding the seven source files.
	SourcesDir string
	// StatePath is the path to the SQLite state database.
	StatePath string
	// Environment is the current environment (dev, staging, prod).
	Environment string
	// Adapter is the warehouse connection configuration.
	Adapter adapter.Config
	// Schemas names the layer schemas (defaults to raw/base/star).
	Schemas Schemas
	// OnRagged is the ragged-row policy (defaults to fail).
	OnRagged RaggedPolicy
	// OnCastError is the cast-failure policy (defaults to reject).
	OnCastError CastPolicy
	// Workers bounds intra-stage parallelism (defaults to 4).
	Workers int
	// Logger is the structured logger (uses discard if nil).
	Logger *slog.Logger
}

// nodeKind discriminates the build descriptor attached to a graph node.
type nodeKind int

const (
	kindIngest nodeKind = iota
	kindNormalize
	kindDimension
	kindFact
)

// buildNode is the descriptor stored as graph node data.
type buildNode struct {
	kind  nodeKind
	layer string
	src   source.Source
	plan  *plan.Table
	dim   *star.Dimension
	fact  *star.Fact
}

// Pipeline executes the staged table builds.
type Pipeline struct {
	// Warehouse adapter (lazy initialized)
	db          adapter.Adapter
	dbConfig    adapter.Config
	dbConnected bool
	dbMu        sync.Mutex

	dialect     dialect.Dialect
	logger      *slog.Logger
	store       state.Store
	sourcesDir  string
	environment string
	schemas     Schemas
	onRagged    RaggedPolicy
	onCastError CastPolicy
	workers     int
	graph       *dag.Graph
}

// New creates a pipeline with a lazy warehouse connection. The warehouse is
// only connected when a run starts.
func New(cfg Config) (*Pipeline, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initializing pipeline", "sources_dir", cfg.SourcesDir, "environment", cfg.Environment)

	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate state store: %w", err)
	}

	env := cfg.Environment
	if env == "" {
		env = "dev"
	}

	dbConfig := cfg.Adapter
	if dbConfig.Type == "" {
		dbConfig.Type = "duckdb"
	}

	d, ok := dialect.Get(dbConfig.Type)
	if !ok {
		_ = store.Close()
		return nil, fmt.Errorf("dialect %q not found (registered: %v)", dbConfig.Type, dialect.Names())
	}

	schemas := cfg.Schemas
	if schemas.Raw == "" || schemas.Base == "" || schemas.Star == "" {
		schemas = DefaultSchemas()
	}

	onRagged := cfg.OnRagged
	if onRagged == "" {
		onRagged = RaggedFail
	}
	onCastError := cfg.OnCastError
	if onCastError == "" {
		onCastError = CastReject
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	p := &Pipeline{
		dbConfig:    dbConfig,
		dialect:     d,
		logger:      logger,
		store:       store,
		sourcesDir:  cfg.SourcesDir,
		environment: env,
		schemas:     schemas,
		onRagged:    onRagged,
		onCastError: onCastError,
		workers:     workers,
	}
	p.graph = p.buildGraph()

	return p, nil
}

// ensureConnected lazily connects to the warehouse.
func (p *Pipeline) ensureConnected(ctx context.Context) error {
	p.dbMu.Lock()
	defer p.dbMu.Unlock()

	if p.dbConnected {
		return nil
	}

	p.logger.Debug("connecting to warehouse", "adapter_type", p.dbConfig.Type)

	db, err := adapter.New(p.dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create warehouse adapter: %w", err)
	}
	if err := db.Connect(ctx, p.dbConfig); err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}

	p.db = db
	p.dbConnected = true

	return nil
}

// Close releases all resources.
func (p *Pipeline) Close() error {
	p.logger.Debug("closing pipeline")

	var errs []error
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildGraph wires the fixed table dependency graph: each raw table feeds
// its base table, and the star tables read from their base sources.
func (p *Pipeline) buildGraph() *dag.Graph {
	g := dag.New()

	for _, s := range source.All() {
		g.AddNode(p.rawTable(s.Table), &buildNode{kind: kindIngest, layer: LayerRaw, src: s})
	}
	for _, t := range plan.Catalog() {
		id := p.baseTable(t.Name)
		g.AddNode(id, &buildNode{kind: kindNormalize, layer: LayerBase, plan: t})
		_ = g.AddEdge(p.rawTable(t.Source), id)
	}
	for _, d := range star.Dimensions() {
		id := p.starTable(d.Name)
		g.AddNode(id, &buildNode{kind: kindDimension, layer: LayerStar, dim: d})
		_ = g.AddEdge(p.baseTable(d.Source), id)
	}
	for _, f := range star.Facts() {
		id := p.starTable(f.Name)
		g.AddNode(id, &buildNode{kind: kindFact, layer: LayerStar, fact: f})
		_ = g.AddEdge(p.baseTable(f.Left), id)
		_ = g.AddEdge(p.baseTable(f.Right), id)
	}

	return g
}

// rawTable returns the fully qualified raw-layer table name.
func (p *Pipeline) rawTable(name string) string { return p.schemas.Raw + "." + name }

// baseTable returns the fully qualified base-layer table name.
func (p *Pipeline) baseTable(name string) string { return p.schemas.Base + "." + name }

// starTable returns the fully qualified star-layer table name.
func (p *Pipeline) starTable(name string) string { return p.schemas.Star + "." + name }

// Graph returns the table dependency graph.
func (p *Pipeline) Graph() *dag.Graph { return p.graph }

// Store returns the state store.
func (p *Pipeline) Store() state.Store { return p.store }

// Environment returns the configured environment name.
func (p *Pipeline) Environment() string { return p.environment }

// Tables returns the fully qualified table names in the given layer,
// sorted; all tables when layer is empty.
func (p *Pipeline) Tables(layer string) []string {
	var ids []string
	for _, node := range mustSort(p.graph) {
		bn := node.Data.(*buildNode)
		if layer == "" || bn.layer == layer {
			ids = append(ids, node.ID)
		}
	}
	return ids
}

func mustSort(g *dag.Graph) []*dag.Node {
	sorted, err := g.TopologicalSort()
	if err != nil {
		// The fixed catalog graph is acyclic by construction.
		panic(err)
	}
	return sorted
}

// Run executes every table build in dependency order.
func (p *Pipeline) Run(ctx context.Context) (*state.Run, error) {
	p.logger.Info("starting run", "environment", p.environment)
	return p.execute(ctx, p.graph)
}

// RunSelected executes only the given tables and, optionally, their
// downstream dependents. Upstream tables must already exist in the
// warehouse.
func (p *Pipeline) RunSelected(ctx context.Context, tables []string, downstream bool) (*state.Run, error) {
	p.logger.Info("starting selected run", "environment", p.environment, "tables", tables, "downstream", downstream)

	selected := tables
	if downstream {
		selected = p.graph.Downstream(tables)
	}
	for _, id := range selected {
		if _, ok := p.graph.Node(id); !ok {
			return nil, fmt.Errorf("unknown table %q", id)
		}
	}

	return p.execute(ctx, p.graph.Subgraph(selected))
}

// execute runs all builds in g level by level. Within a level the builds
// run in parallel, bounded by the worker limit; a build failure is
// recorded, poisons its dependents, and lets siblings finish.
func (p *Pipeline) execute(ctx context.Context, g *dag.Graph) (*state.Run, error) {
	if err := p.ensureConnected(ctx); err != nil {
		return nil, err
	}

	levels, err := g.ExecutionLevels()
	if err != nil {
		return nil, err
	}

	run, err := p.store.CreateRun(p.environment)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	p.logger.Debug("created run", "run_id", run.ID)

	var mu sync.Mutex
	failed := make(map[string]bool)

	for _, level := range levels {
		eg, ectx := errgroup.WithContext(ctx)
		eg.SetLimit(p.workers)

		for _, id := range level {
			node, _ := g.Node(id)
			bn := node.Data.(*buildNode)

			// Parents sit in earlier levels, so their entries are settled,
			// but builds launched earlier in this level may still be
			// writing their own failures. Map access is not key-granular,
			// so the check and the skip write stay under the lock.
			mu.Lock()
			var blockedBy string
			for _, parent := range g.Parents(id) {
				if failed[parent] {
					blockedBy = parent
					break
				}
			}
			if blockedBy != "" {
				failed[id] = true
			}
			mu.Unlock()
			if blockedBy != "" {
				_ = p.store.RecordTableRun(&state.TableRun{
					RunID:  run.ID,
					Table:  id,
					Layer:  bn.layer,
					Status: state.TableStatusSkipped,
					Error:  fmt.Sprintf("skipped: upstream table %s failed", blockedBy),
				})
				p.logger.Warn("table skipped", "table", id, "upstream", blockedBy)
				continue
			}

			tr := &state.TableRun{RunID: run.ID, Table: id, Layer: bn.layer, Status: state.TableStatusPending}
			if err := p.store.RecordTableRun(tr); err != nil {
				// Drain the builds already launched in this level before
				// the caller gets the chance to close the warehouse.
				_ = eg.Wait()
				recordErr := fmt.Errorf("failed to record table run: %w", err)
				_ = p.store.CompleteRun(run.ID, state.RunStatusFailed, recordErr.Error())
				return run, recordErr
			}

			eg.Go(func() error {
				_ = p.store.UpdateTableRun(tr.ID, state.TableStatusRunning, 0, 0, "")

				rows, rejected, buildErr := p.buildTable(ectx, bn, id)
				if buildErr != nil {
					p.logger.Error("table build failed", "table", id, "error", buildErr)
					_ = p.store.UpdateTableRun(tr.ID, state.TableStatusFailed, 0, 0, buildErr.Error())
					mu.Lock()
					failed[id] = true
					mu.Unlock()
					// Isolated failure: siblings keep running.
					return ectx.Err()
				}

				p.logger.Info("table built", "table", id, "rows", rows, "rejected", rejected)
				_ = p.store.UpdateTableRun(tr.ID, state.TableStatusSuccess, rows, rejected, "")
				return nil
			})
		}

		if err := eg.Wait(); err != nil {
			_ = p.store.CompleteRun(run.ID, state.RunStatusFailed, err.Error())
			run, _ = p.store.GetRun(run.ID)
			return run, err
		}
	}

	if len(failed) > 0 {
		msg := fmt.Sprintf("%d table(s) failed or were skipped", len(failed))
		p.logger.Info("run failed", "run_id", run.ID, "failed", len(failed))
		_ = p.store.CompleteRun(run.ID, state.RunStatusFailed, msg)
		run, _ = p.store.GetRun(run.ID)
		return run, errors.New(msg)
	}

	p.logger.Info("run completed", "run_id", run.ID)
	_ = p.store.CompleteRun(run.ID, state.RunStatusCompleted, "")
	run, _ = p.store.GetRun(run.ID)
	return run, nil
}

// buildTable dispatches one build to its stage routine.
func (p *Pipeline) buildTable(ctx context.Context, bn *buildNode, table string) (rows, rejected int64, err error) {
	switch bn.kind {
	case kindIngest:
		return p.ingestTable(ctx, bn.src, table)
	case kindNormalize:
		return p.normalizeTable(ctx, bn.plan, table)
	case kindDimension:
		return p.buildDimension(ctx, bn.dim, table)
	case kindFact:
		return p.buildFact(ctx, bn.fact, table)
	default:
		return 0, 0, fmt.Errorf("unknown build kind for table %s", table)
	}
}

// countRows returns SELECT COUNT(*) for a fully qualified table.
func (p *Pipeline) countRows(ctx context.Context, table string) (int64, error) {
	return p.queryCount(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table))
}

// queryCount runs a single-value count query.
func (p *Pipeline) queryCount(ctx context.Context, sql string) (int64, error) {
	rows, err := p.db.Query(ctx, sql)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, fmt.Errorf("failed to scan count: %w", err)
		}
	}
	return count, rows.Err()
}
