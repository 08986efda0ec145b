package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aevon-lab/cohort/internal/core/aggregation"
	"github.com/aevon-lab/cohort/internal/core/config"
	coreerrors "github.com/aevon-lab/cohort/internal/core/errors"
	"github.com/aevon-lab/cohort/internal/core/row"
	"github.com/aevon-lab/cohort/internal/core/storage"
	"github.com/aevon-lab/cohort/internal/core/transform"
	"github.com/aevon-lab/cohort/internal/metrics"
	"github.com/aevon-lab/cohort/internal/report"
)

const (
	defaultWorkerCount   = 4
	defaultSourceTimeout = 30 * time.Second
	defaultSinkTimeout   = 30 * time.Second
	defaultSinkKind      = "console"
	recordRunTimeout     = 5 * time.Second
)

// RunnerParameter controls how pipelines are executed.
type RunnerParameter struct {
	WorkerCount   int // pipelines run concurrently by RunAll
	Shards        int // aggregation goroutines per pipeline; 1 is single-threaded
	SourceTimeout time.Duration
	SinkTimeout   time.Duration
	DefaultSink   string
	Connections   map[string]config.ConnectionConfig
}

// ParametersFromConfig maps the app config onto runner parameters.
func ParametersFromConfig(cfg *config.Config) RunnerParameter {
	return RunnerParameter{
		WorkerCount:   cfg.Runner.WorkerCount,
		Shards:        cfg.Runner.Shards,
		SourceTimeout: cfg.Runner.SourceTimeoutDuration(),
		SinkTimeout:   cfg.Runner.SinkTimeoutDuration(),
		DefaultSink:   cfg.Output.DefaultSink,
		Connections:   cfg.Connections,
	}
}

func (p RunnerParameter) normalized() RunnerParameter {
	n := p
	if n.WorkerCount <= 0 {
		n.WorkerCount = defaultWorkerCount
	}
	if n.Shards <= 0 {
		n.Shards = 1
	}
	if n.SourceTimeout <= 0 {
		n.SourceTimeout = defaultSourceTimeout
	}
	if n.SinkTimeout <= 0 {
		n.SinkTimeout = defaultSinkTimeout
	}
	if n.DefaultSink == "" {
		n.DefaultSink = defaultSinkKind
	}
	return n
}

// RunOptions tunes a single run.
type RunOptions struct {
	SkipEmit bool // compute the rows without writing them to the sink
}

// Result is the outcome of one pipeline run.
type Result struct {
	Run     storage.Run
	Columns []string
	Rows    []row.Row
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records every run on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = rec }
}

// WithRunStore records every run in store.
func WithRunStore(store storage.RunStore) Option {
	return func(r *Runner) { r.runs = store }
}

// WithStdout sets where console sinks write. Defaults to os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(r *Runner) { r.stdout = w }
}

// WithTable makes t readable by memory sources that name table.
func WithTable(name string, t *storage.Table) Option {
	return func(r *Runner) { r.tables[name] = t }
}

// Runner executes pipeline definitions: source, transforms, aggregation,
// sort and limit, then the sink. Each run owns its accumulator state, so
// independent pipelines can run concurrently.
type Runner struct {
	repo    Repository
	params  RunnerParameter
	metrics *metrics.Recorder
	runs    storage.RunStore
	stdout  io.Writer

	mu      sync.Mutex
	tables  map[string]*storage.Table // memory sources, by table name
	outputs map[string]*storage.Table // latest result of each pipeline
	sinks   map[string]*storage.Table // memory sinks, by pipeline
}

// NewRunner creates a runner over the pipelines in repo.
func NewRunner(repo Repository, params RunnerParameter, opts ...Option) *Runner {
	r := &Runner{
		repo:    repo,
		params:  params.normalized(),
		stdout:  os.Stdout,
		tables:  make(map[string]*storage.Table),
		outputs: make(map[string]*storage.Table),
		sinks:   make(map[string]*storage.Table),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Pipelines lists the loaded definitions.
func (r *Runner) Pipelines(ctx context.Context) ([]Definition, error) {
	return r.repo.List(ctx)
}

// Output returns the latest result of pipeline name, or nil when it has not
// run yet.
func (r *Runner) Output(name string) *storage.Table {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outputs[name]
}

// MemorySink returns the table a memory sink of pipeline name writes to.
func (r *Runner) MemorySink(name string) *storage.Table {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.sinks[name]
	if !ok {
		t = storage.NewTable(nil, nil)
		r.sinks[name] = t
	}
	return t
}

// Run executes pipeline name. Upstream pipelines that have not produced
// output yet run first.
func (r *Runner) Run(ctx context.Context, name string, opts RunOptions) (*Result, error) {
	def, err := r.repo.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	chain, err := r.upstreamChain(ctx, *def)
	if err != nil {
		return nil, err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if r.Output(chain[i].Name) != nil {
			continue
		}
		slog.Info("[Runner] Running upstream pipeline", "pipeline", def.Name, "upstream", chain[i].Name)
		if _, err := r.execute(ctx, chain[i], RunOptions{}); err != nil {
			return nil, fmt.Errorf("upstream pipeline %q: %w", chain[i].Name, err)
		}
	}
	return r.execute(ctx, *def, opts)
}

// upstreamChain returns def's dependencies, nearest first.
func (r *Runner) upstreamChain(ctx context.Context, def Definition) ([]Definition, error) {
	seen := map[string]bool{def.Name: true}
	var chain []Definition
	for dep := def.DependsOn(); dep != ""; {
		if seen[dep] {
			return nil, &coreerrors.SpecError{Pipeline: def.Name, Field: "source.pipeline", Reason: fmt.Sprintf("dependency cycle through %q", dep)}
		}
		seen[dep] = true
		up, err := r.repo.Get(ctx, dep)
		if err != nil {
			if errors.Is(err, coreerrors.ErrPipelineNotFound) {
				return nil, &coreerrors.SpecError{Pipeline: def.Name, Field: "source.pipeline", Reason: fmt.Sprintf("unknown pipeline %q", dep)}
			}
			return nil, err
		}
		chain = append(chain, *up)
		dep = up.DependsOn()
	}
	return chain, nil
}

// RunAll runs every pipeline. Independent pipelines run concurrently, bounded
// by WorkerCount; a pipeline reading another's output runs after it. A failed
// pipeline fails its dependents without running them. The first error is
// returned along with every result that was produced.
func (r *Runner) RunAll(ctx context.Context) ([]*Result, error) {
	defs, err := r.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	levels, err := dependencyLevels(defs)
	if err != nil {
		return nil, err
	}

	slog.Info("[Runner] Running all pipelines",
		"pipelines", len(defs),
		"levels", len(levels),
		"workers", r.params.WorkerCount,
	)

	var (
		mu       sync.Mutex
		results  []*Result
		failed   = map[string]bool{}
		firstErr error
	)
	for _, level := range levels {
		g := new(errgroup.Group)
		g.SetLimit(r.params.WorkerCount)
		for _, def := range level {
			mu.Lock()
			upstreamFailed := failed[def.DependsOn()]
			mu.Unlock()
			if dep := def.DependsOn(); dep != "" && upstreamFailed {
				err := fmt.Errorf("pipeline %q skipped: upstream pipeline %q failed", def.Name, dep)
				slog.Warn("[Runner] Skipping pipeline", "pipeline", def.Name, "upstream", dep)
				mu.Lock()
				failed[def.Name] = true
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				continue
			}
			g.Go(func() error {
				res, err := r.execute(ctx, def, RunOptions{})
				mu.Lock()
				defer mu.Unlock()
				if res != nil {
					results = append(results, res)
				}
				if err != nil {
					failed[def.Name] = true
					return fmt.Errorf("pipeline %q: %w", def.Name, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return results, firstErr
}

// dependencyLevels groups defs so that every pipeline comes after the one it
// reads from. Pipelines within a level are independent.
func dependencyLevels(defs []Definition) ([][]Definition, error) {
	byName := make(map[string]Definition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}

	depth := make(map[string]int, len(defs))
	const visiting = -1
	var visit func(name string) (int, error)
	visit = func(name string) (int, error) {
		if d, ok := depth[name]; ok {
			if d == visiting {
				return 0, &coreerrors.SpecError{Pipeline: name, Field: "source.pipeline", Reason: "dependency cycle"}
			}
			return d, nil
		}
		dep := byName[name].DependsOn()
		if dep == "" {
			depth[name] = 0
			return 0, nil
		}
		if _, ok := byName[dep]; !ok {
			return 0, &coreerrors.SpecError{Pipeline: name, Field: "source.pipeline", Reason: fmt.Sprintf("unknown pipeline %q", dep)}
		}
		depth[name] = visiting
		d, err := visit(dep)
		if err != nil {
			return 0, err
		}
		depth[name] = d + 1
		return d + 1, nil
	}

	var levels [][]Definition
	for _, d := range defs {
		n, err := visit(d.Name)
		if err != nil {
			return nil, err
		}
		for len(levels) <= n {
			levels = append(levels, nil)
		}
		levels[n] = append(levels[n], d)
	}
	for _, level := range levels {
		sort.Slice(level, func(i, j int) bool { return level[i].Name < level[j].Name })
	}
	return levels, nil
}

// execute runs one pipeline and records the outcome. The returned Result is
// non-nil even when the run fails so callers can see partial progress.
func (r *Runner) execute(ctx context.Context, def Definition, opts RunOptions) (*Result, error) {
	res := &Result{Run: storage.Run{
		ID:          uuid.NewString(),
		Pipeline:    def.Name,
		Fingerprint: def.Fingerprint,
		StartedAt:   time.Now().UTC(),
	}}

	slog.Info("[Runner] Pipeline started", "pipeline", def.Name, "run_id", res.Run.ID)

	err := r.evaluate(ctx, def, res)
	if err == nil && !opts.SkipEmit {
		var n int
		n, err = r.emit(ctx, def, res.Columns, res.Rows)
		res.Run.RowsEmitted = int64(n)
	}
	if err != nil {
		err = coreerrors.AsSpecError(def.Name, err)
	}

	res.Run.FinishedAt = time.Now().UTC()
	r.finish(ctx, res, err)
	return res, err
}

// evaluate reads, transforms and aggregates the pipeline's rows into res.
func (r *Runner) evaluate(ctx context.Context, def Definition, res *Result) error {
	desc := r.sourceDescriptor(def)

	src, err := storage.OpenSource(ctx, desc)
	if err != nil {
		var srcErr *coreerrors.SourceError
		if errors.As(err, &srcErr) {
			return err
		}
		return &coreerrors.SourceError{Source: desc.Kind, Reason: "open failed", Err: err}
	}
	defer func() {
		if err := src.Close(); err != nil {
			slog.Warn("[Runner] Failed to close source", "pipeline", def.Name, "error", err)
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, desc.Timeout)
	defer cancel()

	it, err := src.Fetch(fetchCtx)
	if err != nil {
		return err
	}
	defer it.Close() //nolint:errcheck

	chain, err := transform.Compile(def.Transforms, it.Columns())
	if err != nil {
		return err
	}
	plan, err := aggregation.Compile(def.Spec, chain.Columns())
	if err != nil {
		return err
	}
	if err := aggregation.ValidateSort(def.OrderBy, plan.Columns()); err != nil {
		return err
	}

	counted := &countingIterator{Iterator: it}
	input := chain.Wrap(counted)

	var out []aggregation.AggregatedRow
	if r.params.Shards > 1 {
		out, err = plan.AggregateSharded(input, r.params.Shards)
	} else {
		out, err = plan.Aggregate(input)
	}
	res.Run.RowsRead = counted.n
	if err != nil {
		return err
	}
	res.Run.Groups = int64(len(out))

	aggregation.Sort(out, def.OrderBy)
	out = aggregation.Limit(out, def.Limit)

	res.Columns = plan.Columns()
	res.Rows = aggregation.Rows(out)

	r.mu.Lock()
	r.outputs[def.Name] = storage.NewTable(res.Columns, res.Rows)
	r.mu.Unlock()
	return nil
}

// emit writes rows to the pipeline's sink under the sink timeout.
func (r *Runner) emit(ctx context.Context, def Definition, columns []string, rows []row.Row) (int, error) {
	target := r.targetDescriptor(def)

	sink, err := storage.OpenSink(ctx, target)
	if err != nil {
		return 0, &coreerrors.SinkError{Sink: target.Kind, Reason: "open failed", Err: err}
	}
	emitter := report.NewEmitter(target.Kind, sink)

	sinkCtx, cancel := context.WithTimeout(ctx, target.Timeout)
	defer cancel()

	n, err := emitter.Emit(sinkCtx, columns, rows)
	if closeErr := emitter.Close(n); err == nil {
		err = closeErr
	}
	return n, err
}

func (r *Runner) finish(ctx context.Context, res *Result, runErr error) {
	run := &res.Run
	run.Status = storage.RunSucceeded
	if runErr != nil {
		run.Status = storage.RunFailed
		run.Error = runErr.Error()
	}
	duration := run.FinishedAt.Sub(run.StartedAt)

	if runErr != nil {
		slog.Error("[Runner] Pipeline failed",
			"pipeline", run.Pipeline,
			"run_id", run.ID,
			"rows_read", run.RowsRead,
			"rows_emitted", run.RowsEmitted,
			"duration", duration,
			"error", runErr,
		)
	} else {
		slog.Info("[Runner] Pipeline complete",
			"pipeline", run.Pipeline,
			"run_id", run.ID,
			"rows_read", run.RowsRead,
			"groups", run.Groups,
			"rows_emitted", run.RowsEmitted,
			"duration", duration,
		)
	}

	r.metrics.ObserveRun(metrics.Run{
		Pipeline:    run.Pipeline,
		Status:      run.Status,
		RowsRead:    run.RowsRead,
		Groups:      run.Groups,
		RowsEmitted: run.RowsEmitted,
		Duration:    duration,
	})

	if r.runs == nil {
		return
	}
	// Record even when the run was cancelled.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordRunTimeout)
	defer cancel()
	if err := r.runs.RecordRun(recordCtx, *run); err != nil {
		slog.Warn("[Runner] Failed to record run", "pipeline", run.Pipeline, "run_id", run.ID, "error", err)
	}
}

func (r *Runner) sourceDescriptor(def Definition) storage.SourceDescriptor {
	d := def.Source
	if d.Timeout <= 0 {
		d.Timeout = r.params.SourceTimeout
	}
	if conn, ok := r.params.Connections[d.Connection]; ok && d.Connection != "" {
		d.DSN = conn.DSN
		d.MaxOpenConns = conn.MaxOpenConns
		d.MaxIdleConns = conn.MaxIdleConns
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch d.Kind {
	case "pipeline":
		d.Memory = r.outputs[d.Pipeline]
	case "memory":
		d.Memory = r.tables[d.Table]
	}
	return d
}

func (r *Runner) targetDescriptor(def Definition) storage.TargetDescriptor {
	d := def.Sink
	if d.Kind == "" {
		d.Kind = r.params.DefaultSink
	}
	if d.Timeout <= 0 {
		d.Timeout = r.params.SinkTimeout
	}
	if conn, ok := r.params.Connections[d.Connection]; ok && d.Connection != "" {
		d.DSN = conn.DSN
		d.MaxOpenConns = conn.MaxOpenConns
		d.MaxIdleConns = conn.MaxIdleConns
	}
	switch d.Kind {
	case "console":
		if d.Writer == nil {
			d.Writer = r.stdout
		}
	case "memory":
		t := r.MemorySink(def.Name)
		t.Reset()
		d.Memory = t
	}
	return d
}

// countingIterator counts the rows the source produced.
type countingIterator struct {
	row.Iterator
	n int64
}

func (c *countingIterator) Next() bool {
	if c.Iterator.Next() {
		c.n++
		return true
	}
	return false
}
