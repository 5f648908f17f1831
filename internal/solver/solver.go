package solver

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/catalog"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/constraint"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/diagnostic"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/execution"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/events"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/logging"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/registry"
)

// Solver matches registered diagnostics against the current data catalogs.
type Solver struct {
	providers  *registry.ProviderRegistry
	catalogs   ports.CatalogSource
	scratchDir string
	logger     ports.Logger
	metrics    ports.MetricsCollector
	tracer     ports.Tracer
	events     ports.EventPublisher
}

// Option configures a Solver.
type Option func(*Solver)

// WithSolverLogger injects a logger into the solver.
func WithSolverLogger(logger ports.Logger) Option {
	return func(s *Solver) {
		s.logger = logger
	}
}

// WithSolverMetrics injects a metrics collector.
func WithSolverMetrics(metrics ports.MetricsCollector) Option {
	return func(s *Solver) {
		s.metrics = metrics
	}
}

// WithSolverTracer injects a tracer.
func WithSolverTracer(tracer ports.Tracer) Option {
	return func(s *Solver) {
		s.tracer = tracer
	}
}

// WithSolverEvents injects an event publisher.
func WithSolverEvents(events ports.EventPublisher) Option {
	return func(s *Solver) {
		s.events = events
	}
}

// WithScratchDir sets the directory executions write into before their results
// are relocated.
func WithScratchDir(dir string) Option {
	return func(s *Solver) {
		s.scratchDir = dir
	}
}

// New constructs a Solver over the registered providers.
func New(providers *registry.ProviderRegistry, catalogs ports.CatalogSource, opts ...Option) *Solver {
	s := &Solver{
		providers: providers,
		catalogs:  catalogs,
		logger:    logging.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Solve returns every candidate the registered diagnostics support. filters
// restrict the diagnostics by substring of their "provider/diagnostic" slug.
// Catalogs are loaded once per call.
func (s *Solver) Solve(ctx context.Context, filters ...string) ([]Candidate, error) {
	ctx = constraint.WithLogger(ctx, s.logger)
	if s.tracer != nil {
		var span ports.Span
		ctx, span = s.tracer.StartSpan(ctx, "solver.solve")
		defer span.End()
	}

	entries := s.providers.Diagnostics(filters...)
	catalogs, err := s.loadCatalogs(ctx, entries)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, e := range entries {
		candidates, err := SolveExecutions(ctx, catalogs, e.Diagnostic, e.Provider)
		if err != nil {
			return nil, err
		}
		s.logger.Debug(ctx, "solved diagnostic",
			"diagnostic", diagnostic.FullSlug(e.Provider, e.Diagnostic), "candidates", len(candidates))
		out = append(out, candidates...)
	}
	return out, nil
}

func (s *Solver) loadCatalogs(ctx context.Context, entries []registry.Entry) (map[catalog.SourceType]*catalog.DataCatalog, error) {
	catalogs := map[catalog.SourceType]*catalog.DataCatalog{}
	for _, e := range entries {
		for _, st := range e.Diagnostic.DataRequirements().SourceTypes() {
			if _, ok := catalogs[st]; ok {
				continue
			}
			cat, err := s.catalogs.Catalog(ctx, st)
			if err != nil {
				return nil, fmt.Errorf("load %s catalog: %w", st, err)
			}
			catalogs[st] = cat
		}
	}
	return catalogs, nil
}

// RunOptions controls a SolveRequiredExecutions pass.
type RunOptions struct {
	// DryRun decides what would run without creating executions.
	DryRun bool
	// Timeout bounds the final Join. Zero or less waits indefinitely.
	Timeout time.Duration
	// Filters restrict the diagnostics considered.
	Filters []string
}

// Summary counts what a pass decided.
type Summary struct {
	Candidates int
	Scheduled  int
	Skipped    int
}

// SolveRequiredExecutions solves every diagnostic, creates an execution for each
// group whose cached result is missing or stale, dispatches it to executor and
// waits for all of them. Groups are created on first sight and marked dirty
// until one of their executions succeeds.
func (s *Solver) SolveRequiredExecutions(ctx context.Context, store ports.ExecutionStore, executor ports.Executor, opts RunOptions) (Summary, error) {
	events.Emit(ctx, s.events, ports.EventSolveStarted, "dry_run", opts.DryRun)

	candidates, err := s.Solve(ctx, opts.Filters...)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Candidates: len(candidates)}
	seen := map[string]struct{}{}
	for _, c := range candidates {
		job, scheduled, err := s.schedule(ctx, store, c, opts.DryRun, seen)
		if err != nil {
			return summary, err
		}
		if !scheduled {
			summary.Skipped++
			s.count(ctx, "skip")
			continue
		}
		summary.Scheduled++
		s.count(ctx, "run")
		if job != nil {
			executor.Run(ctx, *job)
		}
	}

	if !opts.DryRun && executor != nil {
		if err := executor.Join(ctx, opts.Timeout); err != nil {
			return summary, err
		}
	}

	events.Emit(ctx, s.events, ports.EventSolveCompleted,
		"candidates", summary.Candidates, "scheduled", summary.Scheduled, "skipped", summary.Skipped)
	return summary, nil
}

// schedule decides whether c must run. The group lookup, the decision and the
// execution insert share one transaction. On a dry run nothing is written and a
// job that would run is reported as scheduled but nil. A group already seen in
// this pass is skipped.
func (s *Solver) schedule(ctx context.Context, store ports.ExecutionStore, c Candidate, dryRun bool, seen map[string]struct{}) (*ports.Job, bool, error) {
	diagnosticID, key, hash := c.DiagnosticID(), c.Key(), c.Hash()
	logger := s.logger.With("diagnostic", diagnosticID, "group_key", key)

	seenKey := diagnosticID + "\x00" + key
	if _, dup := seen[seenKey]; dup {
		return nil, false, nil
	}
	seen[seenKey] = struct{}{}

	if dryRun {
		shouldRun, err := s.wouldRun(ctx, store, diagnosticID, key, hash)
		if err != nil {
			return nil, false, fmt.Errorf("schedule %s %s: %w", diagnosticID, key, err)
		}
		if !shouldRun {
			events.Emit(ctx, s.events, ports.EventExecutionSkipped, "diagnostic", diagnosticID, "group_key", key)
		}
		return nil, shouldRun, nil
	}

	var job *ports.Job
	shouldRun := false
	err := store.InTransaction(ctx, func(tx ports.ExecutionStore) error {
		group, created, err := tx.GetOrCreateGroup(ctx, diagnosticID, key, c.Datasets.Selectors())
		if err != nil {
			return err
		}
		if created {
			logger.Debug(ctx, "created execution group", "group_id", group.ID)
		}

		latest, err := tx.LatestExecution(ctx, group.ID)
		if err != nil {
			return err
		}
		if !execution.ShouldRun(*group, latest, hash) {
			logger.Debug(ctx, "execution group is current", "group_id", group.ID)
			events.Emit(ctx, s.events, ports.EventExecutionSkipped, "diagnostic", diagnosticID, "group_key", key)
			return nil
		}
		shouldRun = true

		exec := &execution.Execution{
			GroupID:        group.ID,
			DatasetHash:    hash,
			OutputFragment: execution.NewOutputFragment(c.Provider.Slug(), c.Diagnostic.Slug(), hash),
		}
		if err := tx.CreateExecution(ctx, exec, c.DatasetSlugs()); err != nil {
			return err
		}
		if err := tx.SetGroupDirty(ctx, group.ID, true); err != nil {
			return err
		}

		job = &ports.Job{
			Diagnostic: c.Diagnostic,
			Execution:  exec,
			Definition: diagnostic.ExecutionDefinition{
				Provider:        c.Provider.Slug(),
				Diagnostic:      c.Diagnostic.Slug(),
				Key:             key,
				Datasets:        c.Datasets,
				OutputFragment:  exec.OutputFragment,
				OutputDirectory: filepath.Join(s.scratchDir, filepath.FromSlash(exec.OutputFragment)),
			},
		}
		logger.Info(ctx, "scheduled execution", "execution_id", exec.ID, "dataset_hash", hash)
		events.Emit(ctx, s.events, ports.EventExecutionCreated,
			"diagnostic", diagnosticID, "group_key", key, "execution_id", exec.ID)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("schedule %s %s: %w", diagnosticID, key, err)
	}
	return job, shouldRun, nil
}

// wouldRun answers the cache question without writing: an unknown group would be
// created and run.
func (s *Solver) wouldRun(ctx context.Context, store ports.ExecutionStore, diagnosticID, key, hash string) (bool, error) {
	logger := s.logger.With("diagnostic", diagnosticID, "group_key", key)
	group, err := store.FindGroup(ctx, diagnosticID, key)
	if err != nil {
		return false, err
	}
	if group == nil {
		logger.Info(ctx, "would run execution", "state", string(execution.StateNew))
		return true, nil
	}
	latest, err := store.LatestExecution(ctx, group.ID)
	if err != nil {
		return false, err
	}
	if !execution.ShouldRun(*group, latest, hash) {
		logger.Debug(ctx, "execution group is current", "group_id", group.ID)
		return false, nil
	}
	logger.Info(ctx, "would run execution", "group_id", group.ID, "state", string(execution.StateOf(*group, latest)))
	return true, nil
}

func (s *Solver) count(ctx context.Context, decision string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncCounter(ctx, ports.MetricCandidatesTotal, map[string]string{"decision": decision})
}
