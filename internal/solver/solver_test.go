package solver

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/catalog"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/diagnostic"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/execution"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/registry"
	referrors "github.com/skoriche/Climate-REF4CMIP-sub000/pkg/errors"
)

type stubDiagnostic struct {
	slug string
	reqs diagnostic.Requirements
}

func (d stubDiagnostic) Slug() string                              { return d.slug }
func (d stubDiagnostic) Name() string                              { return d.slug }
func (d stubDiagnostic) DataRequirements() diagnostic.Requirements { return d.reqs }
func (d stubDiagnostic) Run(_ context.Context, def diagnostic.ExecutionDefinition) (diagnostic.ExecutionResult, error) {
	return diagnostic.ExecutionResult{Definition: def, Successful: true}, nil
}

type staticCatalogs map[catalog.SourceType][]catalog.Record

func (s staticCatalogs) Catalog(_ context.Context, st catalog.SourceType) (*catalog.DataCatalog, error) {
	return catalog.New(st, s[st]), nil
}

type memoryStore struct {
	mu         sync.Mutex
	groups     []*execution.Group
	executions []*execution.Execution
}

func (m *memoryStore) InTransaction(_ context.Context, fn func(tx ports.ExecutionStore) error) error {
	return fn(m)
}

func (m *memoryStore) GetOrCreateGroup(_ context.Context, diagnosticID, key string, selectors map[string]map[string]string) (*execution.Group, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groups {
		if g.DiagnosticID == diagnosticID && g.Key == key {
			return g, false, nil
		}
	}
	g := &execution.Group{ID: uint(len(m.groups) + 1), DiagnosticID: diagnosticID, Key: key, Dirty: true, Selectors: selectors}
	m.groups = append(m.groups, g)
	return g, true, nil
}

func (m *memoryStore) FindGroup(_ context.Context, diagnosticID, key string) (*execution.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groups {
		if g.DiagnosticID == diagnosticID && g.Key == key {
			return g, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) LatestExecution(_ context.Context, groupID uint) (*execution.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *execution.Execution
	for _, e := range m.executions {
		if e.GroupID == groupID {
			latest = e
		}
	}
	return latest, nil
}

func (m *memoryStore) CreateExecution(_ context.Context, exec *execution.Execution, _ []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec.ID = uint(len(m.executions) + 1)
	m.executions = append(m.executions, exec)
	return nil
}

func (m *memoryStore) SetGroupDirty(_ context.Context, groupID uint, dirty bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groups {
		if g.ID == groupID {
			g.Dirty = dirty
		}
	}
	return nil
}

// complete marks every pending execution successful, as a result handler would.
func (m *memoryStore) complete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	ok := true
	for _, e := range m.executions {
		if e.Pending() {
			e.Successful = &ok
			for _, g := range m.groups {
				if g.ID == e.GroupID {
					g.Dirty = false
				}
			}
		}
	}
}

type recordingExecutor struct {
	jobs   []ports.Job
	joined int
}

func (r *recordingExecutor) Run(_ context.Context, job ports.Job) { r.jobs = append(r.jobs, job) }

func (r *recordingExecutor) Join(context.Context, time.Duration) error {
	r.joined++
	return nil
}

func cmip6(path string, facets map[string]string) catalog.Record {
	start := time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2100, time.December, 31, 0, 0, 0, 0, time.UTC)
	return catalog.NewRecord(path, facets, &start, &end)
}

func scenarioRecords() []catalog.Record {
	return []catalog.Record{
		cmip6("/tas_119.nc", map[string]string{"variable_id": "tas", "experiment_id": "ssp119", "instance_id": "tas.ssp119"}),
		cmip6("/tas_126.nc", map[string]string{"variable_id": "tas", "experiment_id": "ssp126", "instance_id": "tas.ssp126"}),
		cmip6("/pr_119.nc", map[string]string{"variable_id": "pr", "experiment_id": "ssp119", "instance_id": "pr.ssp119"}),
	}
}

func tasByExperiment() diagnostic.DataRequirement {
	return diagnostic.DataRequirement{
		SourceType: catalog.SourceCMIP6,
		Filters:    []catalog.FacetFilter{catalog.Include(map[string][]string{"variable_id": {"tas"}})},
		GroupBy:    []string{"experiment_id"},
	}
}

func newSolver(t *testing.T, catalogs staticCatalogs, diags ...diagnostic.Diagnostic) *Solver {
	t.Helper()
	p, err := diagnostic.NewProvider("example", "1.0", diags...)
	require.NoError(t, err)
	reg := registry.NewProviderRegistry()
	require.NoError(t, reg.Register(p))
	return New(reg, catalogs, WithScratchDir(t.TempDir()))
}

func keys(candidates []Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Key()
	}
	sort.Strings(out)
	return out
}

func TestSolveGroupsFilteredRecords(t *testing.T) {
	t.Parallel()

	diag := stubDiagnostic{slug: "global-mean", reqs: diagnostic.AllOf(tasByExperiment())}
	s := newSolver(t, staticCatalogs{catalog.SourceCMIP6: scenarioRecords()}, diag)

	candidates, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, []string{"cmip6[experiment_id=ssp119]", "cmip6[experiment_id=ssp126]"}, keys(candidates))
	for _, c := range candidates {
		assert.Equal(t, "example/global-mean", c.DiagnosticID())
		assert.Len(t, c.Datasets[catalog.SourceCMIP6].Records, 1)
	}
	assert.Equal(t, []string{"tas.ssp119"}, candidates[0].DatasetSlugs())
}

func TestSolveFiltersDiagnostics(t *testing.T) {
	t.Parallel()

	a := stubDiagnostic{slug: "global-mean", reqs: diagnostic.AllOf(tasByExperiment())}
	b := stubDiagnostic{slug: "enso", reqs: diagnostic.AllOf(tasByExperiment())}
	s := newSolver(t, staticCatalogs{catalog.SourceCMIP6: scenarioRecords()}, a, b)

	candidates, err := s.Solve(context.Background(), "enso")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	for _, c := range candidates {
		assert.Equal(t, "example/enso", c.DiagnosticID())
	}
}

func TestSolveAllOfJoinsSourceTypes(t *testing.T) {
	t.Parallel()

	obs := []catalog.Record{
		catalog.NewRecord("/hadisst.nc", map[string]string{"source_id": "HadISST", "variable_id": "ts"}, nil, nil),
		catalog.NewRecord("/ersst.nc", map[string]string{"source_id": "ERSST", "variable_id": "ts"}, nil, nil),
	}
	reqs := diagnostic.AllOf(
		tasByExperiment(),
		diagnostic.DataRequirement{SourceType: catalog.SourceObs4MIPs, GroupBy: []string{"source_id"}},
	)
	s := newSolver(t, staticCatalogs{catalog.SourceCMIP6: scenarioRecords(), catalog.SourceObs4MIPs: obs},
		stubDiagnostic{slug: "sst", reqs: reqs})

	candidates, err := s.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"cmip6[experiment_id=ssp119]+obs4mips[source_id=ERSST]",
		"cmip6[experiment_id=ssp119]+obs4mips[source_id=HadISST]",
		"cmip6[experiment_id=ssp126]+obs4mips[source_id=ERSST]",
		"cmip6[experiment_id=ssp126]+obs4mips[source_id=HadISST]",
	}, keys(candidates))
}

func TestSolveAllOfWithEmptySideYieldsNothing(t *testing.T) {
	t.Parallel()

	reqs := diagnostic.AllOf(
		tasByExperiment(),
		diagnostic.DataRequirement{SourceType: catalog.SourceObs4MIPs, GroupBy: []string{"source_id"}},
	)
	s := newSolver(t, staticCatalogs{catalog.SourceCMIP6: scenarioRecords()}, stubDiagnostic{slug: "sst", reqs: reqs})

	candidates, err := s.Solve(context.Background())
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestSolveAnyOfConcatenatesAlternatives(t *testing.T) {
	t.Parallel()

	prOnly := diagnostic.DataRequirement{
		SourceType: catalog.SourceCMIP6,
		Filters:    []catalog.FacetFilter{catalog.Include(map[string][]string{"variable_id": {"pr"}})},
		GroupBy:    []string{"variable_id", "experiment_id"},
	}
	reqs := diagnostic.AnyOf([]diagnostic.DataRequirement{tasByExperiment()}, []diagnostic.DataRequirement{prOnly})
	s := newSolver(t, staticCatalogs{catalog.SourceCMIP6: scenarioRecords()}, stubDiagnostic{slug: "mixed", reqs: reqs})

	candidates, err := s.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"cmip6[experiment_id=ssp119,variable_id=pr]",
		"cmip6[experiment_id=ssp119]",
		"cmip6[experiment_id=ssp126]",
	}, keys(candidates))
}

func TestSolveRejectsEmptyGroupBy(t *testing.T) {
	t.Parallel()

	req := tasByExperiment()
	req.GroupBy = []string{}
	s := newSolver(t, staticCatalogs{catalog.SourceCMIP6: scenarioRecords()},
		stubDiagnostic{slug: "broken", reqs: diagnostic.AllOf(req)})

	_, err := s.Solve(context.Background())
	require.Error(t, err)
	assert.True(t, referrors.IsConfiguration(err))
}

func TestSolveNilGroupByYieldsSingleGroup(t *testing.T) {
	t.Parallel()

	req := tasByExperiment()
	req.GroupBy = nil
	s := newSolver(t, staticCatalogs{catalog.SourceCMIP6: scenarioRecords()},
		stubDiagnostic{slug: "all", reqs: diagnostic.AllOf(req)})

	candidates, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "cmip6[]", candidates[0].Key())
	assert.Len(t, candidates[0].Datasets[catalog.SourceCMIP6].Records, 2)
}

func TestSolveRequiredExecutionsSkipsCurrentGroups(t *testing.T) {
	t.Parallel()

	records := scenarioRecords()
	catalogs := staticCatalogs{catalog.SourceCMIP6: records}
	s := newSolver(t, catalogs, stubDiagnostic{slug: "global-mean", reqs: diagnostic.AllOf(tasByExperiment())})
	store := &memoryStore{}
	ctx := context.Background()

	exec := &recordingExecutor{}
	summary, err := s.SolveRequiredExecutions(ctx, store, exec, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, Summary{Candidates: 2, Scheduled: 2}, summary)
	require.Len(t, exec.jobs, 2)
	assert.Equal(t, 1, exec.joined)
	for _, job := range exec.jobs {
		assert.NotEmpty(t, job.Definition.OutputFragment)
		assert.Contains(t, job.Definition.OutputDirectory, job.Execution.OutputFragment)
	}
	store.complete()

	// Unchanged data runs nothing.
	exec = &recordingExecutor{}
	summary, err = s.SolveRequiredExecutions(ctx, store, exec, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, Summary{Candidates: 2, Skipped: 2}, summary)
	assert.Empty(t, exec.jobs)

	// A new version of one dataset changes that group's hash only.
	records[0] = cmip6("/tas_119_v2.nc", map[string]string{"variable_id": "tas", "experiment_id": "ssp119", "instance_id": "tas.ssp119"})
	exec = &recordingExecutor{}
	summary, err = s.SolveRequiredExecutions(ctx, store, exec, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, Summary{Candidates: 2, Scheduled: 1, Skipped: 1}, summary)
	require.Len(t, exec.jobs, 1)
	assert.Equal(t, "cmip6[experiment_id=ssp119]", exec.jobs[0].Definition.Key)
	assert.Len(t, store.groups, 2)
	assert.Len(t, store.executions, 3)
}

func TestSolveRequiredExecutionsRerunsDirtyGroups(t *testing.T) {
	t.Parallel()

	s := newSolver(t, staticCatalogs{catalog.SourceCMIP6: scenarioRecords()},
		stubDiagnostic{slug: "global-mean", reqs: diagnostic.AllOf(tasByExperiment())})
	store := &memoryStore{}
	ctx := context.Background()

	_, err := s.SolveRequiredExecutions(ctx, store, &recordingExecutor{}, RunOptions{})
	require.NoError(t, err)
	store.complete()
	require.NoError(t, store.SetGroupDirty(ctx, store.groups[0].ID, true))

	exec := &recordingExecutor{}
	summary, err := s.SolveRequiredExecutions(ctx, store, exec, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scheduled)
	require.Len(t, exec.jobs, 1)
	assert.Equal(t, store.groups[0].ID, exec.jobs[0].Execution.GroupID)
}

func TestSolveRequiredExecutionsDryRunCreatesNothing(t *testing.T) {
	t.Parallel()

	s := newSolver(t, staticCatalogs{catalog.SourceCMIP6: scenarioRecords()},
		stubDiagnostic{slug: "global-mean", reqs: diagnostic.AllOf(tasByExperiment())})
	store := &memoryStore{}
	exec := &recordingExecutor{}

	summary, err := s.SolveRequiredExecutions(context.Background(), store, exec, RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Scheduled)
	assert.Empty(t, exec.jobs)
	assert.Zero(t, exec.joined)
	assert.Empty(t, store.executions)
	assert.Empty(t, store.groups)
}

func TestSolveRequiredExecutionsDryRunReportsCachedState(t *testing.T) {
	t.Parallel()

	s := newSolver(t, staticCatalogs{catalog.SourceCMIP6: scenarioRecords()},
		stubDiagnostic{slug: "global-mean", reqs: diagnostic.AllOf(tasByExperiment())})
	store := &memoryStore{}
	ctx := context.Background()

	_, err := s.SolveRequiredExecutions(ctx, store, &recordingExecutor{}, RunOptions{})
	require.NoError(t, err)
	store.complete()
	require.Len(t, store.groups, 2)
	require.NoError(t, store.SetGroupDirty(ctx, store.groups[1].ID, true))

	exec := &recordingExecutor{}
	summary, err := s.SolveRequiredExecutions(ctx, store, exec, RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scheduled)
	assert.Equal(t, 1, summary.Skipped)
	assert.Len(t, store.groups, 2)
	assert.Len(t, store.executions, 2)
	assert.True(t, store.groups[1].Dirty)
}

func TestSolveRequiredExecutionsSchedulesGroupOncePerPass(t *testing.T) {
	t.Parallel()

	// Both alternatives produce the same key for ssp126.
	reqs := diagnostic.AnyOf(
		[]diagnostic.DataRequirement{tasByExperiment()},
		[]diagnostic.DataRequirement{tasByExperiment()},
	)
	s := newSolver(t, staticCatalogs{catalog.SourceCMIP6: scenarioRecords()}, stubDiagnostic{slug: "dup", reqs: reqs})
	store := &memoryStore{}
	exec := &recordingExecutor{}

	summary, err := s.SolveRequiredExecutions(context.Background(), store, exec, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, Summary{Candidates: 4, Scheduled: 2, Skipped: 2}, summary)
	assert.Len(t, store.executions, 2)
}
