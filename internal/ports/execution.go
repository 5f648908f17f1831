package ports

import (
	"context"
	"time"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/catalog"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/diagnostic"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/execution"
)

// CatalogSource loads the current records of one source type. Implementations
// read fresh state on every call.
type CatalogSource interface {
	Catalog(ctx context.Context, sourceType catalog.SourceType) (*catalog.DataCatalog, error)
}

// ExecutionStore persists groups and executions for the solver.
type ExecutionStore interface {
	// InTransaction runs fn against a store bound to one transaction. The
	// transaction commits when fn returns nil.
	InTransaction(ctx context.Context, fn func(tx ExecutionStore) error) error
	// GetOrCreateGroup returns the group for (diagnosticID, key), creating it dirty
	// when absent. created reports whether a new row was inserted.
	GetOrCreateGroup(ctx context.Context, diagnosticID, key string, selectors map[string]map[string]string) (group *execution.Group, created bool, err error)
	// FindGroup returns the group for (diagnosticID, key), or nil when none exists.
	FindGroup(ctx context.Context, diagnosticID, key string) (*execution.Group, error)
	// LatestExecution returns the most recent execution of the group, or nil.
	LatestExecution(ctx context.Context, groupID uint) (*execution.Execution, error)
	// CreateExecution inserts exec and links it to the datasets it read.
	CreateExecution(ctx context.Context, exec *execution.Execution, datasetSlugs []string) error
	SetGroupDirty(ctx context.Context, groupID uint, dirty bool) error
}

// ResultStore persists the outcome of executions.
type ResultStore interface {
	// WithinTransaction runs fn against a store bound to one transaction.
	WithinTransaction(ctx context.Context, fn func(tx ResultStore) error) error
	MarkExecutionFailed(ctx context.Context, executionID uint) error
	// MarkExecutionSuccessful records path and clears the owning group's dirty flag.
	MarkExecutionSuccessful(ctx context.Context, executionID uint, path string) error
	// InsertMetricValues stores values inside a nested transaction so a failure
	// only rolls back the insert.
	InsertMetricValues(ctx context.Context, executionID uint, values []execution.MetricValue) error
	// RegisterOutputs records output files, also inside a nested transaction.
	RegisterOutputs(ctx context.Context, executionID uint, outputs []execution.Output) error
}

// Job is one unit of work handed to an Executor.
type Job struct {
	Diagnostic diagnostic.Diagnostic
	Definition diagnostic.ExecutionDefinition
	Execution  *execution.Execution
}

// Executor runs jobs and hands their results to a ResultHandler.
type Executor interface {
	// Run enqueues job. It never blocks on the job and never returns the job's
	// failure; failures become failed results.
	Run(ctx context.Context, job Job)
	// Join waits for every enqueued job. A timeout of zero or less waits
	// indefinitely. Exceeding the timeout returns *errors.TimeoutError.
	Join(ctx context.Context, timeout time.Duration) error
}

// ResultHandler persists the result of one job. runErr is the failure raised
// while running, if any.
type ResultHandler interface {
	Handle(ctx context.Context, job Job, result diagnostic.ExecutionResult, runErr error) error
}

// ArtifactStore moves run artifacts from scratch space into permanent storage.
type ArtifactStore interface {
	// Relocate moves filename from the scratch directory of fragment. A missing
	// source file returns an error satisfying errors.Is(err, fs.ErrNotExist).
	Relocate(ctx context.Context, fragment, filename string) error
	// Location is where the results of fragment live once relocated.
	Location(fragment string) string
	// Remove deletes every stored artifact of fragment.
	Remove(ctx context.Context, fragment string) error
}
