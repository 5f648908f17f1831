// Package execution models the persisted history of diagnostic runs and decides
// when a group needs to run again.
package execution

import (
	"path"
	"time"

	"github.com/google/uuid"
)

// State summarises a group's cache status.
type State string

const (
	// StateNew groups have never run.
	StateNew State = "new"
	// StateStale groups have inputs or configuration that changed since the last run.
	StateStale State = "stale"
	// StateCurrent groups have a latest execution matching their inputs.
	StateCurrent State = "current"
)

// Group is one (diagnostic, dataset key) pair and its run history.
type Group struct {
	ID           uint
	DiagnosticID string
	Key          string
	Dirty        bool
	Selectors    map[string]map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Execution is one attempt at running a group against a specific dataset hash.
// Successful is nil while the execution is pending.
type Execution struct {
	ID             uint
	GroupID        uint
	DatasetHash    string
	OutputFragment string
	Successful     *bool
	Path           *string
	CreatedAt      time.Time
}

// Pending reports whether the execution has not reached a terminal state.
func (e *Execution) Pending() bool {
	return e.Successful == nil
}

// ShouldRun reports whether group must run for hash: it has never run, its latest
// execution used a different hash, or it was marked dirty.
func ShouldRun(group Group, latest *Execution, hash string) bool {
	if latest == nil {
		return true
	}
	if latest.DatasetHash != hash {
		return true
	}
	return group.Dirty
}

// StateOf classifies a group given its latest execution.
func StateOf(group Group, latest *Execution) State {
	switch {
	case latest == nil:
		return StateNew
	case group.Dirty:
		return StateStale
	default:
		return StateCurrent
	}
}

// NewOutputFragment returns a fresh relative output location. Every execution gets
// its own fragment so retries never overwrite earlier artifacts.
func NewOutputFragment(provider, diagnostic, hash string) string {
	return path.Join(provider, diagnostic, hash, uuid.NewString())
}
