package ports

import "context"

const (
	// EventSolveStarted is emitted when a solve pass begins.
	EventSolveStarted = "solve.started"
	// EventSolveCompleted is emitted after every dispatched execution was joined.
	EventSolveCompleted = "solve.completed"
	// EventExecutionCreated is emitted when a group is scheduled to run.
	EventExecutionCreated = "execution.created"
	// EventExecutionSkipped is emitted when a group's cached result is current.
	EventExecutionSkipped = "execution.skipped"
	// EventExecutionCompleted is emitted when an execution is marked successful.
	EventExecutionCompleted = "execution.completed"
	// EventExecutionFailed is emitted when an execution is marked failed.
	EventExecutionFailed = "execution.failed"
)

// DomainEvent represents a significant occurrence during a solve pass.
type DomainEvent interface {
	EventType() string
	Payload() interface{}
}

// Event is a DomainEvent with a map payload.
type Event struct {
	Type   string
	Fields map[string]interface{}
}

func (e Event) EventType() string    { return e.Type }
func (e Event) Payload() interface{} { return e.Fields }

// EventPublisher distributes events to subscribers. Publish is synchronous so
// handlers run before the process exits. Implementations must be thread-safe.
type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
}

// EventHandler processes an event of a specific type.
type EventHandler func(context.Context, DomainEvent) error

// Subscription represents a registered handler.
type Subscription interface {
	Unsubscribe()
}
