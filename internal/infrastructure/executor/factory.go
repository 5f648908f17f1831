package executor

import (
	"fmt"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
	referrors "github.com/skoriche/Climate-REF4CMIP-sub000/pkg/errors"
)

// Kind selects an executor implementation.
type Kind string

const (
	KindLocal       Kind = "local"
	KindSynchronous Kind = "synchronous"
)

// New builds the executor named by kind. workers only applies to the local pool.
func New(kind Kind, handler ports.ResultHandler, workers int, opts ...Option) (ports.Executor, error) {
	switch kind {
	case KindLocal, "":
		return NewLocalExecutor(handler, workers, opts...), nil
	case KindSynchronous:
		return NewSynchronousExecutor(handler, opts...), nil
	default:
		return nil, referrors.NewConfigurationError("executor.kind", fmt.Sprintf("unknown executor %q", kind), nil)
	}
}
