package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseErrorWrapsUnderlying(t *testing.T) {
	t.Parallel()

	underlying := fmt.Errorf("unexpected token")
	err := NewParseError("ref.yaml", 12, underlying)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, "ref.yaml", parseErr.Path)
	require.Equal(t, 12, parseErr.Line)
	require.True(t, stdErrors.Is(err, underlying))
	require.Contains(t, err.Error(), "ref.yaml:12")
}

func TestConfigurationErrorIsDetectedThroughWrapping(t *testing.T) {
	t.Parallel()

	err := NewConfigurationError("filters[0]", "unknown facet \"model\"", nil)
	wrapped := fmt.Errorf("solve cmip6: %w", err)

	require.True(t, IsConfiguration(wrapped))
	require.False(t, IsConfiguration(stdErrors.New("boom")))
	require.Contains(t, wrapped.Error(), "filters[0]: unknown facet")
}

func TestValidationErrorAggregatesFields(t *testing.T) {
	t.Parallel()

	err := NewValidationError("diagnostics[1].slug", "duplicate diagnostic", nil)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "diagnostics[1].slug", validationErr.Field)
	require.Contains(t, validationErr.Message, "duplicate diagnostic")
}

func TestExecutionErrorIncludesExecutionContext(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("command failed")
	err := NewExecutionError(42, underlying)

	var executionErr *ExecutionError
	require.ErrorAs(t, err, &executionErr)
	require.Equal(t, uint(42), executionErr.ExecutionID)
	require.True(t, stdErrors.Is(err, underlying))
	require.Contains(t, err.Error(), "execution 42")
}

func TestTimeoutErrorReportsPending(t *testing.T) {
	t.Parallel()

	err := NewTimeoutError(2*time.Second, 3)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, 3, timeoutErr.Pending)
	require.Equal(t, "timed out after 2s waiting for 3 execution(s)", err.Error())
}
