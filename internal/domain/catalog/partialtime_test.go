package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartialTimeComparesSpecifiedFieldsOnly(t *testing.T) {
	t.Parallel()

	year := NewPartialTime(2000)
	mid := time.Date(2000, time.June, 15, 12, 0, 0, 0, time.UTC)

	assert.True(t, year.Equal(mid))
	assert.False(t, year.Less(mid))
	assert.False(t, year.Greater(mid))

	assert.True(t, NewPartialTime(1999).Less(mid))
	assert.True(t, NewPartialTime(2000, 7).Greater(mid))
	assert.True(t, NewPartialTime(2000, 6, 15, 11).Less(mid))
}

func TestParsePartialTime(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"2000":             "2000",
		"2000-01":          "2000-01",
		"2000-01-02":       "2000-01-02",
		"2000-01-02T03":    "2000-01-02T03",
		"2000-01-02T03:04": "2000-01-02T03:04",
		"1850-1-1":         "1850-01-01",
	}
	for input, want := range cases {
		p, err := ParsePartialTime(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, p.String(), input)
	}
}

func TestParsePartialTimeRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "abc", "2000-01-01-01", "2000-01T03", "2000-01-01T01:02:03:04"} {
		_, err := ParsePartialTime(input)
		assert.Error(t, err, input)
	}
}

func TestPartialTimeZero(t *testing.T) {
	t.Parallel()

	assert.True(t, PartialTime{}.IsZero())
	assert.False(t, NewPartialTime(1).IsZero())
	assert.Equal(t, "", PartialTime{}.String())
}
