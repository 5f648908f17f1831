package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	referrors "github.com/skoriche/Climate-REF4CMIP-sub000/pkg/errors"
)

const validYAML = `log:
  level: debug
paths:
  scratch: /tmp/ref/scratch
  results: /tmp/ref/results
db:
  database_url: sqlite:///tmp/ref/ref.db
executor:
  kind: local
  n: 4
  timeout: 30m
providers:
  - slug: example
    version: 1.0.0
    diagnostics:
      - slug: global-mean
        command: [python, -m, example.global_mean]
        data_requirements:
          - source_type: cmip6
            filters:
              - facets:
                  variable_id: tas
                  frequency: [mon]
            group_by: [source_id, experiment_id]
            constraints:
              - type: require_timerange
                group_by: [instance_id]
                start: "2000-01"
                end: "2014-12"
              - type: add_supplementary_dataset
                variable: areacella
                source_type: cmip6
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ref.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func TestParseConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		contents string
		assert   func(t *testing.T, cfg *Config, err error)
	}{
		{
			name:     "valid configuration is parsed",
			contents: validYAML,
			assert: func(t *testing.T, cfg *Config, err error) {
				require.NoError(t, err)
				require.NotNil(t, cfg)
				assert.Equal(t, 4, cfg.Executor.N)
				assert.Equal(t, 30*time.Minute, cfg.Executor.Timeout)
				assert.Equal(t, "local", cfg.Artifacts.Kind)
				assert.Equal(t, "ref", cfg.Metrics.Namespace)

				require.Len(t, cfg.Providers, 1)
				d := cfg.Providers[0].Diagnostics[0]
				require.Len(t, d.DataRequirements.Sets, 1)
				assert.False(t, d.DataRequirements.Alternatives)
				req := d.DataRequirements.Sets[0][0]
				assert.Equal(t, FacetValues{"tas"}, req.Filters[0].Facets["variable_id"])
				assert.Equal(t, []string{"source_id", "experiment_id"}, req.GroupBy)
				require.Len(t, req.Constraints, 2)
			},
		},
		{
			name:     "syntax errors carry the line number",
			contents: "paths:\n  scratch: [unterminated\n",
			assert: func(t *testing.T, cfg *Config, err error) {
				require.Error(t, err)
				var parseErr *referrors.ParseError
				require.ErrorAs(t, err, &parseErr)
				assert.Greater(t, parseErr.Line, 0)
			},
		},
		{
			name:     "missing database url fails validation",
			contents: "paths:\n  scratch: /s\n  results: /r\n",
			assert: func(t *testing.T, cfg *Config, err error) {
				var valErr *referrors.ValidationError
				require.ErrorAs(t, err, &valErr)
				assert.Equal(t, "db.database_url", valErr.Field)
			},
		},
		{
			name:     "unsupported database scheme fails validation",
			contents: "paths:\n  scratch: /s\n  results: /r\ndb:\n  database_url: mysql://x\n",
			assert: func(t *testing.T, cfg *Config, err error) {
				var valErr *referrors.ValidationError
				require.ErrorAs(t, err, &valErr)
				assert.Contains(t, valErr.Message, "db_url")
			},
		},
		{
			name: "minio artifacts require a minio section",
			contents: "paths:\n  scratch: /s\n  results: /r\ndb:\n  database_url: sqlite://:memory:\n" +
				"artifacts:\n  kind: minio\n",
			assert: func(t *testing.T, cfg *Config, err error) {
				var valErr *referrors.ValidationError
				require.ErrorAs(t, err, &valErr)
				assert.Equal(t, "artifacts.minio", valErr.Field)
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := ParseConfigWithEnv(writeConfig(t, tc.contents), noEnv)
			tc.assert(t, cfg, err)
		})
	}
}

func TestParseConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := ParseConfigWithEnv(filepath.Join(t.TempDir(), "absent.yaml"), noEnv)
	var parseErr *referrors.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		EnvDatabaseURL:     "postgres://ref@db/ref",
		EnvExecutor:        "synchronous",
		EnvExecutorN:       "8",
		EnvExecutorTimeout: "90s",
		EnvLogHuman:        "true",
		EnvResultsDir:      "/data/results",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg, err := ParseConfigWithEnv(writeConfig(t, validYAML), lookup)
	require.NoError(t, err)
	assert.Equal(t, "postgres://ref@db/ref", cfg.DB.DatabaseURL)
	assert.Equal(t, "synchronous", cfg.Executor.Kind)
	assert.Equal(t, 8, cfg.Executor.N)
	assert.Equal(t, 90*time.Second, cfg.Executor.Timeout)
	assert.True(t, cfg.Log.HumanReadable)
	assert.Equal(t, "/data/results", cfg.Paths.Results)
	assert.Equal(t, "/tmp/ref/scratch", cfg.Paths.Scratch)
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	err := ApplyEnv(cfg, func(key string) (string, bool) {
		if key == EnvExecutorN {
			return "many", true
		}
		return "", false
	})
	require.Error(t, err)
	assert.True(t, referrors.IsConfiguration(err))
}
