package config

import (
	"github.com/spf13/cast"

	referrors "github.com/skoriche/Climate-REF4CMIP-sub000/pkg/errors"
)

// LookupFunc reads an environment variable.
type LookupFunc func(key string) (string, bool)

// Environment variables that override the configuration file.
const (
	EnvDatabaseURL     = "REF_DATABASE_URL"
	EnvExecutor        = "REF_EXECUTOR"
	EnvExecutorN       = "REF_EXECUTOR_N"
	EnvExecutorTimeout = "REF_EXECUTOR_TIMEOUT"
	EnvLogLevel        = "REF_LOG_LEVEL"
	EnvLogHuman        = "REF_LOG_HUMAN_READABLE"
	EnvScratchDir      = "REF_SCRATCH_DIR"
	EnvResultsDir      = "REF_RESULTS_DIR"
	EnvCVPath          = "REF_CV_PATH"
)

// ApplyEnv overrides cfg with any REF_* variables present in the environment.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}
	overrides := map[string]*string{
		EnvDatabaseURL: &cfg.DB.DatabaseURL,
		EnvExecutor:    &cfg.Executor.Kind,
		EnvLogLevel:    &cfg.Log.Level,
		EnvScratchDir:  &cfg.Paths.Scratch,
		EnvResultsDir:  &cfg.Paths.Results,
		EnvCVPath:      &cfg.CVPath,
	}
	for key, target := range overrides {
		if v, ok := lookup(key); ok {
			*target = v
		}
	}

	if v, ok := lookup(EnvExecutorN); ok {
		n, err := cast.ToIntE(v)
		if err != nil {
			return referrors.NewConfigurationError("executor.n", EnvExecutorN+" must be an integer", err)
		}
		cfg.Executor.N = n
	}
	if v, ok := lookup(EnvExecutorTimeout); ok {
		d, err := cast.ToDurationE(v)
		if err != nil {
			return referrors.NewConfigurationError("executor.timeout", EnvExecutorTimeout+" must be a duration", err)
		}
		cfg.Executor.Timeout = d
	}
	if v, ok := lookup(EnvLogHuman); ok {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return referrors.NewConfigurationError("log.human_readable", EnvLogHuman+" must be a boolean", err)
		}
		cfg.Log.HumanReadable = b
	}
	return nil
}
