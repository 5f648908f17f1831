// Package command provides diagnostics that run an external program. Each run
// gets its own process, so a crashing diagnostic cannot take the solver down.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/diagnostic"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/logging"
)

// Default bundle filenames, relative to the output directory.
const (
	DefaultMetricBundle = "diagnostic.json"
	DefaultOutputBundle = "output.json"
	DefaultSeries       = "series.json"

	// DefinitionFilename is the serialised ExecutionDefinition handed to the program.
	DefinitionFilename = "definition.json"
)

// Environment passed to every run in addition to the process environment.
const (
	EnvDefinition      = "REF_DEFINITION"
	EnvOutputDirectory = "REF_OUTPUT_DIRECTORY"
)

var _ diagnostic.Diagnostic = (*Diagnostic)(nil)

// Spec declares a command diagnostic.
type Spec struct {
	Slug         string
	Name         string
	Command      []string
	Env          map[string]string
	WorkDir      string
	MetricBundle string
	OutputBundle string
	Series       string
	Requirements diagnostic.Requirements
}

// Diagnostic runs Spec.Command with the execution definition written to
// definition.json in the output directory. stdout and stderr are appended to the
// run's out.log.
type Diagnostic struct {
	spec Spec
}

// New validates spec and fills in default bundle names.
func New(spec Spec) (*Diagnostic, error) {
	if spec.Slug == "" {
		return nil, errors.New("diagnostic slug is required")
	}
	if len(spec.Command) == 0 || strings.TrimSpace(spec.Command[0]) == "" {
		return nil, fmt.Errorf("diagnostic %s: command is required", spec.Slug)
	}
	if len(spec.Requirements.Sets()) == 0 {
		return nil, fmt.Errorf("diagnostic %s: data requirements are required", spec.Slug)
	}
	if spec.Name == "" {
		spec.Name = spec.Slug
	}
	if spec.MetricBundle == "" {
		spec.MetricBundle = DefaultMetricBundle
	}
	if spec.OutputBundle == "" {
		spec.OutputBundle = DefaultOutputBundle
	}
	if spec.Series == "" {
		spec.Series = DefaultSeries
	}
	spec.Command = append([]string(nil), spec.Command...)
	return &Diagnostic{spec: spec}, nil
}

func (d *Diagnostic) Slug() string                              { return d.spec.Slug }
func (d *Diagnostic) Name() string                              { return d.spec.Name }
func (d *Diagnostic) DataRequirements() diagnostic.Requirements { return d.spec.Requirements }

// Run implements diagnostic.Diagnostic. A non-zero exit returns an error carrying
// the tail of the program's output. Output and series bundles are optional and
// only reported when the program wrote them.
func (d *Diagnostic) Run(ctx context.Context, def diagnostic.ExecutionDefinition) (diagnostic.ExecutionResult, error) {
	logger := logging.FromContext(ctx)
	if err := os.MkdirAll(def.OutputDirectory, 0o755); err != nil {
		return diagnostic.Failed(def), fmt.Errorf("create output directory: %w", err)
	}

	definitionPath := def.OutputPath(DefinitionFilename)
	if err := writeDefinition(definitionPath, def); err != nil {
		return diagnostic.Failed(def), err
	}

	log, err := os.OpenFile(def.OutputPath(diagnostic.LogFilename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return diagnostic.Failed(def), fmt.Errorf("open execution log: %w", err)
	}
	defer log.Close()

	cmd := exec.CommandContext(ctx, d.spec.Command[0], d.spec.Command[1:]...)
	cmd.Env = buildEnv(d.spec.Env, map[string]string{
		EnvDefinition:      definitionPath,
		EnvOutputDirectory: def.OutputDirectory,
	})
	cmd.Dir = def.OutputDirectory
	if d.spec.WorkDir != "" {
		cmd.Dir = d.spec.WorkDir
	}

	logger.Info(ctx, "running command", "command", strings.Join(d.spec.Command, " "), "dir", cmd.Dir)
	res, err := runStreaming(cmd, log)
	if err != nil {
		if out := primaryOutput(res); out != "" {
			err = fmt.Errorf("%w: %s", err, out)
		}
		return diagnostic.Failed(def), fmt.Errorf("command %s: %w", d.spec.Command[0], err)
	}

	result := diagnostic.ExecutionResult{
		Definition:           def,
		Successful:           true,
		MetricBundleFilename: d.spec.MetricBundle,
	}
	if exists(def.OutputPath(d.spec.OutputBundle)) {
		result.OutputBundleFilename = d.spec.OutputBundle
	}
	if exists(def.OutputPath(d.spec.Series)) {
		result.SeriesFilename = d.spec.Series
	}
	return result, nil
}

func writeDefinition(path string, def diagnostic.ExecutionDefinition) error {
	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("encode definition: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write definition: %w", err)
	}
	return nil
}

func buildEnv(layers ...map[string]string) []string {
	env := os.Environ()
	for _, layer := range layers {
		for k, v := range layer {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
	}
	return env
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
