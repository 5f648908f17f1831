// Package diagnostic describes the units of computation the solver schedules: what
// data they require, what they are handed and what they return.
package diagnostic

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
)

// LogFilename is the log every run writes into its output directory.
const LogFilename = "out.log"

// Diagnostic is a single analysis that can be run against a set of datasets.
type Diagnostic interface {
	Slug() string
	Name() string
	DataRequirements() Requirements
	// Run executes the diagnostic. Implementations write every artifact beneath
	// definition.OutputDirectory.
	Run(ctx context.Context, definition ExecutionDefinition) (ExecutionResult, error)
}

// Provider groups diagnostics under a versioned namespace.
type Provider interface {
	Slug() string
	Version() string
	Diagnostics() []Diagnostic
	Get(slug string) (Diagnostic, error)
}

// ExecutionDefinition is everything a diagnostic needs for one run.
type ExecutionDefinition struct {
	Provider        string            `json:"provider"`
	Diagnostic      string            `json:"diagnostic"`
	Key             string            `json:"key"`
	Datasets        ExecutionDatasets `json:"datasets"`
	OutputFragment  string            `json:"output_fragment"`
	OutputDirectory string            `json:"output_directory"`
}

// OutputPath resolves filename inside the run's output directory.
func (d ExecutionDefinition) OutputPath(filename string) string {
	return filepath.Join(d.OutputDirectory, filename)
}

// ExecutionResult is what a run reports back. Filenames are relative to the
// output directory.
type ExecutionResult struct {
	Definition           ExecutionDefinition
	Successful           bool
	MetricBundleFilename string
	OutputBundleFilename string
	SeriesFilename       string
}

// Failed builds an unsuccessful result for definition.
func Failed(definition ExecutionDefinition) ExecutionResult {
	return ExecutionResult{Definition: definition}
}

// BaseProvider is a Provider over a fixed set of diagnostics.
type BaseProvider struct {
	slug        string
	version     string
	diagnostics map[string]Diagnostic
}

// NewProvider builds a provider. Diagnostic slugs must be unique.
func NewProvider(slug, version string, diagnostics ...Diagnostic) (*BaseProvider, error) {
	p := &BaseProvider{slug: slug, version: version, diagnostics: make(map[string]Diagnostic, len(diagnostics))}
	for _, d := range diagnostics {
		if d == nil {
			return nil, fmt.Errorf("provider %s: nil diagnostic", slug)
		}
		if _, exists := p.diagnostics[d.Slug()]; exists {
			return nil, fmt.Errorf("provider %s: duplicate diagnostic %q", slug, d.Slug())
		}
		p.diagnostics[d.Slug()] = d
	}
	return p, nil
}

func (p *BaseProvider) Slug() string    { return p.slug }
func (p *BaseProvider) Version() string { return p.version }

// Diagnostics returns the diagnostics sorted by slug.
func (p *BaseProvider) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, 0, len(p.diagnostics))
	for _, d := range p.diagnostics {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug() < out[j].Slug() })
	return out
}

// Get returns the diagnostic registered under slug.
func (p *BaseProvider) Get(slug string) (Diagnostic, error) {
	d, ok := p.diagnostics[slug]
	if !ok {
		return nil, fmt.Errorf("provider %s: diagnostic %q not found", p.slug, slug)
	}
	return d, nil
}

// FullSlug identifies a diagnostic across providers.
func FullSlug(provider Provider, d Diagnostic) string {
	return provider.Slug() + "/" + d.Slug()
}
