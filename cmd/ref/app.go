package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	cfgpkg "github.com/skoriche/Climate-REF4CMIP-sub000/internal/config"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/artifacts"
	infraconfig "github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/config"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/events"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/executor"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/logging"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/metrics"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/store"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/tracing"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/registry"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/results"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/solver"
)

// appContext bundles the long-lived services one command invocation needs.
type appContext struct {
	cfg       *cfgpkg.Config
	logger    ports.Logger
	store     *store.Store
	providers *registry.ProviderRegistry
	artifacts ports.ArtifactStore
	metrics   *metrics.Collector
	tracer    ports.Tracer
	events    ports.EventPublisher
	handler   *results.Handler
	solver    *solver.Solver

	traceProvider *sdktrace.TracerProvider
}

// newAppContext loads the configuration and wires every adapter. Log entries
// raised before the configured logger exists are buffered and replayed into it.
func newAppContext(ctx context.Context, flags *rootFlags, stderr io.Writer) (*appContext, error) {
	if err := validateConfigPath(flags.configPath); err != nil {
		return nil, newCommandError("load configuration", flags.configPath, err, "Pass --config or set "+envConfig+".")
	}

	buffer := logging.NewEventBuffer(0)
	loader := infraconfig.NewYAMLLoader(buffer.Logger())
	cfg, err := loader.Load(ctx, flags.configPath)
	if err != nil {
		if fallback, logErr := logging.New(logging.Options{Writer: stderr, Level: "warn"}); logErr == nil {
			buffer.Flush(fallback)
		}
		return nil, newCommandError("load configuration", flags.configPath, err, "Fix the reported field and try again.")
	}

	level := cfg.Log.Level
	if flags.verbose {
		level = "debug"
	}
	human := cfg.Log.HumanReadable
	logger, err := logging.New(logging.Options{Writer: stderr, Level: level, HumanReadable: &human, Component: "ref"})
	if err != nil {
		return nil, err
	}
	buffer.Flush(logger)

	app := &appContext{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(cfg.Metrics.Namespace),
		events:  events.NewLoggingPublisher(logger),
	}

	if flags.trace {
		tp, err := tracing.NewStdoutProvider(stderr)
		if err != nil {
			return nil, err
		}
		app.traceProvider = tp
		app.tracer = tracing.New(tp)
	}

	app.providers, err = loader.Providers(ctx, cfg)
	if err != nil {
		return nil, newCommandError("load providers", flags.configPath, err, "")
	}

	app.store, err = store.Open(cfg.DB.DatabaseURL, store.WithStoreLogger(logger))
	if err != nil {
		return nil, newCommandError("open database", cfg.DB.DatabaseURL, err, "Check db.database_url or "+cfgpkg.EnvDatabaseURL+".")
	}

	app.artifacts, err = newArtifactStore(ctx, cfg)
	if err != nil {
		_ = app.store.Close()
		return nil, newCommandError("prepare artifact storage", cfg.Artifacts.Kind, err, "")
	}

	handlerOpts := []results.Option{
		results.WithHandlerLogger(logger),
		results.WithHandlerMetrics(app.metrics),
		results.WithHandlerEvents(app.events),
	}
	if app.tracer != nil {
		handlerOpts = append(handlerOpts, results.WithHandlerTracer(app.tracer))
	}
	if cfg.CVPath != "" {
		cv, err := results.LoadVocabulary(cfg.CVPath)
		if err != nil {
			_ = app.store.Close()
			return nil, newCommandError("load controlled vocabulary", cfg.CVPath, err, "")
		}
		handlerOpts = append(handlerOpts, results.WithVocabulary(cv))
	}
	app.handler = results.NewHandler(app.store, app.artifacts, handlerOpts...)

	solverOpts := []solver.Option{
		solver.WithSolverLogger(logger),
		solver.WithSolverMetrics(app.metrics),
		solver.WithSolverEvents(app.events),
		solver.WithScratchDir(cfg.Paths.Scratch),
	}
	if app.tracer != nil {
		solverOpts = append(solverOpts, solver.WithSolverTracer(app.tracer))
	}
	app.solver = solver.New(app.providers, app.store, solverOpts...)

	return app, nil
}

func newArtifactStore(ctx context.Context, cfg *cfgpkg.Config) (ports.ArtifactStore, error) {
	switch cfg.Artifacts.Kind {
	case "minio":
		m := cfg.Artifacts.Minio
		if m == nil {
			return nil, errors.New("artifacts.minio is required")
		}
		s, err := artifacts.NewMinioStore(artifacts.MinioConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Region:    m.Region,
			UseSSL:    m.UseSSL,
			Bucket:    m.Bucket,
			Prefix:    m.Prefix,
		}, cfg.Paths.Scratch)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return artifacts.NewLocalStore(cfg.Paths.Scratch, cfg.Paths.Results), nil
	}
}

// newExecutor builds the configured executor around the result handler.
func (a *appContext) newExecutor() (ports.Executor, error) {
	opts := []executor.Option{
		executor.WithExecutorLogger(a.logger),
		executor.WithExecutorMetrics(a.metrics),
		executor.WithExecutorEvents(a.events),
	}
	if a.tracer != nil {
		opts = append(opts, executor.WithExecutorTracer(a.tracer))
	}
	return executor.New(executor.Kind(a.cfg.Executor.Kind), a.handler, a.cfg.Executor.N, opts...)
}

// Close flushes metrics and spans and releases the database.
func (a *appContext) Close(ctx context.Context) error {
	var errs []error
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			errs = append(errs, fmt.Errorf("write metrics textfile: %w", err))
		}
	}
	if a.traceProvider != nil {
		if err := a.traceProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush traces: %w", err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}
