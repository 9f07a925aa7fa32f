package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ajitpratap0/relay/internal/pipeline"
	"github.com/ajitpratap0/relay/pkg/clients"
	"github.com/ajitpratap0/relay/pkg/config"
	httpadapter "github.com/ajitpratap0/relay/pkg/connector/adapters/http"
	"github.com/ajitpratap0/relay/pkg/credentials"
	"github.com/ajitpratap0/relay/pkg/logger"
	"github.com/ajitpratap0/relay/pkg/observability"
	"github.com/ajitpratap0/relay/pkg/vault"
)

// app holds the process wide services shared by every command
type app struct {
	settings *config.Settings
	log      *zap.Logger
	vault    vault.Vault
	creds    *credentials.Manager
	engine   *pipeline.Engine
	closers  []func(context.Context) error
}

// newApp loads settings and brings up logging, tracing, metrics, the vault
// and the engine. Close releases everything it started.
func newApp(settingsPath string, traceOut io.Writer) (*app, error) {
	settings, err := config.LoadSettings(settingsPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(settings.Log); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a := &app{settings: settings, log: logger.Get()}

	// Tracing must be installed before the engine captures its tracer
	if settings.Tracing.Enabled {
		shutdown, err := observability.InitTracing(observability.TracingConfig{
			ServiceName:    settings.Tracing.ServiceName,
			ServiceVersion: version,
			Pretty:         settings.Tracing.Pretty,
			Writer:         traceOut,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, shutdown)
	}

	if settings.MetricsAddr != "" {
		srv := observability.ServeMetrics(settings.MetricsAddr, a.log)
		a.closers = append(a.closers, srv.Shutdown)
	}

	if settings.VaultPath != "" {
		fv, err := vault.OpenFileVault(settings.VaultPath)
		if err != nil {
			return nil, multierr.Append(err, a.Close(context.Background()))
		}
		a.vault = fv
	} else {
		a.vault = vault.NewMemoryVault()
	}

	client := clients.NewHTTPClient(&settings.HTTP, a.log)
	httpadapter.DefaultClient = client
	a.creds = credentials.NewManager(a.vault, a.log, credentials.WithHTTPClient(client))
	a.engine = pipeline.NewEngine(a.creds,
		pipeline.WithLogger(a.log),
		pipeline.WithConcurrency(settings.Concurrency),
	)
	return a, nil
}

// pipelines loads the definitions in path, applying the settings defaults
func (a *app) pipelines(path string) ([]config.PipelineSpec, []*pipeline.Pipeline, error) {
	specs, err := config.LoadPipelines(path)
	if err != nil {
		return nil, nil, err
	}
	out := make([]*pipeline.Pipeline, len(specs))
	for i := range specs {
		out[i] = specs[i].Pipeline(a.settings.Defaults)
	}
	return specs, out, nil
}

// Close stops background services in reverse start order
func (a *app) Close(ctx context.Context) error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i](ctx))
	}
	a.closers = nil
	_ = logger.Sync()
	return err
}

// printResults writes one summary line per run
func printResults(w io.Writer, results []*pipeline.Result) {
	for _, r := range results {
		if r == nil {
			continue
		}
		line := fmt.Sprintf("%-24s %-9s extracted=%d delivered=%d batches=%d skipped=%d pages=%d duration=%s",
			r.Pipeline, r.Status, r.Extracted, r.Delivered, r.Batches, r.SkippedBatches, r.Pages,
			r.Duration.Round(time.Millisecond))
		if r.StopReason != "" {
			line += " stop=" + r.StopReason
		}
		if r.Err != nil {
			line += fmt.Sprintf(" error=%q", r.Err.Error())
		}
		fmt.Fprintln(w, line)
	}
}
