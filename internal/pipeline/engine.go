package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ajitpratap0/relay/pkg/connector/core"
	"github.com/ajitpratap0/relay/pkg/connector/registry"
	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/ajitpratap0/relay/pkg/logger"
	"github.com/ajitpratap0/relay/pkg/metrics"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/ajitpratap0/relay/pkg/retry"
	"github.com/ajitpratap0/relay/pkg/transform"
	"github.com/ajitpratap0/relay/pkg/vault"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const tracerName = "github.com/ajitpratap0/relay/internal/pipeline"

// CredentialResolver resolves a credential id, refreshing it when needed
type CredentialResolver interface {
	Resolve(ctx context.Context, id string) (*vault.Credential, error)
}

// Engine executes pipelines. It is safe for concurrent use; every run owns
// its adapter instances.
type Engine struct {
	registry    *registry.Registry
	credentials CredentialResolver
	logger      *zap.Logger
	tracer      trace.Tracer
	sleep       retry.Sleeper
	now         func() time.Time
	concurrency int
}

// Option configures an Engine
type Option func(*Engine)

// WithRegistry sets the adapter registry; the global registry is the default
func WithRegistry(r *registry.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithLogger sets the engine logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracer sets the tracer used for run and phase spans
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithSleeper replaces the wait between retry attempts
func WithSleeper(s retry.Sleeper) Option {
	return func(e *Engine) { e.sleep = s }
}

// WithClock replaces the clock used for extraction timeouts
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithConcurrency bounds the number of runs RunAll executes at once
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

// NewEngine creates an engine resolving credentials through creds
func NewEngine(creds CredentialResolver, opts ...Option) *Engine {
	e := &Engine{
		registry:    registry.GetRegistry(),
		credentials: creds,
		logger:      logger.Get(),
		tracer:      otel.Tracer(tracerName),
		sleep:       retry.Sleep,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "pipeline_engine"))
	return e
}

// run holds the state of one execution
type run struct {
	engine   *Engine
	pipeline *Pipeline
	result   *Result
	logger   *zap.Logger
	limiter  *rate.Limiter
	executor *retry.Executor

	source core.Adapter
	target core.Adapter
}

// Run executes p once. The returned error is non-nil when the run failed and
// the failure must surface: configuration and credential errors always do,
// operational errors only when the policy fails on error. The Result is
// always returned.
func (e *Engine) Run(ctx context.Context, p *Pipeline) (*Result, error) {
	runID := uuid.NewString()
	res := &Result{RunID: runID, Pipeline: p.Name}

	ctx = context.WithValue(ctx, logger.RunIDKey, runID)
	ctx = context.WithValue(ctx, logger.PipelineKey, p.Name)

	ctx, span := e.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("pipeline", p.Name),
		attribute.String("run_id", runID),
	))
	defer span.End()

	r := &run{
		engine:   e,
		pipeline: p,
		result:   res,
		logger:   logger.FromContext(ctx, e.logger),
		executor: retry.NewExecutor(p.ErrorHandling).WithSleeper(e.sleep),
	}
	if rps := p.RateLimiting.RequestsPerSecond; rps > 0 && !math.IsInf(rps, 1) {
		r.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()
	timer := metrics.NewTimer(p.Name)

	r.emit(models.NewEvent(models.EventStart, fmt.Sprintf("pipeline %s started", p.Name)))

	err := r.execute(ctx)
	if err != nil {
		r.emit(models.NewEvent(models.EventError, err.Error()))
		span.RecordError(err)
	}

	// cleanup must run even if the caller cancelled
	r.cleanup(context.WithoutCancel(ctx))

	res.Duration = timer.Stop()
	metrics.RunDuration.WithLabelValues(p.Name).Observe(res.Duration.Seconds())

	if err != nil {
		res.Err = err
		if errors.IsFatal(err) || p.ErrorHandling.FailOnError {
			res.Status = StatusFailed
			span.SetStatus(codes.Error, err.Error())
			metrics.PipelineRuns.WithLabelValues(p.Name, string(StatusFailed)).Inc()
			return res, err
		}
		r.logger.Warn("run failure swallowed by policy", zap.Error(err))
	}

	res.Status = StatusCompleted
	status := string(StatusCompleted)
	if res.Halted {
		status = "halted"
	}
	metrics.PipelineRuns.WithLabelValues(p.Name, status).Inc()
	r.emit(models.NewEvent(models.EventComplete, fmt.Sprintf("pipeline %s completed", p.Name)).WithCount(res.Delivered))
	return res, nil
}

func (r *run) execute(ctx context.Context) error {
	p := r.pipeline
	if err := validate(p); err != nil {
		return err
	}

	var records []models.Record
	if p.Source != nil {
		extracted, err := r.extract(ctx)
		if err != nil {
			return err
		}
		records = extracted

		if len(p.Source.Transforms) > 0 {
			_, span := r.engine.tracer.Start(ctx, "pipeline.transform")
			records = transform.New(r.logger).Apply(p.Source.Transforms, records)
			span.End()
			r.emit(models.NewEvent(models.EventTransform,
				fmt.Sprintf("applied %d transform operations", len(p.Source.Transforms))).WithCount(len(records)))
		}
	} else {
		records = p.Data
		r.result.Extracted = len(records)
		r.emit(models.NewEvent(models.EventExtract, "using inline dataset").WithCount(len(records)))
	}

	if p.Hooks.OnLoad != nil {
		p.Hooks.OnLoad(records)
	}

	if p.Target == nil {
		return nil
	}

	if p.Hooks.OnBeforeSend != nil {
		replaced, proceed := p.Hooks.OnBeforeSend(records)
		if !proceed {
			r.result.Halted = true
			r.emit(models.NewEvent(models.EventInfo,
				fmt.Sprintf("%s: delivery halted by pre-send hook", errors.ErrorTypeHalted)))
			return nil
		}
		if replaced != nil {
			records = replaced
		}
	}

	return r.load(ctx, records)
}

func validate(p *Pipeline) error {
	hasSource := p.Source != nil
	hasData := p.Data != nil
	switch {
	case !hasSource && !hasData:
		return errors.New(errors.ErrorTypeConfig, "pipeline needs a source connector or inline data")
	case hasSource && hasData:
		return errors.New(errors.ErrorTypeConfig, "pipeline cannot have both a source connector and inline data")
	}
	return nil
}

// open resolves the connector credential, creates its adapter and connects it.
// The adapter is returned even when Connect fails so cleanup can release it.
func (r *run) open(ctx context.Context, conn *models.Connector) (core.Adapter, error) {
	var cred *vault.Credential
	if conn.Credential != "" {
		if r.engine.credentials == nil {
			return nil, errors.New(errors.ErrorTypeCredentialsNotFound, "no credential resolver configured").
				WithDetail("credential", conn.Credential)
		}
		c, err := r.engine.credentials.Resolve(ctx, conn.Credential)
		if err != nil {
			return nil, err
		}
		cred = c
	}

	adapter, err := r.engine.registry.Create(conn, cred)
	if err != nil {
		return nil, err
	}

	if c, ok := adapter.(core.Connector); ok {
		if err := c.Connect(ctx); err != nil {
			return adapter, errors.Wrap(err, errors.ErrorTypeUpstream, fmt.Sprintf("failed to connect adapter %s", conn.Adapter)).
				WithDetail("adapter", conn.Adapter)
		}
	}
	return adapter, nil
}

// wait paces adapter calls with a token bucket of one
func (r *run) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeUpstream, "rate limiter wait interrupted")
	}
	return nil
}

func (r *run) attemptFailure(phase string) retry.AttemptFailure {
	attempts := r.executor.Policy().Attempts()
	return func(attempt int, err error) {
		metrics.RetryAttempts.WithLabelValues(r.pipeline.Name, phase).Inc()
		r.emit(models.NewEvent(models.EventError,
			fmt.Sprintf("%s attempt %d/%d failed: %v", phase, attempt, attempts, err)))
	}
}

func (r *run) emit(ev models.Event) {
	fields := []zap.Field{zap.String("event", string(ev.Type))}
	if ev.Count != nil {
		fields = append(fields, zap.Int("count", *ev.Count))
	}
	if ev.Type == models.EventError {
		r.logger.Error(ev.Message, fields...)
	} else {
		r.logger.Info(ev.Message, fields...)
	}

	if hook := r.pipeline.Hooks.Logging; hook != nil {
		hook(ev)
	}
}

// cleanup disconnects the source then the target. Failures are logged only.
func (r *run) cleanup(ctx context.Context) {
	for _, a := range []core.Adapter{r.source, r.target} {
		if a == nil {
			continue
		}
		d, ok := a.(core.Disconnector)
		if !ok {
			continue
		}
		if err := d.Disconnect(ctx); err != nil {
			r.logger.Warn("failed to disconnect adapter",
				zap.String("adapter", a.Descriptor().ID),
				zap.Error(err))
			r.emit(models.NewEvent(models.EventInfo,
				fmt.Sprintf("cleanup: disconnect %s failed: %v", a.Descriptor().ID, err)))
		}
	}
}
