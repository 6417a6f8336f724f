package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/skywatchai/reportforge/internal/governance"
	"github.com/skywatchai/reportforge/pkg/domain"
	"github.com/skywatchai/reportforge/pkg/telemetry"
)

const (
	// DefaultJobTimeout bounds one job's full pipeline run, render included.
	DefaultJobTimeout = 10 * time.Minute

	// DefaultMaxConcurrentStages caps parallel backend calls within one job
	// when simultaneously-eligible stages run concurrently.
	DefaultMaxConcurrentStages = 4
)

// GraphSource supplies the pipeline graph for new jobs. In-flight jobs keep
// the snapshot they started with.
type GraphSource interface {
	Current() *domain.PipelineGraph
}

type staticGraph struct {
	graph *domain.PipelineGraph
}

func (s staticGraph) Current() *domain.PipelineGraph { return s.graph }

// StaticGraph wraps a fixed pipeline graph as a GraphSource.
func StaticGraph(g *domain.PipelineGraph) GraphSource { return staticGraph{graph: g} }

// Orchestrator drives one job's pipeline from pending to a terminal state:
// it schedules stages in topological order, propagates stage output into
// downstream context, renders the final report, and is the sole writer of
// job status after creation. Errors never escape Run; a background caller
// has nothing to hand them to.
type Orchestrator struct {
	store      domain.JobStore
	executor   *StageExecutor
	renderer   domain.Renderer
	graphs     GraphSource
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	limiter    *governance.ConcurrencyLimiter
	jobTimeout time.Duration
	maxStages  int
}

// OrchestratorConfig holds dependencies for creating an Orchestrator.
type OrchestratorConfig struct {
	Store    domain.JobStore
	Executor *StageExecutor
	Renderer domain.Renderer
	Graphs   GraphSource
	Logger   *slog.Logger
	Metrics  *telemetry.Metrics

	// JobTimeout bounds a single job run. Zero means DefaultJobTimeout.
	JobTimeout time.Duration

	// MaxConcurrentStages caps in-flight stages per job in hierarchical
	// mode. Zero means DefaultMaxConcurrentStages.
	MaxConcurrentStages int

	// MaxConcurrentJobs caps pipelines executing at once across jobs.
	// Jobs over the cap stay pending until a slot frees. Zero means
	// unlimited.
	MaxConcurrentJobs int
}

// NewOrchestrator creates an orchestrator with the given configuration.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	maxStages := cfg.MaxConcurrentStages
	if maxStages <= 0 {
		maxStages = DefaultMaxConcurrentStages
	}
	return &Orchestrator{
		store:      cfg.Store,
		executor:   cfg.Executor,
		renderer:   cfg.Renderer,
		graphs:     cfg.Graphs,
		logger:     logger,
		metrics:    cfg.Metrics,
		limiter:    governance.NewConcurrencyLimiter(cfg.MaxConcurrentJobs),
		jobTimeout: timeout,
		maxStages:  maxStages,
	}
}

// Run executes the pipeline for the job and writes the terminal record.
// It is safe to call on a detached goroutine; panics are recovered into a
// failed record.
func (o *Orchestrator) Run(ctx context.Context, job domain.Job) {
	// The job stays pending while waiting for an execution slot; its
	// deadline only starts ticking once it holds one.
	if err := o.limiter.Acquire(ctx); err != nil {
		o.logger.Error("abandoned waiting for execution slot", "job_id", job.ID, "error", err)
		if failErr := o.store.Fail(context.WithoutCancel(ctx), job.ID, fmt.Sprintf("error generating report: %v", err)); failErr != nil {
			o.logger.Error("failed to record job failure", "job_id", job.ID, "error", failErr)
		}
		return
	}
	defer o.limiter.Release()

	start := time.Now()
	o.metrics.JobStarted()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("pipeline panicked", "job_id", job.ID, "panic", r)
			o.finish(ctx, job.ID, start, fmt.Sprintf("internal error: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, o.jobTimeout)
	defer cancel()

	tracer := otel.Tracer("reportforge.pipeline")
	var span trace.Span
	ctx, span = tracer.Start(ctx, "pipeline.execute", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.mode", string(job.Config.Mode)),
		attribute.Float64("job.temperature", job.Config.Temperature),
	))
	defer span.End()

	if err := o.store.MarkRunning(ctx, job.ID); err != nil {
		o.logger.Error("failed to mark job running", "job_id", job.ID, "error", err)
		o.metrics.JobFinished("failed", time.Since(start))
		return
	}

	graph := o.graphs.Current()
	o.logger.Info("executing pipeline",
		"job_id", job.ID,
		"pipeline", graph.Name,
		"topic", job.Topic,
		"mode", job.Config.Mode,
		"stages", len(graph.Stages),
	)

	report, err := o.executeGraph(ctx, tracer, graph, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.finish(ctx, job.ID, start, o.failureMessage(err))
		return
	}

	doc, err := o.renderDocument(ctx, tracer, report, job.Topic)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.finish(ctx, job.ID, start, o.failureMessage(err))
		return
	}

	if err := o.store.Complete(ctx, job.ID, report, doc); err != nil {
		o.logger.Error("failed to record completion", "job_id", job.ID, "error", err)
		o.metrics.JobFinished("failed", time.Since(start))
		return
	}

	o.metrics.JobFinished("completed", time.Since(start))
	o.logger.Info("pipeline complete",
		"job_id", job.ID,
		"report_len", len(report),
		"document_bytes", len(doc),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// executeGraph walks the topological batches, running each batch's stages
// sequentially or concurrently depending on the job's process mode, and
// returns the sink stage's output.
func (o *Orchestrator) executeGraph(ctx context.Context, tracer trace.Tracer, graph *domain.PipelineGraph, job domain.Job) (string, error) {
	batches, err := topologicalBatches(graph)
	if err != nil {
		return "", err
	}

	var mu sync.Mutex
	outputs := make(map[string]string, len(graph.Stages))

	for _, batch := range batches {
		if job.Config.Mode == domain.ModeSequential || len(batch) == 1 {
			for _, name := range batch {
				if err := o.runStage(ctx, tracer, graph, job, name, &mu, outputs); err != nil {
					return "", err
				}
			}
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.maxStages)
		for _, name := range batch {
			g.Go(func() error {
				return o.runStage(gctx, tracer, graph, job, name, &mu, outputs)
			})
		}
		if err := g.Wait(); err != nil {
			return "", err
		}
	}

	return outputs[graph.Sink().Name], nil
}

// runStage executes one stage and records its output into the job's
// execution context. Upstream entries are guaranteed present: dependencies
// always land in earlier batches.
func (o *Orchestrator) runStage(ctx context.Context, tracer trace.Tracer, graph *domain.PipelineGraph, job domain.Job, name string, mu *sync.Mutex, outputs map[string]string) error {
	stage, ok := graph.Stage(name)
	if !ok {
		return fmt.Errorf("%w: stage %q not found", domain.ErrInvalidPipeline, name)
	}

	mu.Lock()
	upstream := make(map[string]string, len(stage.DependsOn))
	for _, dep := range stage.DependsOn {
		upstream[dep] = outputs[dep]
	}
	mu.Unlock()

	stageCtx, span := tracer.Start(ctx, "pipeline.stage", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("stage.name", stage.Name),
	))
	defer span.End()

	start := time.Now()
	text, err := o.executor.Execute(stageCtx, stage, job.Topic, job.Config.Temperature, upstream)
	if err != nil {
		o.metrics.StageExecuted(stage.Name, "failure", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Error("stage failed", "job_id", job.ID, "stage", stage.Name, "error", err)
		return err
	}
	o.metrics.StageExecuted(stage.Name, "success", time.Since(start))

	mu.Lock()
	outputs[stage.Name] = text
	mu.Unlock()
	return nil
}

func (o *Orchestrator) renderDocument(ctx context.Context, tracer trace.Tracer, report, topic string) ([]byte, error) {
	_, span := tracer.Start(ctx, "pipeline.render")
	defer span.End()

	doc, err := o.renderer.Render(report, topic)
	if err != nil {
		o.metrics.RenderAttempted("failure")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	o.metrics.RenderAttempted("success")
	return doc, nil
}

// failureMessage builds the human-readable diagnostic stored in place of
// report text on a failed job.
func (o *Orchestrator) failureMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("pipeline timed out after %s: %v", o.jobTimeout, err)
	}
	return fmt.Sprintf("error generating report: %v", err)
}

// finish writes the failed terminal record. The failed path deliberately
// never exposes partial stage output.
func (o *Orchestrator) finish(ctx context.Context, jobID string, start time.Time, message string) {
	// The job's deadline may already be expired; the store write must not
	// be lost with it.
	if err := o.store.Fail(context.WithoutCancel(ctx), jobID, message); err != nil {
		o.logger.Error("failed to record job failure", "job_id", jobID, "error", err)
	}
	o.metrics.JobFinished("failed", time.Since(start))
	o.logger.Warn("pipeline failed", "job_id", jobID, "reason", message)
}
