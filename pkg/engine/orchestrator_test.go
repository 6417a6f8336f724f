package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatchai/reportforge/pkg/domain"
	"github.com/skywatchai/reportforge/pkg/storage"
)

// scriptedGenerator identifies the executing stage by the "[name]" marker in
// its template and answers "<stage>:<topic>", recording every prompt. It can
// fail on a chosen stage, delay each call, and track call concurrency.
type scriptedGenerator struct {
	stages []string
	failOn string
	delay  time.Duration

	mu        sync.Mutex
	prompts   []string
	active    int
	maxActive int
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string, _ float64) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.active++
	if g.active > g.maxActive {
		g.maxActive = g.active
	}
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.active--
		g.mu.Unlock()
	}()

	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", &domain.GenerationError{Err: ctx.Err()}
		}
	}

	stage := ""
	for _, name := range g.stages {
		if strings.Contains(prompt, "["+name+"]") {
			stage = name
			break
		}
	}
	if stage == g.failOn {
		return "", &domain.GenerationError{Err: fmt.Errorf("backend rejected request")}
	}
	topic := ""
	if i := strings.Index(prompt, "topic="); i >= 0 {
		rest := prompt[i+len("topic="):]
		topic = rest[:strings.Index(rest, ";")]
	}
	return stage + ":" + topic, nil
}

func (g *scriptedGenerator) promptFor(stage string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.prompts {
		if strings.Contains(p, "["+stage+"]") {
			return p
		}
	}
	return ""
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type fakeRenderer struct {
	err error
}

func (r *fakeRenderer) Render(report, title string) ([]byte, error) {
	if r.err != nil {
		return nil, &domain.RenderError{Err: r.err}
	}
	return []byte("PDF:" + title + ":" + report), nil
}

// chainGraph is the 4-stage reference shape: s2<-s1, s3<-s2, s4<-{s1,s2,s3}.
func chainGraph() (*domain.PipelineGraph, []string) {
	names := []string{"s1", "s2", "s3", "s4"}
	g := &domain.PipelineGraph{
		Name: "test-chain",
		Stages: []domain.StageDefinition{
			{Name: "s1", Template: "research topic={topic}; [s1]"},
			{Name: "s2", Template: "analyze topic={topic}; [s2]", DependsOn: []string{"s1"}},
			{Name: "s3", Template: "review topic={topic}; [s3]", DependsOn: []string{"s2"}},
			{Name: "s4", Template: "compile topic={topic}; [s4]", DependsOn: []string{"s1", "s2", "s3"}},
		},
	}
	return g, names
}

func diamondGraph() (*domain.PipelineGraph, []string) {
	names := []string{"root", "left", "right", "sink"}
	g := &domain.PipelineGraph{
		Name: "test-diamond",
		Stages: []domain.StageDefinition{
			{Name: "root", Template: "scope topic={topic}; [root]"},
			{Name: "left", Template: "branch topic={topic}; [left]", DependsOn: []string{"root"}},
			{Name: "right", Template: "branch topic={topic}; [right]", DependsOn: []string{"root"}},
			{Name: "sink", Template: "merge topic={topic}; [sink]", DependsOn: []string{"left", "right"}},
		},
	}
	return g, names
}

type testHarness struct {
	store *storage.MemoryJobStore
	orch  *Orchestrator
}

func newHarness(t *testing.T, gen domain.Generator, rend domain.Renderer, graph *domain.PipelineGraph, timeout time.Duration) *testHarness {
	t.Helper()
	require.NoError(t, graph.Validate())

	store := storage.NewMemoryJobStore()
	orch := NewOrchestrator(OrchestratorConfig{
		Store:      store,
		Executor:   NewStageExecutor(gen, discardLogger()),
		Renderer:   rend,
		Graphs:     StaticGraph(graph),
		Logger:     discardLogger(),
		JobTimeout: timeout,
	})
	return &testHarness{store: store, orch: orch}
}

func (h *testHarness) runJob(t *testing.T, id, topic string, mode domain.ProcessMode) domain.Job {
	t.Helper()
	ctx := context.Background()
	cfg := domain.JobConfig{Temperature: 0.7, Mode: mode}
	require.NoError(t, h.store.Create(ctx, id, topic, cfg))

	job, err := h.store.Get(ctx, id)
	require.NoError(t, err)
	h.orch.Run(ctx, job)

	final, err := h.store.Get(ctx, id)
	require.NoError(t, err)
	return final
}

func TestOrchestrator_ChainPropagatesFullContext(t *testing.T) {
	graph, names := chainGraph()
	gen := &scriptedGenerator{stages: names}
	h := newHarness(t, gen, &fakeRenderer{}, graph, time.Minute)

	job := h.runJob(t, "job-1", "exoplanets", domain.ModeSequential)

	require.Equal(t, domain.StatusCompleted, job.Status)
	assert.Equal(t, "s4:exoplanets", job.Report)
	assert.NotEmpty(t, job.Document)
	assert.Empty(t, job.Error)

	// s2 sees exactly s1's completed output.
	assert.Contains(t, gen.promptFor("s2"), "s1:exoplanets")

	// The sink sees all three upstream outputs, in declared order.
	sinkPrompt := gen.promptFor("s4")
	i1 := strings.Index(sinkPrompt, "s1:exoplanets")
	i2 := strings.Index(sinkPrompt, "s2:exoplanets")
	i3 := strings.Index(sinkPrompt, "s3:exoplanets")
	require.GreaterOrEqual(t, i1, 0)
	assert.Less(t, i1, i2)
	assert.Less(t, i2, i3)
}

func TestOrchestrator_PollingTerminalJobIsIdempotent(t *testing.T) {
	graph, names := chainGraph()
	gen := &scriptedGenerator{stages: names}
	h := newHarness(t, gen, &fakeRenderer{}, graph, time.Minute)

	h.runJob(t, "job-1", "exoplanets", domain.ModeSequential)

	first, err := h.store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	second, err := h.store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestOrchestrator_StageFailureStopsScheduling(t *testing.T) {
	graph, names := chainGraph()
	gen := &scriptedGenerator{stages: names, failOn: "s2"}
	h := newHarness(t, gen, &fakeRenderer{}, graph, time.Minute)

	job := h.runJob(t, "job-1", "quasars", domain.ModeSequential)

	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "s2")
	assert.Contains(t, job.Error, "backend rejected request")
	// No partial report is exposed.
	assert.Empty(t, job.Report)
	assert.Empty(t, job.Document)
	// Stages s3 and s4 were never invoked.
	assert.Equal(t, 2, gen.callCount())
}

func TestOrchestrator_RenderFailureFailsJob(t *testing.T) {
	graph, names := chainGraph()
	gen := &scriptedGenerator{stages: names}
	h := newHarness(t, gen, &fakeRenderer{err: fmt.Errorf("malformed markup")}, graph, time.Minute)

	job := h.runJob(t, "job-1", "nebulae", domain.ModeSequential)

	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "render failed")
	assert.Contains(t, job.Error, "malformed markup")
	assert.Empty(t, job.Report)
}

func TestOrchestrator_TimeoutFailsJob(t *testing.T) {
	graph, names := chainGraph()
	gen := &scriptedGenerator{stages: names, delay: 500 * time.Millisecond}
	h := newHarness(t, gen, &fakeRenderer{}, graph, 30*time.Millisecond)

	job := h.runJob(t, "job-1", "comets", domain.ModeSequential)

	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "timed out")
}

func TestOrchestrator_PanicRecoveredIntoFailedRecord(t *testing.T) {
	graph, _ := chainGraph()
	gen := panickingGenerator{}
	h := newHarness(t, gen, &fakeRenderer{}, graph, time.Minute)

	job := h.runJob(t, "job-1", "meteors", domain.ModeSequential)

	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "internal error")
}

type panickingGenerator struct{}

func (panickingGenerator) Generate(context.Context, string, float64) (string, error) {
	panic("backend client state corrupted")
}

func TestOrchestrator_ConcurrentJobsDoNotShareContext(t *testing.T) {
	graph, names := chainGraph()
	gen := &scriptedGenerator{stages: names, delay: 10 * time.Millisecond}
	h := newHarness(t, gen, &fakeRenderer{}, graph, time.Minute)

	ctx := context.Background()
	cfg := domain.JobConfig{Temperature: 0.7, Mode: domain.ModeSequential}
	require.NoError(t, h.store.Create(ctx, "job-mars", "mars", cfg))
	require.NoError(t, h.store.Create(ctx, "job-venus", "venus", cfg))

	var wg sync.WaitGroup
	for _, id := range []string{"job-mars", "job-venus"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := h.store.Get(ctx, id)
			require.NoError(t, err)
			h.orch.Run(ctx, job)
		}()
	}
	wg.Wait()

	mars, err := h.store.Get(ctx, "job-mars")
	require.NoError(t, err)
	venus, err := h.store.Get(ctx, "job-venus")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, mars.Status)
	assert.Equal(t, domain.StatusCompleted, venus.Status)
	assert.Equal(t, "s4:mars", mars.Report)
	assert.Equal(t, "s4:venus", venus.Report)

	// No prompt mixes the two jobs' topics.
	gen.mu.Lock()
	defer gen.mu.Unlock()
	for _, p := range gen.prompts {
		if strings.Contains(p, "topic=mars;") {
			assert.NotContains(t, p, "venus")
		}
		if strings.Contains(p, "topic=venus;") {
			assert.NotContains(t, p, "mars")
		}
	}
}

func TestOrchestrator_JobCapSerializesPipelines(t *testing.T) {
	graph, names := chainGraph()
	gen := &scriptedGenerator{stages: names, delay: 10 * time.Millisecond}

	store := storage.NewMemoryJobStore()
	orch := NewOrchestrator(OrchestratorConfig{
		Store:             store,
		Executor:          NewStageExecutor(gen, discardLogger()),
		Renderer:          &fakeRenderer{},
		Graphs:            StaticGraph(graph),
		Logger:            discardLogger(),
		JobTimeout:        time.Minute,
		MaxConcurrentJobs: 1,
	})

	ctx := context.Background()
	cfg := domain.JobConfig{Temperature: 0.7, Mode: domain.ModeSequential}
	var wg sync.WaitGroup
	for _, id := range []string{"job-a", "job-b", "job-c"} {
		require.NoError(t, store.Create(ctx, id, "ceres", cfg))
		job, err := store.Get(ctx, id)
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			orch.Run(ctx, job)
		}()
	}
	wg.Wait()

	// Only one pipeline held the execution slot at a time.
	assert.Equal(t, 1, gen.maxActive)
	for _, id := range []string{"job-a", "job-b", "job-c"} {
		job, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, job.Status)
	}
}

func TestOrchestrator_HierarchicalRunsEligibleStagesConcurrently(t *testing.T) {
	graph, names := diamondGraph()
	gen := &scriptedGenerator{stages: names, delay: 50 * time.Millisecond}
	h := newHarness(t, gen, &fakeRenderer{}, graph, time.Minute)

	job := h.runJob(t, "job-1", "saturn", domain.ModeHierarchical)

	require.Equal(t, domain.StatusCompleted, job.Status)
	assert.GreaterOrEqual(t, gen.maxActive, 2, "left and right should overlap")

	sinkPrompt := gen.promptFor("sink")
	assert.Contains(t, sinkPrompt, "left:saturn")
	assert.Contains(t, sinkPrompt, "right:saturn")
}

func TestOrchestrator_SequentialSerializesEligibleStages(t *testing.T) {
	graph, names := diamondGraph()
	gen := &scriptedGenerator{stages: names, delay: 20 * time.Millisecond}
	h := newHarness(t, gen, &fakeRenderer{}, graph, time.Minute)

	job := h.runJob(t, "job-1", "saturn", domain.ModeSequential)

	require.Equal(t, domain.StatusCompleted, job.Status)
	assert.Equal(t, 1, gen.maxActive)
}
