package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/skywatchai/reportforge/pkg/domain"
)

// StageExecutor runs a single pipeline stage: it assembles the prompt from
// the stage template, the topic, and the accumulated upstream context, then
// performs one generation round-trip. It performs no retries; failure policy
// belongs to the orchestrator.
type StageExecutor struct {
	generator domain.Generator
	logger    *slog.Logger
}

// NewStageExecutor creates a stage executor over the given backend.
func NewStageExecutor(generator domain.Generator, logger *slog.Logger) *StageExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &StageExecutor{generator: generator, logger: logger}
}

// Execute produces the stage's output text. The upstream map must contain
// an entry for every stage named in stage.DependsOn; entries are serialized
// into the prompt in declared-dependency order so prompts are deterministic.
func (e *StageExecutor) Execute(ctx context.Context, stage domain.StageDefinition, topic string, temperature float64, upstream map[string]string) (string, error) {
	prompt := buildPrompt(stage, topic, upstream)

	start := time.Now()
	e.logger.Debug("executing stage",
		"stage", stage.Name,
		"topic", topic,
		"prompt_len", len(prompt),
		"upstream_stages", len(stage.DependsOn),
	)

	text, err := e.generator.Generate(ctx, prompt, temperature)
	if err != nil {
		var genErr *domain.GenerationError
		if errors.As(err, &genErr) && genErr.Stage == "" {
			genErr.Stage = stage.Name
			return "", err
		}
		return "", &domain.GenerationError{Stage: stage.Name, Err: err}
	}

	e.logger.Debug("stage complete",
		"stage", stage.Name,
		"output_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// buildPrompt lays out the role framing, the topic-substituted task
// description, the expected output, and the full text of every upstream
// stage in declared order. Downstream stages see raw upstream output, not a
// summary.
func buildPrompt(stage domain.StageDefinition, topic string, upstream map[string]string) string {
	sub := func(s string) string {
		return strings.ReplaceAll(s, domain.TopicPlaceholder, topic)
	}

	var sb strings.Builder
	if stage.Role != "" {
		sb.WriteString("You are a ")
		sb.WriteString(stage.Role)
		sb.WriteString(".\n\n")
	}
	sb.WriteString("TASK:\n")
	sb.WriteString(sub(stage.Template))
	if stage.ExpectedOutput != "" {
		sb.WriteString("\n\nEXPECTED OUTPUT:\n")
		sb.WriteString(sub(stage.ExpectedOutput))
	}
	for i, dep := range stage.DependsOn {
		if i == 0 {
			sb.WriteString("\n\nCONTEXT:")
		}
		sb.WriteString("\n\n--- ")
		sb.WriteString(dep)
		sb.WriteString(" ---\n")
		sb.WriteString(upstream[dep])
	}
	return sb.String()
}
