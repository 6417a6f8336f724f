package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatchai/reportforge/pkg/domain"
)

// echoGenerator returns the prompt it received, making prompt assembly
// observable from the outside.
type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, prompt string, _ float64) (string, error) {
	return prompt, nil
}

type failingGenerator struct{ err error }

func (f failingGenerator) Generate(context.Context, string, float64) (string, error) {
	return "", f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStageExecutor_SubstitutesTopic(t *testing.T) {
	ex := NewStageExecutor(echoGenerator{}, discardLogger())

	def := domain.StageDefinition{
		Name:           "research",
		Role:           "Astronomy Research Specialist",
		Template:       "Find the latest discoveries about {topic}.",
		ExpectedOutput: "Detailed list about {topic}.",
	}

	prompt, err := ex.Execute(context.Background(), def, "exoplanets", 0.7, nil)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Find the latest discoveries about exoplanets.")
	assert.Contains(t, prompt, "Detailed list about exoplanets.")
	assert.Contains(t, prompt, "Astronomy Research Specialist")
	assert.NotContains(t, prompt, domain.TopicPlaceholder)
}

func TestStageExecutor_ContextInDeclaredOrder(t *testing.T) {
	ex := NewStageExecutor(echoGenerator{}, discardLogger())

	def := domain.StageDefinition{
		Name:      "sink",
		Template:  "Compile a report on {topic}.",
		DependsOn: []string{"first", "second", "third"},
	}
	upstream := map[string]string{
		"third":  "gamma output",
		"first":  "alpha output",
		"second": "beta output",
	}

	prompt, err := ex.Execute(context.Background(), def, "comets", 0.7, upstream)
	require.NoError(t, err)

	// Full upstream text is present, serialized in declared-dependency order.
	iFirst := strings.Index(prompt, "alpha output")
	iSecond := strings.Index(prompt, "beta output")
	iThird := strings.Index(prompt, "gamma output")
	require.GreaterOrEqual(t, iFirst, 0)
	assert.Less(t, iFirst, iSecond)
	assert.Less(t, iSecond, iThird)
}

func TestStageExecutor_WrapsBackendFault(t *testing.T) {
	backendErr := errors.New("connection refused")
	ex := NewStageExecutor(failingGenerator{err: backendErr}, discardLogger())

	def := domain.StageDefinition{Name: "research", Template: "about {topic}"}
	_, err := ex.Execute(context.Background(), def, "comets", 0.7, nil)
	require.Error(t, err)

	var genErr *domain.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "research", genErr.Stage)
	assert.ErrorIs(t, err, backendErr)
}

func TestStageExecutor_AnnotatesStageOnTypedFault(t *testing.T) {
	ex := NewStageExecutor(failingGenerator{err: &domain.GenerationError{Err: errors.New("status 502")}}, discardLogger())

	def := domain.StageDefinition{Name: "observing", Template: "about {topic}"}
	_, err := ex.Execute(context.Background(), def, "comets", 0.7, nil)

	var genErr *domain.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "observing", genErr.Stage)
}
