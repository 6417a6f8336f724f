package domain

import (
	"context"
	"fmt"
	"strings"
)

// StageDefinition is one unit of text generation in the pipeline: a prompt
// template plus the identities of the upstream stages whose output becomes
// its context. Stage definitions are static configuration, not runtime
// entities; only the topic is substituted per job.
type StageDefinition struct {
	// Name identifies the stage within the graph.
	Name string `yaml:"name"`

	// Role frames the prompt (e.g. "Astronomy Research Specialist").
	Role string `yaml:"role"`

	// Template is the task description with a {topic} placeholder.
	Template string `yaml:"template"`

	// ExpectedOutput describes the desired result. Used only for prompt
	// construction, never enforced at runtime.
	ExpectedOutput string `yaml:"expected_output"`

	// DependsOn lists upstream stage names. Declaration order is
	// significant: upstream context is serialized in this order.
	DependsOn []string `yaml:"depends_on"`
}

// PipelineGraph is the acyclic set of stage definitions and their dependency
// edges, fixed per deployment. Stage declaration order doubles as the
// deterministic tie-break when several stages are simultaneously eligible.
type PipelineGraph struct {
	Name   string            `yaml:"name"`
	Stages []StageDefinition `yaml:"stages"`
}

// Stage returns the definition with the given name.
func (g *PipelineGraph) Stage(name string) (StageDefinition, bool) {
	for _, s := range g.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageDefinition{}, false
}

// Sink returns the stage no other stage depends on: its output is the
// canonical report text. Validate guarantees exactly one exists.
func (g *PipelineGraph) Sink() StageDefinition {
	dependedOn := make(map[string]bool, len(g.Stages))
	for _, s := range g.Stages {
		for _, dep := range s.DependsOn {
			dependedOn[dep] = true
		}
	}
	for _, s := range g.Stages {
		if !dependedOn[s.Name] {
			return s
		}
	}
	return StageDefinition{}
}

// Validate checks the structural invariants of the graph: non-emptiness,
// unique stage names, known dependencies, no self-dependency, acyclicity,
// and a single sink stage.
func (g *PipelineGraph) Validate() error {
	if len(g.Stages) == 0 {
		return fmt.Errorf("%w: pipeline has no stages", ErrInvalidPipeline)
	}

	byName := make(map[string]StageDefinition, len(g.Stages))
	for _, s := range g.Stages {
		if s.Name == "" {
			return fmt.Errorf("%w: stage with empty name", ErrInvalidPipeline)
		}
		if !strings.Contains(s.Template, TopicPlaceholder) {
			return fmt.Errorf("%w: stage %q template lacks %s placeholder", ErrInvalidPipeline, s.Name, TopicPlaceholder)
		}
		if _, dup := byName[s.Name]; dup {
			return fmt.Errorf("%w: duplicate stage %q", ErrInvalidPipeline, s.Name)
		}
		byName[s.Name] = s
	}

	sinks := 0
	dependedOn := make(map[string]bool, len(g.Stages))
	for _, s := range g.Stages {
		for _, dep := range s.DependsOn {
			if dep == s.Name {
				return fmt.Errorf("%w: stage %q depends on itself", ErrInvalidPipeline, s.Name)
			}
			if _, ok := byName[dep]; !ok {
				return fmt.Errorf("%w: stage %q depends on unknown stage %q", ErrInvalidPipeline, s.Name, dep)
			}
			dependedOn[dep] = true
		}
	}
	for _, s := range g.Stages {
		if !dependedOn[s.Name] {
			sinks++
		}
	}
	if sinks != 1 {
		return fmt.Errorf("%w: expected exactly one sink stage, found %d", ErrInvalidPipeline, sinks)
	}

	// DFS cycle check over the dependency edges.
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(g.Stages))
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("%w: cycle through stage %q", ErrInvalidPipeline, name)
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range byName[name].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}
	for _, s := range g.Stages {
		if err := visit(s.Name); err != nil {
			return err
		}
	}
	return nil
}

// TopicPlaceholder is the substitution slot in stage templates.
const TopicPlaceholder = "{topic}"

// Generator is the text-generation backend collaborator.
type Generator interface {
	// Generate produces text for the prompt at the given sampling
	// temperature. Backend or network faults are reported as a
	// *GenerationError.
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}

// Renderer paginates report text into a downloadable document.
type Renderer interface {
	// Render returns the document bytes for the report under the given
	// title. Malformed input is reported as a *RenderError.
	Render(report, title string) ([]byte, error)
}
