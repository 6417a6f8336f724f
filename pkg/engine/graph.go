package engine

import (
	"fmt"

	"github.com/skywatchai/reportforge/pkg/domain"
)

// topologicalBatches computes the execution schedule for the graph using
// Kahn's algorithm. Each batch holds the stages that are simultaneously
// eligible (all upstream stages already scheduled); within a batch, stages
// appear in declaration order so the schedule is reproducible.
//
// A sequential walk flattens the batches; a concurrent scheduler may run the
// members of one batch in parallel.
func topologicalBatches(g *domain.PipelineGraph) ([][]string, error) {
	indegree := make(map[string]int, len(g.Stages))
	for _, s := range g.Stages {
		indegree[s.Name] = len(s.DependsOn)
	}

	scheduled := 0
	donePrev := make(map[string]bool, len(g.Stages))
	var batches [][]string
	for scheduled < len(g.Stages) {
		var batch []string
		for _, s := range g.Stages {
			if !donePrev[s.Name] && indegree[s.Name] == 0 {
				batch = append(batch, s.Name)
			}
		}
		if len(batch) == 0 {
			return nil, fmt.Errorf("%w: dependency cycle, %d of %d stages schedulable",
				domain.ErrInvalidPipeline, scheduled, len(g.Stages))
		}
		for _, name := range batch {
			donePrev[name] = true
			scheduled++
		}
		// Release the dependents of everything in this batch.
		for _, s := range g.Stages {
			if donePrev[s.Name] {
				continue
			}
			for _, dep := range s.DependsOn {
				if contains(batch, dep) {
					indegree[s.Name]--
				}
			}
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
