// Package engine contains the asynchronous pipeline execution core: stage
// scheduling over the dependency graph, prompt assembly and backend
// invocation per stage, context propagation between stages, and job
// lifecycle transitions in the store.
package engine
