package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrJobNotFound     = errors.New("job not found")
	ErrDuplicateJob    = errors.New("job already exists")
	ErrJobTerminal     = errors.New("job already in terminal state")
	ErrInvalidPipeline = errors.New("invalid pipeline")
	ErrValidation      = errors.New("invalid request")
)

// GenerationError reports a text-generation backend fault during a stage.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("generation failed at stage %q: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// RenderError reports a document-assembly fault after the pipeline completed.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string { return fmt.Sprintf("render failed: %v", e.Err) }

func (e *RenderError) Unwrap() error { return e.Err }
