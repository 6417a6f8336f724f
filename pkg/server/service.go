// Package server exposes the job submission and polling façade over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/skywatchai/reportforge/pkg/domain"
	"github.com/skywatchai/reportforge/pkg/engine"
)

// SubmitRequest carries a validated-on-entry submission.
type SubmitRequest struct {
	Topic string

	// Temperature is optional; nil selects the configured default.
	Temperature *float64

	// ProcessType is optional; empty selects hierarchical.
	ProcessType string
}

// Service creates job records and launches orchestration without blocking
// the caller. It is the sole creator of pending records; after submission it
// only ever reads the store.
type Service struct {
	store       domain.JobStore
	orch        *engine.Orchestrator
	logger      *slog.Logger
	defaultTemp float64
}

// NewService creates the façade.
func NewService(store domain.JobStore, orch *engine.Orchestrator, defaultTemp float64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		orch:        orch,
		logger:      logger,
		defaultTemp: defaultTemp,
	}
}

// Submit validates the request, creates the pending record, and hands the
// job to the orchestrator on its own goroutine. It returns as soon as the
// record exists, never once the pipeline finishes.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	cfg, err := s.jobConfig(req)
	if err != nil {
		return "", err
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return "", fmt.Errorf("%w: topic must not be empty", domain.ErrValidation)
	}

	// Random identifiers stay collision-free under concurrent submission,
	// unlike the coarse timestamps they replace.
	id := "task_" + uuid.NewString()
	if err := s.store.Create(ctx, id, topic, cfg); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("read back job: %w", err)
	}

	s.logger.Info("job submitted", "job_id", id, "topic", topic, "mode", cfg.Mode)

	// The pipeline outlives the HTTP request; detach from its context.
	go s.orch.Run(context.WithoutCancel(ctx), job)

	return id, nil
}

// Poll returns the job record; it never blocks on orchestration.
func (s *Service) Poll(ctx context.Context, id string) (domain.Job, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) jobConfig(req SubmitRequest) (domain.JobConfig, error) {
	temp := s.defaultTemp
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	if temp < 0 || temp > 2 {
		return domain.JobConfig{}, fmt.Errorf("%w: temperature must be in [0, 2], got %g", domain.ErrValidation, temp)
	}

	mode := domain.ModeHierarchical
	if req.ProcessType != "" {
		mode = domain.ProcessMode(strings.ToLower(req.ProcessType))
		if !mode.Valid() {
			return domain.JobConfig{}, fmt.Errorf("%w: unknown process_type %q", domain.ErrValidation, req.ProcessType)
		}
	}
	return domain.JobConfig{Temperature: temp, Mode: mode}, nil
}
