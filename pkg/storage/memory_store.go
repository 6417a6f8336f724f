// Package storage provides job record persistence. The in-memory
// implementation is the reference store; durability is out of scope.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skywatchai/reportforge/pkg/domain"
)

// MemoryJobStore is an in-memory implementation of domain.JobStore.
//
// All transitions happen under the write lock and reads return copies, so a
// reader never observes a record mid-transition (e.g. completed status with
// an absent report).
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

// NewMemoryJobStore creates a new MemoryJobStore.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]*domain.Job),
		now:  time.Now,
	}
}

// Create inserts a new pending record.
func (s *MemoryJobStore) Create(_ context.Context, id, topic string, cfg domain.JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateJob, id)
	}
	s.jobs[id] = &domain.Job{
		ID:        id,
		Topic:     topic,
		Config:    cfg,
		Status:    domain.StatusPending,
		CreatedAt: s.now(),
	}
	return nil
}

// Get returns a copy of the record.
func (s *MemoryJobStore) Get(_ context.Context, id string) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return cloneJob(job), nil
}

// MarkRunning transitions pending -> running.
func (s *MemoryJobStore) MarkRunning(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", domain.ErrJobTerminal, id, job.Status)
	}
	job.Status = domain.StatusRunning
	job.StartedAt = s.now()
	return nil
}

// Complete transitions to completed with the report and rendered document.
func (s *MemoryJobStore) Complete(_ context.Context, id, report string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", domain.ErrJobTerminal, id, job.Status)
	}
	job.Status = domain.StatusCompleted
	job.Report = report
	job.Document = append([]byte(nil), doc...)
	job.FinishedAt = s.now()
	return nil
}

// Fail transitions to failed with a diagnostic message.
func (s *MemoryJobStore) Fail(_ context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", domain.ErrJobTerminal, id, job.Status)
	}
	job.Status = domain.StatusFailed
	job.Error = message
	job.FinishedAt = s.now()
	return nil
}

func cloneJob(job *domain.Job) domain.Job {
	out := *job
	out.Document = append([]byte(nil), job.Document...)
	return out
}
