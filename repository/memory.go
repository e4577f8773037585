package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"assembly-worker/constant"
	"assembly-worker/entities"
	"github.com/google/uuid"
)

// memoryStore keeps jobs in a map guarded by a mutex. Used by tests and when
// no postgresql_host is configured.
type memoryStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*entities.AssemblyJob
}

func NewMemoryStore() Store {
	return &memoryStore{jobs: make(map[uuid.UUID]*entities.AssemblyJob)}
}

func (m *memoryStore) CreateJob(_ context.Context, job *entities.AssemblyJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("assembly job %s already exists", job.ID)
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memoryStore) FindJobById(_ context.Context, id uuid.UUID) (*entities.AssemblyJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memoryStore) UpdateJob(_ context.Context, id uuid.UUID, mutate func(job *entities.AssemblyJob) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	cp := *job
	if err := mutate(&cp); err != nil {
		return err
	}
	cp.UpdatedAt = time.Now().UTC()
	m.jobs[id] = &cp
	return nil
}

func (m *memoryStore) ReapProcessing(_ context.Context, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var reaped int64
	for _, job := range m.jobs {
		if job.Status == constant.JobStatusProcessing {
			job.Status = constant.JobStatusFailed
			job.Error = reason
			job.UpdatedAt = time.Now().UTC()
			reaped++
		}
	}
	return reaped, nil
}
