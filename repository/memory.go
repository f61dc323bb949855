package repository

import (
	"context"
	"fmt"
	"sync"

	"adgen-jobs/constant"
	"adgen-jobs/entities"
)

type memoryRepo struct {
	mu   sync.RWMutex
	jobs []*entities.Job
}

// NewMemoryRepo returns a process-local repository. Records are lost on exit.
func NewMemoryRepo() JobRepository {
	return &memoryRepo{jobs: make([]*entities.Job, 0, 64)}
}

func (r *memoryRepo) Driver() constant.StorageDriver {
	return constant.StorageDriverMemory
}

func (r *memoryRepo) Create(ctx context.Context, job *entities.Job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(job.ID) >= 0 {
		storeFailed(ctx, "create", job.ID, fmt.Errorf("duplicate job id"))
		return false
	}
	r.jobs = append([]*entities.Job{job.Clone()}, r.jobs...)
	return true
}

func (r *memoryRepo) UpdateStatus(_ context.Context, id string, update entities.JobUpdate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return false
	}
	r.jobs[i].Apply(update, now())
	return true
}

func (r *memoryRepo) Get(_ context.Context, id string) (*entities.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.indexOf(id)
	if i < 0 {
		return nil, false
	}
	return r.jobs[i].Clone(), true
}

func (r *memoryRepo) ListByOwner(_ context.Context, ownerID string, limit int) []*entities.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entities.Job, 0)
	for _, job := range r.jobs {
		if len(out) >= limit {
			break
		}
		if job.OwnerID == ownerID {
			out = append(out, job.Clone())
		}
	}
	return out
}

func (r *memoryRepo) ListPending(_ context.Context) []*entities.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entities.Job, 0)
	for _, job := range r.jobs {
		if isPending(job) {
			out = append(out, job.Clone())
		}
	}
	return out
}

func (r *memoryRepo) Delete(_ context.Context, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return false
	}
	r.jobs = append(r.jobs[:i], r.jobs[i+1:]...)
	return true
}

func (r *memoryRepo) indexOf(id string) int {
	for i, job := range r.jobs {
		if job.ID == id {
			return i
		}
	}
	return -1
}
