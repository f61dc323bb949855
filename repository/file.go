package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"adgen-jobs/constant"
	"adgen-jobs/entities"
)

type jobsDocument struct {
	Jobs []*entities.Job `json:"jobs"`
}

// fileRepo keeps every job in a single JSON document. Each write is a full
// read-modify-write under mu, persisted through a temp file and rename so a
// reader never observes a truncated document.
type fileRepo struct {
	path string
	mu   sync.RWMutex
}

func NewFileRepo(path string) (JobRepository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("job store: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("job store: ensure directory: %w", err)
		}
	}
	return &fileRepo{path: path}, nil
}

func (r *fileRepo) Driver() constant.StorageDriver {
	return constant.StorageDriverFile
}

func (r *fileRepo) Create(ctx context.Context, job *entities.Job) bool {
	ok, err := r.mutate(func(doc *jobsDocument) (bool, error) {
		for _, existing := range doc.Jobs {
			if existing.ID == job.ID {
				return false, fmt.Errorf("duplicate job id")
			}
		}
		doc.Jobs = append([]*entities.Job{job.Clone()}, doc.Jobs...)
		return true, nil
	})
	if err != nil {
		storeFailed(ctx, "create", job.ID, err)
		return false
	}
	return ok
}

func (r *fileRepo) UpdateStatus(ctx context.Context, id string, update entities.JobUpdate) bool {
	ok, err := r.mutate(func(doc *jobsDocument) (bool, error) {
		for _, job := range doc.Jobs {
			if job.ID == id {
				return job.Apply(update, now()), nil
			}
		}
		return false, nil
	})
	if err != nil {
		storeFailed(ctx, "update_status", id, err)
		return false
	}
	if !ok {
		// Either unknown, or frozen and left untouched.
		_, found := r.Get(ctx, id)
		return found
	}
	return true
}

func (r *fileRepo) Get(ctx context.Context, id string) (*entities.Job, bool) {
	doc, err := r.read()
	if err != nil {
		storeFailed(ctx, "get", id, err)
		return nil, false
	}
	for _, job := range doc.Jobs {
		if job.ID == id {
			return job, true
		}
	}
	return nil, false
}

func (r *fileRepo) ListByOwner(ctx context.Context, ownerID string, limit int) []*entities.Job {
	doc, err := r.read()
	if err != nil {
		storeFailed(ctx, "list_by_owner", "", err)
		return []*entities.Job{}
	}
	out := make([]*entities.Job, 0)
	for _, job := range doc.Jobs {
		if len(out) >= limit {
			break
		}
		if job.OwnerID == ownerID {
			out = append(out, job)
		}
	}
	return out
}

func (r *fileRepo) ListPending(ctx context.Context) []*entities.Job {
	doc, err := r.read()
	if err != nil {
		storeFailed(ctx, "list_pending", "", err)
		return []*entities.Job{}
	}
	out := make([]*entities.Job, 0)
	for _, job := range doc.Jobs {
		if isPending(job) {
			out = append(out, job)
		}
	}
	return out
}

func (r *fileRepo) Delete(ctx context.Context, id string) bool {
	ok, err := r.mutate(func(doc *jobsDocument) (bool, error) {
		for i, job := range doc.Jobs {
			if job.ID == id {
				doc.Jobs = append(doc.Jobs[:i], doc.Jobs[i+1:]...)
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		storeFailed(ctx, "delete", id, err)
		return false
	}
	return ok
}

func (r *fileRepo) read() (*jobsDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.load()
}

// mutate runs fn over a freshly loaded document and persists the result when
// fn reports a change.
func (r *fileRepo) mutate(fn func(doc *jobsDocument) (bool, error)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return false, err
	}
	changed, err := fn(doc)
	if err != nil || !changed {
		return false, err
	}
	if err := r.save(doc); err != nil {
		return false, err
	}
	return true, nil
}

func (r *fileRepo) load() (*jobsDocument, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &jobsDocument{Jobs: []*entities.Job{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.path, err)
	}
	doc := &jobsDocument{}
	if len(data) == 0 {
		doc.Jobs = []*entities.Job{}
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.path, err)
	}
	if doc.Jobs == nil {
		doc.Jobs = []*entities.Job{}
	}
	return doc, nil
}

func (r *fileRepo) save(doc *jobsDocument) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(r.path), "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err = enc.Encode(doc); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode jobs: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replace %s: %w", r.path, err)
	}
	return nil
}
