package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"adgen-jobs/config"
	"adgen-jobs/constant"
	"adgen-jobs/entities"
)

// JobRepository is the durable record of generation jobs. Failures never
// cross this boundary: implementations log the cause and report false.
type JobRepository interface {
	Create(ctx context.Context, job *entities.Job) bool
	// UpdateStatus applies a partial update. Updates to a job that already
	// carries completedAt are silently dropped and still report true.
	UpdateStatus(ctx context.Context, id string, update entities.JobUpdate) bool
	Get(ctx context.Context, id string) (*entities.Job, bool)
	ListByOwner(ctx context.Context, ownerID string, limit int) []*entities.Job
	ListPending(ctx context.Context) []*entities.Job
	Delete(ctx context.Context, id string) bool
	Driver() constant.StorageDriver
}

// Open builds the repository selected by cfg.Jobs.Driver.
func Open(cfg *config.Config) (JobRepository, error) {
	switch cfg.Jobs.Driver {
	case constant.StorageDriverMemory:
		return NewMemoryRepo(), nil
	case constant.StorageDriverPostgres:
		if cfg.DB == nil {
			return nil, fmt.Errorf("storage driver %q requires postgresql_host", cfg.Jobs.Driver)
		}
		return NewPostgresRepo(cfg.DB)
	case constant.StorageDriverFile, "":
		return NewFileRepo(cfg.Jobs.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Jobs.Driver)
	}
}

func now() time.Time {
	return time.Now().UTC()
}

func isPending(job *entities.Job) bool {
	return job.Status == constant.JobStatusPending || job.Status == constant.JobStatusProcessing
}

func storeFailed(ctx context.Context, op, id string, err error) {
	zerolog.Ctx(ctx).Error().Err(err).Str("op", op).Str("job_id", id).Msg("job store operation failed")
}
