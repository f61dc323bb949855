package repository

import (
	"context"
	"database/sql"
	"errors"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"adgen-jobs/constant"
	"adgen-jobs/entities"
)

type postgresRepo struct {
	db *gorm.DB
}

// NewPostgresRepo wraps db with gorm and migrates the jobs table.
func NewPostgresRepo(db *sql.DB) (JobRepository, error) {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		},
	)
	if err != nil {
		return nil, err
	}
	if err := gormDB.AutoMigrate(&entities.Job{}); err != nil {
		return nil, err
	}
	return &postgresRepo{
		db: gormDB,
	}, nil
}

func (r *postgresRepo) Driver() constant.StorageDriver {
	return constant.StorageDriverPostgres
}

func (r *postgresRepo) Create(ctx context.Context, job *entities.Job) bool {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		storeFailed(ctx, "create", job.ID, err)
		return false
	}
	return true
}

func (r *postgresRepo) UpdateStatus(ctx context.Context, id string, update entities.JobUpdate) bool {
	found := true
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job := &entities.Job{}
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(job, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		if !job.Apply(update, now()) {
			return nil
		}
		return tx.Save(job).Error
	})
	if err != nil {
		storeFailed(ctx, "update_status", id, err)
		return false
	}
	return found
}

func (r *postgresRepo) Get(ctx context.Context, id string) (*entities.Job, bool) {
	job := &entities.Job{}
	err := r.db.WithContext(ctx).First(job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false
	}
	if err != nil {
		storeFailed(ctx, "get", id, err)
		return nil, false
	}
	return job, true
}

func (r *postgresRepo) ListByOwner(ctx context.Context, ownerID string, limit int) []*entities.Job {
	var jobs []*entities.Job
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		storeFailed(ctx, "list_by_owner", "", err)
		return []*entities.Job{}
	}
	return jobs
}

func (r *postgresRepo) ListPending(ctx context.Context) []*entities.Job {
	var jobs []*entities.Job
	err := r.db.WithContext(ctx).
		Where("status IN ?", []constant.JobStatus{constant.JobStatusPending, constant.JobStatusProcessing}).
		Order("created_at DESC").
		Find(&jobs).Error
	if err != nil {
		storeFailed(ctx, "list_pending", "", err)
		return []*entities.Job{}
	}
	return jobs
}

func (r *postgresRepo) Delete(ctx context.Context, id string) bool {
	res := r.db.WithContext(ctx).Delete(&entities.Job{}, "id = ?", id)
	if res.Error != nil {
		storeFailed(ctx, "delete", id, res.Error)
		return false
	}
	return res.RowsAffected > 0
}
