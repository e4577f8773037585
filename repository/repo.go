package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"assembly-worker/constant"
	"assembly-worker/entities"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var ErrJobNotFound = errors.New("assembly job not found")

// Store is the durable record of assembly jobs. UpdateJob applies the mutator
// atomically with respect to other updates on the same id; the orchestrator is
// the only writer of status/progress/stage fields.
type Store interface {
	CreateJob(ctx context.Context, job *entities.AssemblyJob) error
	FindJobById(ctx context.Context, id uuid.UUID) (*entities.AssemblyJob, error)
	UpdateJob(ctx context.Context, id uuid.UUID, mutate func(job *entities.AssemblyJob) error) error
	ReapProcessing(ctx context.Context, reason string) (int64, error)
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB) (Store, error) {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		},
	)
	if err != nil {
		return nil, err
	}
	if err := gormDB.AutoMigrate(&entities.AssemblyJob{}); err != nil {
		return nil, fmt.Errorf("migrate assembly_jobs: %w", err)
	}
	return &repo{db: gormDB}, nil
}

func (r *repo) CreateJob(ctx context.Context, job *entities.AssemblyJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repo) FindJobById(ctx context.Context, id uuid.UUID) (*entities.AssemblyJob, error) {
	job := &entities.AssemblyJob{}
	err := r.db.WithContext(ctx).First(job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *repo) UpdateJob(ctx context.Context, id uuid.UUID, mutate func(job *entities.AssemblyJob) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job := &entities.AssemblyJob{}
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(job, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrJobNotFound
		}
		if err != nil {
			return err
		}
		if err := mutate(job); err != nil {
			return err
		}
		return tx.Save(job).Error
	})
}

// ReapProcessing fails jobs left in PROCESSING by a previous process, so
// clients polling after a restart still reach a terminal state.
func (r *repo) ReapProcessing(ctx context.Context, reason string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&entities.AssemblyJob{}).
		Where("status = ?", constant.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status": constant.JobStatusFailed,
			"error":  reason,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("reap processing jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
