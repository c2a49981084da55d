package repository

import (
	"context"
	"errors"

	"github.com/timmy/transformer/internal/domain"
	"gorm.io/gorm"
)

// ErrJobNotFound is returned when no job has the requested ID.
var ErrJobNotFound = errors.New("job not found")

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// JobRepository handles transformation job records.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
func (r *JobRepository) Create(ctx context.Context, job *domain.TransformationJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Update saves all fields of an existing job record.
func (r *JobRepository) Update(ctx context.Context, job *domain.TransformationJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.TransformationJob: job record if found.
//   - error: ErrJobNotFound if no record exists.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.TransformationJob, error) {
	var job domain.TransformationJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListRecent returns the most recently created jobs, newest first.
// Limits outside 1..100 fall back to 20 or are capped.
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]domain.TransformationJob, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var jobs []domain.TransformationJob
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// CountByStatus returns the number of jobs per status.
func (r *JobRepository) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	var rows []struct {
		Status domain.JobStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.TransformationJob{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.JobStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// FailStale marks jobs left pending or running by a previous process as failed.
func (r *JobRepository) FailStale(ctx context.Context, reason string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.TransformationJob{}).
		Where("status IN ?", []domain.JobStatus{domain.JobStatusPending, domain.JobStatusRunning}).
		Updates(map[string]interface{}{
			"status":    domain.JobStatusFailed,
			"error_log": reason,
		})
	return res.RowsAffected, res.Error
}

// Ping checks that the database is reachable.
func (r *JobRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
