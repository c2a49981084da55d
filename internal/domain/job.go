package domain

import "time"

// JobStatus represents the status of a transformation job.
// Terminal values mirror Outcome.
type JobStatus string

const (
	JobStatusPending       JobStatus = "pending"
	JobStatusRunning       JobStatus = "running"
	JobStatusSucceeded     JobStatus = JobStatus(OutcomeSucceeded)
	JobStatusFailed        JobStatus = JobStatus(OutcomeFailed)
	JobStatusTimedOut      JobStatus = JobStatus(OutcomeTimedOut)
	JobStatusIndeterminate JobStatus = JobStatus(OutcomeIndeterminate)
)

// TransformationJob is the persisted record of a job and its result.
// Storage secrets are never persisted.
type TransformationJob struct {
	ID             string     `gorm:"type:text;primaryKey" json:"id"`
	ProjectURL     string     `gorm:"type:text;not null" json:"project_url"`
	SourceDataURL  string     `gorm:"type:text;not null" json:"source_data_url"`
	TargetFileName string     `gorm:"type:text" json:"target_file_name,omitempty"`
	Bucket         string     `gorm:"type:text" json:"bucket,omitempty"`
	Status         JobStatus  `gorm:"type:text;default:pending;index" json:"status"`
	Statistics     Statistics `gorm:"type:text" json:"statistics,omitempty"`
	ArtifactPath   string     `gorm:"type:text" json:"artifact_path,omitempty"`
	PublishedKey   string     `gorm:"type:text" json:"published_key,omitempty"`
	ErrorLog       string     `gorm:"type:text" json:"error_log,omitempty"`
	PublishError   string     `gorm:"type:text" json:"publish_error,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for TransformationJob.
func (TransformationJob) TableName() string {
	return "transformation_jobs"
}

// NewTransformationJob builds a pending record for a request.
func NewTransformationJob(id string, req *TransformationRequest) *TransformationJob {
	job := &TransformationJob{
		ID:             id,
		ProjectURL:     req.ProjectLocation,
		SourceDataURL:  req.SourceDataLocation,
		TargetFileName: req.TargetFileName,
		Status:         JobStatusPending,
	}
	if req.Storage != nil {
		job.Bucket = req.Storage.Bucket
	}
	return job
}

// Apply copies a finished result into the record.
func (j *TransformationJob) Apply(res *JobResult) {
	j.Status = JobStatus(res.Outcome)
	j.Statistics = res.Statistics
	j.ArtifactPath = res.ArtifactPath
	j.PublishedKey = res.PublishedKey
	if res.Err != nil {
		j.ErrorLog = res.Err.Error()
	}
	if res.PublishErr != nil {
		j.PublishError = res.PublishErr.Error()
	}
	if !res.StartedAt.IsZero() {
		started := res.StartedAt
		j.StartedAt = &started
	}
	if !res.CompletedAt.IsZero() {
		completed := res.CompletedAt
		j.CompletedAt = &completed
	}
}
