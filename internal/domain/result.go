package domain

import (
	"database/sql/driver"
	"time"
)

// Outcome is the terminal state of a job.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
	// OutcomeIndeterminate means the engine produced no reports at all.
	OutcomeIndeterminate Outcome = "indeterminate"
)

// Statistics is the aggregate statistics document built from task reports.
type Statistics map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
func (s Statistics) Value() (driver.Value, error) {
	return jsonValue(map[string]interface{}(s))
}

// Scan implements the sql.Scanner interface for database deserialization.
func (s *Statistics) Scan(value interface{}) error {
	m, err := jsonScan(value)
	if err != nil {
		return err
	}
	*s = m
	return nil
}

// JobResult is what a job reports back to its caller.
type JobResult struct {
	JobID      string
	Outcome    Outcome
	Success    bool
	Statistics Statistics
	// ArtifactPath is only meaningful when Success is true.
	ArtifactPath string
	PublishedKey string
	// Err is the terminal error of a failed job.
	Err error
	// PublishErr records a failed or impossible upload; it never changes Success.
	PublishErr  error
	StartedAt   time.Time
	CompletedAt time.Time
}

// Duration returns the wall time the job took.
func (r *JobResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
