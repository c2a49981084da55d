package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/transformer/internal/domain"
	"github.com/timmy/transformer/internal/logger"
	"golang.org/x/sync/semaphore"
)

// JobStore persists job records.
type JobStore interface {
	Create(ctx context.Context, job *domain.TransformationJob) error
	Update(ctx context.Context, job *domain.TransformationJob) error
}

// Runner executes a job; released is closed once the engine has returned
// and the job's resources are gone.
type Runner interface {
	Execute(ctx context.Context, jobID string, req *domain.TransformationRequest) (result *domain.JobResult, released <-chan struct{})
}

type queuedJob struct {
	job *domain.TransformationJob
	req domain.TransformationRequest
}

// Dispatcher runs at most one transformation at a time. A job holds the
// token from start until its engine has returned, even after a timeout.
type Dispatcher struct {
	runner Runner
	store  JobStore
	logger *logger.Logger
	sem    *semaphore.Weighted
	queue  chan queuedJob
}

// NewDispatcher creates a dispatcher with a queue of queueSize pending jobs.
func NewDispatcher(runner Runner, store JobStore, log *logger.Logger, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Dispatcher{
		runner: runner,
		store:  store,
		logger: log,
		sem:    semaphore.NewWeighted(1),
		queue:  make(chan queuedJob, queueSize),
	}
}

// Submit validates and persists a request, then queues it for Run.
// It returns ErrBusy when the queue is full; the job is recorded as failed.
func (d *Dispatcher) Submit(ctx context.Context, req domain.TransformationRequest) (string, error) {
	job, err := d.create(ctx, &req)
	if err != nil {
		return "", err
	}

	select {
	case d.queue <- queuedJob{job: job, req: req}:
		logger.CtxInfo(logger.SetJobID(ctx, job.ID), "Transformation job queued")
		return job.ID, nil
	default:
		now := time.Now()
		job.Status = domain.JobStatusFailed
		job.ErrorLog = ErrBusy.Error()
		job.CompletedAt = &now
		d.update(ctx, job)
		return job.ID, ErrBusy
	}
}

// Process persists a request and runs it on the caller's goroutine once the
// token is available.
func (d *Dispatcher) Process(ctx context.Context, req domain.TransformationRequest) (*domain.JobResult, error) {
	job, err := d.create(ctx, &req)
	if err != nil {
		return nil, err
	}
	return d.run(ctx, job, &req)
}

// Run consumes queued jobs until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.WithField("capacity", cap(d.queue)).Info("Dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Dispatcher stopped")
			return ctx.Err()
		case q := <-d.queue:
			if _, err := d.run(ctx, q.job, &q.req); err != nil {
				d.logger.WithError(err).WithField(logger.FieldJobID, q.job.ID).Warn("Queued job did not run")
			}
		}
	}
}

func (d *Dispatcher) create(ctx context.Context, req *domain.TransformationRequest) (*domain.TransformationJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	job := domain.NewTransformationJob(uuid.New().String(), req)
	if d.store != nil {
		if err := d.store.Create(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to persist job: %w", err)
		}
	}
	return job, nil
}

func (d *Dispatcher) run(ctx context.Context, job *domain.TransformationJob, req *domain.TransformationRequest) (*domain.JobResult, error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		now := time.Now()
		job.Status = domain.JobStatusFailed
		job.ErrorLog = err.Error()
		job.CompletedAt = &now
		d.update(ctx, job)
		return nil, err
	}

	started := time.Now()
	job.Status = domain.JobStatusRunning
	job.StartedAt = &started
	d.update(ctx, job)

	result, released := d.runner.Execute(ctx, job.ID, req)
	go func() {
		<-released
		d.sem.Release(1)
	}()

	job.Apply(result)
	d.update(ctx, job)
	return result, nil
}

// update persists job state; a cancelled ctx must not lose the final status.
func (d *Dispatcher) update(ctx context.Context, job *domain.TransformationJob) {
	if d.store == nil {
		return
	}
	if err := d.store.Update(context.WithoutCancel(ctx), job); err != nil {
		d.logger.WithError(err).WithField(logger.FieldJobID, job.ID).Error("Failed to persist job state")
	}
}
