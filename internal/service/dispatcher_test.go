package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/transformer/internal/domain"
)

type memoryStore struct {
	mu   sync.Mutex
	jobs map[string]domain.TransformationJob
}

func newMemoryStore() *memoryStore {
	return &memoryStore{jobs: map[string]domain.TransformationJob{}}
}

func (s *memoryStore) Create(_ context.Context, job *domain.TransformationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *memoryStore) Update(ctx context.Context, job *domain.TransformationJob) error {
	return s.Create(ctx, job)
}

func (s *memoryStore) get(id string) domain.TransformationJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// gatedRunner returns immediately but keeps each job's token until its gate
// is closed, like an engine that outlives the wait bound.
type gatedRunner struct {
	mu      sync.Mutex
	running int
	peak    int
	gates   []chan struct{}
	started chan string
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{started: make(chan string, 8)}
}

func (r *gatedRunner) Execute(_ context.Context, jobID string, _ *domain.TransformationRequest) (*domain.JobResult, <-chan struct{}) {
	gate := make(chan struct{})
	released := make(chan struct{})

	r.mu.Lock()
	r.running++
	if r.running > r.peak {
		r.peak = r.running
	}
	r.gates = append(r.gates, gate)
	r.mu.Unlock()
	r.started <- jobID

	go func() {
		<-gate
		r.mu.Lock()
		r.running--
		r.mu.Unlock()
		close(released)
	}()

	return &domain.JobResult{JobID: jobID, Outcome: domain.OutcomeTimedOut, Err: ErrTimeout}, released
}

func (r *gatedRunner) open(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	close(r.gates[i])
}

func validRequest() domain.TransformationRequest {
	return domain.TransformationRequest{ProjectLocation: testProject, SourceDataLocation: testSource}
}

func TestDispatcher_HoldsTokenUntilEngineReturns(t *testing.T) {
	runner := newGatedRunner()
	store := newMemoryStore()
	d := NewDispatcher(runner, store, nil, 4)
	ctx := context.Background()

	first, err := d.Process(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeTimedOut, first.Outcome)
	assert.Equal(t, domain.JobStatusTimedOut, store.get(first.JobID).Status)

	secondDone := make(chan *domain.JobResult, 1)
	go func() {
		res, _ := d.Process(ctx, validRequest())
		secondDone <- res
	}()

	<-runner.started
	select {
	case <-runner.started:
		t.Fatal("second job started while the first engine was still running")
	case <-time.After(100 * time.Millisecond):
	}

	runner.open(0)
	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("second job never started")
	}
	runner.open(1)
	<-secondDone

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, 1, runner.peak)
}

func TestDispatcher_SubmitAndRun(t *testing.T) {
	runner := newGatedRunner()
	store := newMemoryStore()
	d := NewDispatcher(runner, store, nil, 2)

	id, err := d.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, store.get(id).Status)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- d.Run(ctx) }()

	select {
	case got := <-runner.started:
		assert.Equal(t, id, got)
	case <-time.After(5 * time.Second):
		t.Fatal("queued job never ran")
	}
	runner.open(0)

	require.Eventually(t, func() bool {
		return store.get(id).Status == domain.JobStatusTimedOut
	}, 5*time.Second, 10*time.Millisecond)
	assert.NotNil(t, store.get(id).StartedAt)

	cancel()
	assert.ErrorIs(t, <-stopped, context.Canceled)
}

func TestDispatcher_SubmitBusy(t *testing.T) {
	store := newMemoryStore()
	d := NewDispatcher(newGatedRunner(), store, nil, 1)

	_, err := d.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	id, err := d.Submit(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, domain.JobStatusFailed, store.get(id).Status)
	assert.Equal(t, ErrBusy.Error(), store.get(id).ErrorLog)
}

func TestDispatcher_RejectsInvalidRequest(t *testing.T) {
	store := newMemoryStore()
	d := NewDispatcher(newGatedRunner(), store, nil, 1)

	_, err := d.Submit(context.Background(), domain.TransformationRequest{SourceDataLocation: testSource})
	assert.ErrorIs(t, err, domain.ErrMissingProject)
	assert.Empty(t, store.jobs)
}

type failingStore struct{ memoryStore }

func (s *failingStore) Create(context.Context, *domain.TransformationJob) error {
	return errors.New("database is locked")
}

func TestDispatcher_PersistFailure(t *testing.T) {
	d := NewDispatcher(newGatedRunner(), &failingStore{}, nil, 1)

	_, err := d.Process(context.Background(), validRequest())
	assert.Error(t, err)
}
