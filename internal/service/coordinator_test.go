package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/transformer/internal/catalog"
	"github.com/timmy/transformer/internal/domain"
	"github.com/timmy/transformer/internal/engine"
	"github.com/timmy/transformer/internal/logger"
	"github.com/timmy/transformer/internal/target"
)

const (
	jsonWriter  = "eu.esdihumboldt.hale.io.json.writer"
	passedLine  = `{"taskName":"Transformation","success":true,"summary":"Transformed 3 instances","metrics":{"instances":3}}` + "\n"
	failedLine  = `{"taskName":"Write","success":true,"summary":"done","errors":[{"message":"invalid geometry"}]}` + "\n"
	testProject = "https://example.com/project.halex"
	testSource  = "https://example.com/data.gml"
)

// countingWorkspace counts scratch releases.
type countingWorkspace struct {
	TempWorkspace
	acquired atomic.Int32
	released atomic.Int32

	mu   sync.Mutex
	dirs []string
}

func (w *countingWorkspace) Acquire(jobID string) (*Scratch, error) {
	s, err := w.TempWorkspace.Acquire(jobID)
	if err != nil {
		return nil, err
	}
	w.acquired.Add(1)
	w.mu.Lock()
	w.dirs = append(w.dirs, s.Dir)
	w.mu.Unlock()

	inner := s.release
	s.release = func() error {
		w.released.Add(1)
		return inner()
	}
	return s, nil
}

type fakeLoader struct {
	project *domain.Project
	err     error
}

func (l *fakeLoader) Load(context.Context, string) (*domain.Project, error) {
	return l.project, l.err
}

type resolverFunc func(ctx context.Context, p *domain.Project, crs string) domain.TargetConfiguration

func (f resolverFunc) Resolve(ctx context.Context, p *domain.Project, crs string) domain.TargetConfiguration {
	return f(ctx, p, crs)
}

type fakePublisher struct {
	mu    sync.Mutex
	err   error
	calls int
	key   string
	path  string
}

func (p *fakePublisher) Publish(_ context.Context, _ *domain.StorageCredentials, key, filePath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.key, p.path = key, filePath
	return p.err
}

func defaultPresetProject() *domain.Project {
	return &domain.Project{
		Name: "roads",
		ExportConfigurations: map[string]domain.IOConfiguration{
			target.PresetDefault: {
				ActionID:   domain.ActionSaveTransformedData,
				ProviderID: jsonWriter,
				Settings:   domain.Settings{},
			},
		},
	}
}

// writingEngine produces an artifact and the given reports.
func writingEngine(reports string) engine.Func {
	return func(_ context.Context, ec *domain.ExecutionContext) error {
		if err := os.WriteFile(ec.TargetLocation, []byte(`{"features":[]}`), 0o644); err != nil {
			return err
		}
		return os.WriteFile(ec.ReportsSink, []byte(reports), 0o644)
	}
}

type fixture struct {
	workspace *countingWorkspace
	publisher *fakePublisher
	loader    *fakeLoader
	outputDir string
	logs      *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		workspace: &countingWorkspace{TempWorkspace: TempWorkspace{Root: t.TempDir()}},
		publisher: &fakePublisher{},
		loader:    &fakeLoader{project: defaultPresetProject()},
		outputDir: t.TempDir(),
		logs:      &bytes.Buffer{},
	}
}

func (f *fixture) coordinator(eng engine.Engine, resolver TargetResolver, wait time.Duration) *Coordinator {
	if resolver == nil {
		resolver = target.NewResolver(catalog.Default(), target.Options{})
	}
	log := logger.New(&logger.Config{Level: "debug", Format: "json", Output: &syncBuffer{buf: f.logs}, ServiceName: "test"})
	return NewCoordinator(eng, f.loader, resolver, f.publisher, f.workspace, log, &CoordinatorConfig{
		WaitTimeout:      wait,
		OutputDir:        f.outputDir,
		SourceProviderID: "eu.esdihumboldt.hale.io.gml.reader",
	})
}

type syncBuffer struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func request() *domain.TransformationRequest {
	return &domain.TransformationRequest{ProjectLocation: testProject, SourceDataLocation: testSource}
}

func waitReleased(t *testing.T, released <-chan struct{}) {
	t.Helper()
	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("job resources were not released")
	}
}

func TestCoordinator_DefaultPresetSuccess(t *testing.T) {
	f := newFixture(t)
	var seen *domain.ExecutionContext
	eng := engine.Func(func(ctx context.Context, ec *domain.ExecutionContext) error {
		seen = ec
		return writingEngine(passedLine)(ctx, ec)
	})

	res, released := f.coordinator(eng, nil, time.Minute).Execute(context.Background(), "job-1", request())
	waitReleased(t, released)

	require.True(t, res.Success, "err: %v", res.Err)
	assert.Equal(t, domain.OutcomeSucceeded, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, res.Statistics["tasks"])

	require.NotNil(t, seen)
	assert.Equal(t, target.PresetDefault, seen.PresetID)
	assert.Empty(t, seen.TargetProviderID)
	assert.Equal(t, "result.json", filepath.Base(seen.TargetLocation))
	assert.Equal(t, "result", filepath.Base(filepath.Dir(seen.TargetLocation)))
	assert.True(t, seen.LogException)
	require.Len(t, seen.TransformedSources(), 1)
	assert.Equal(t, testSource, seen.Sources[0].Location)

	assert.Equal(t, filepath.Join(f.outputDir, "job-1", "result.json"), res.ArtifactPath)
	assert.FileExists(t, res.ArtifactPath)
	assert.Equal(t, 0, f.publisher.calls, "no credentials, no publish")

	assert.EqualValues(t, 1, f.workspace.released.Load())
	for _, dir := range f.workspace.dirs {
		assert.NoDirExists(t, dir)
	}
}

func TestCoordinator_ReleasedOncePerExitPath(t *testing.T) {
	block := make(chan struct{})
	emptyTarget := resolverFunc(func(context.Context, *domain.Project, string) domain.TargetConfiguration {
		return domain.TargetConfiguration{Filename: "x"}
	})

	tests := []struct {
		name     string
		engine   engine.Func
		resolver TargetResolver
		outcome  domain.Outcome
		err      error
	}{
		{name: "success", engine: writingEngine(passedLine), outcome: domain.OutcomeSucceeded},
		{name: "failed reports", engine: writingEngine(failedLine), outcome: domain.OutcomeFailed, err: ErrEngine},
		{name: "no reports", engine: writingEngine(""), outcome: domain.OutcomeIndeterminate, err: ErrEngine},
		{name: "malformed reports", engine: writingEngine("{oops\n"), outcome: domain.OutcomeFailed, err: ErrEngine},
		{
			name:    "engine error",
			engine:  func(context.Context, *domain.ExecutionContext) error { return errors.New("out of memory") },
			outcome: domain.OutcomeFailed,
			err:     ErrEngine,
		},
		{
			name:    "engine panic",
			engine:  func(context.Context, *domain.ExecutionContext) error { panic("boom") },
			outcome: domain.OutcomeFailed,
			err:     ErrEngine,
		},
		{
			name:     "configuration error",
			engine:   writingEngine(passedLine),
			resolver: emptyTarget,
			outcome:  domain.OutcomeFailed,
			err:      ErrConfiguration,
		},
		{
			name: "timeout",
			engine: func(ctx context.Context, ec *domain.ExecutionContext) error {
				<-block
				return writingEngine(passedLine)(ctx, ec)
			},
			outcome: domain.OutcomeTimedOut,
			err:     ErrTimeout,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			c := f.coordinator(tc.engine, tc.resolver, 100*time.Millisecond)

			var (
				res      *domain.JobResult
				released <-chan struct{}
			)
			require.NotPanics(t, func() {
				res, released = c.Execute(context.Background(), "job-"+tc.name, request())
			})

			assert.Equal(t, tc.outcome, res.Outcome)
			assert.Equal(t, tc.outcome == domain.OutcomeSucceeded, res.Success)
			if tc.err != nil {
				assert.ErrorIs(t, res.Err, tc.err)
			}

			if tc.outcome == domain.OutcomeTimedOut {
				assert.EqualValues(t, 0, f.workspace.released.Load(), "released before the engine returned")
				close(block)
			}
			waitReleased(t, released)

			assert.EqualValues(t, 1, f.workspace.acquired.Load())
			assert.EqualValues(t, 1, f.workspace.released.Load())
		})
	}
}

func TestCoordinator_NoProjectNoCRSFallsBack(t *testing.T) {
	f := newFixture(t)
	f.loader.err = errors.New("HTTP 404")
	f.loader.project = nil

	var seen *domain.ExecutionContext
	eng := engine.Func(func(ctx context.Context, ec *domain.ExecutionContext) error {
		seen = ec
		return writingEngine(passedLine)(ctx, ec)
	})

	res := f.coordinator(eng, nil, time.Minute).Run(context.Background(), "job-fallback", request())
	require.True(t, res.Success)

	require.NotNil(t, seen)
	assert.Empty(t, seen.PresetID)
	assert.Equal(t, "eu.esdihumboldt.hale.io.gml.xplan.writer", seen.TargetProviderID)
	assert.Equal(t, "code:EPSG:4326", seen.TargetSettings[domain.SettingCRS])
	assert.Equal(t, "inspire.gml", filepath.Base(seen.TargetLocation))

	logs := f.logs.String()
	assert.Contains(t, logs, "No source CRS could be determined")
	assert.Contains(t, logs, "Failed to load project")
}

func TestCoordinator_SourceCRSFlowsToTarget(t *testing.T) {
	f := newFixture(t)
	f.loader.project = nil

	var seen *domain.ExecutionContext
	eng := engine.Func(func(ctx context.Context, ec *domain.ExecutionContext) error {
		seen = ec
		return writingEngine(passedLine)(ctx, ec)
	})

	c := f.coordinator(eng, nil, time.Minute)
	c.cfg.DefaultSourceCRS = "code:EPSG:25832"
	c.Run(context.Background(), "job-crs", request())

	require.NotNil(t, seen)
	assert.Equal(t, "code:EPSG:25832", seen.Sources[0].Settings[domain.SettingDefaultSRS])
	assert.Equal(t, "code:EPSG:25832", seen.TargetSettings[domain.SettingCRS])
}

func completeStorage() *domain.StorageCredentials {
	return &domain.StorageCredentials{Region: "eu-central-1", Bucket: "results", AccessKey: "ak", SecretKey: "sk"}
}

func TestCoordinator_PublishFailureKeepsSuccess(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("access denied")

	req := request()
	req.Storage = completeStorage()

	res := f.coordinator(writingEngine(passedLine), nil, time.Minute).Run(context.Background(), "job-pub", req)

	assert.True(t, res.Success)
	assert.Equal(t, domain.OutcomeSucceeded, res.Outcome)
	assert.NoError(t, res.Err)
	assert.ErrorIs(t, res.PublishErr, ErrPublish)
	assert.Empty(t, res.PublishedKey)
	assert.Equal(t, 1, f.publisher.calls)
	assert.Contains(t, f.logs.String(), "Failed to publish transformation result")
}

func TestCoordinator_PublishKey(t *testing.T) {
	f := newFixture(t)

	req := request()
	req.Storage = completeStorage()
	req.TargetFileName = "deliveries/roads.json"

	res := f.coordinator(writingEngine(passedLine), nil, time.Minute).Run(context.Background(), "job-key", req)

	require.True(t, res.Success)
	assert.NoError(t, res.PublishErr)
	assert.Equal(t, "deliveries/roads.json", res.PublishedKey)
	assert.Equal(t, res.ArtifactPath, f.publisher.path)

	req.TargetFileName = ""
	res = f.coordinator(writingEngine(passedLine), nil, time.Minute).Run(context.Background(), "job-key-2", req)
	assert.Equal(t, "result.json", res.PublishedKey)
}

func TestCoordinator_PartialCredentials(t *testing.T) {
	f := newFixture(t)
	req := request()
	req.Storage = &domain.StorageCredentials{Bucket: "results"}

	res := f.coordinator(writingEngine(passedLine), nil, time.Minute).Run(context.Background(), "job-partial", req)
	assert.True(t, res.Success)
	assert.NoError(t, res.PublishErr)
	assert.Equal(t, 0, f.publisher.calls)

	req.UploadRequired = true
	res = f.coordinator(writingEngine(passedLine), nil, time.Minute).Run(context.Background(), "job-required", req)
	assert.True(t, res.Success)
	assert.ErrorIs(t, res.PublishErr, ErrPublish)
	assert.Equal(t, 0, f.publisher.calls)
}

func TestCoordinator_FailedJobIsNotPublished(t *testing.T) {
	f := newFixture(t)
	req := request()
	req.Storage = completeStorage()

	res := f.coordinator(writingEngine(failedLine), nil, time.Minute).Run(context.Background(), "job-failed", req)
	assert.False(t, res.Success)
	assert.Empty(t, res.ArtifactPath)
	assert.Equal(t, 0, f.publisher.calls)
}

func TestCoordinator_InvalidRequest(t *testing.T) {
	f := newFixture(t)
	res := f.coordinator(writingEngine(passedLine), nil, time.Minute).Run(context.Background(), "job-invalid", &domain.TransformationRequest{})

	assert.ErrorIs(t, res.Err, ErrConfiguration)
	assert.EqualValues(t, 0, f.workspace.acquired.Load())
}

func TestCoordinator_EngineOutputGoesToJobLog(t *testing.T) {
	f := newFixture(t)
	var logContent []byte
	eng := engine.Func(func(ctx context.Context, ec *domain.ExecutionContext) error {
		_, _ = ec.LogSink.Write([]byte("engine says hello\n"))
		if err := writingEngine(passedLine)(ctx, ec); err != nil {
			return err
		}
		var err error
		logContent, err = os.ReadFile(filepath.Join(filepath.Dir(ec.ReportsSink), transformationLogName))
		return err
	})

	res := f.coordinator(eng, nil, time.Minute).Run(context.Background(), "job-log", request())
	require.True(t, res.Success)
	assert.Contains(t, string(logContent), "engine says hello")
}
