package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/timmy/transformer/internal/domain"
	"github.com/timmy/transformer/internal/engine"
	"github.com/timmy/transformer/internal/logger"
	"github.com/timmy/transformer/internal/report"
	"github.com/timmy/transformer/internal/storage"
)

const resultDirName = "result"

// ProjectLoader loads the project a job refers to.
type ProjectLoader interface {
	Load(ctx context.Context, location string) (*domain.Project, error)
}

// TargetResolver decides where and how a job writes its output.
type TargetResolver interface {
	Resolve(ctx context.Context, project *domain.Project, sourceCRS string) domain.TargetConfiguration
}

// CoordinatorConfig holds configuration for the job coordinator.
type CoordinatorConfig struct {
	WaitTimeout time.Duration
	// OutputDir receives successful artifacts as <OutputDir>/<jobID>/<file>.
	// When empty the artifact stays in the scratch directory and is removed with it.
	OutputDir        string
	SourceProviderID string
	DefaultSourceCRS string
	DetailedReports  bool
}

// Coordinator owns the lifecycle of a single transformation job.
type Coordinator struct {
	engine    engine.Engine
	loader    ProjectLoader
	resolver  TargetResolver
	publisher storage.Publisher
	workspace Workspace
	evaluator *report.Evaluator
	logger    *logger.Logger
	cfg       CoordinatorConfig
}

// NewCoordinator creates a job coordinator.
// Parameters:
//   - eng: transformation engine.
//   - loader: project loader; nil means no project is ever loaded.
//   - resolver: target configuration resolver.
//   - publisher: result publisher; nil disables publishing.
//   - workspace: scratch resource provider; nil uses the system temp directory.
//   - log: logger instance.
//   - cfg: coordinator configuration.
//
// Returns:
//   - *Coordinator: initialized coordinator.
func NewCoordinator(
	eng engine.Engine,
	loader ProjectLoader,
	resolver TargetResolver,
	publisher storage.Publisher,
	workspace Workspace,
	log *logger.Logger,
	cfg *CoordinatorConfig,
) *Coordinator {
	if workspace == nil {
		workspace = TempWorkspace{}
	}
	if log == nil {
		log = logger.GetDefault()
	}
	c := &Coordinator{
		engine:    eng,
		loader:    loader,
		resolver:  resolver,
		publisher: publisher,
		workspace: workspace,
		logger:    log,
	}
	if cfg != nil {
		c.cfg = *cfg
	}
	if c.cfg.WaitTimeout <= 0 {
		c.cfg.WaitTimeout = 30 * time.Minute
	}
	c.evaluator = &report.Evaluator{Detailed: c.cfg.DetailedReports}
	return c
}

// withLogger attaches the coordinator's logger unless ctx already carries one.
func (c *Coordinator) withLogger(ctx context.Context) context.Context {
	if logger.FromContext(ctx) == logger.GetDefault() {
		return c.logger.WithContext(ctx)
	}
	return ctx
}

func (c *Coordinator) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx)
}

// Run executes one job and returns its result. It never panics and always
// releases the job's scratch resources, possibly after returning when the
// engine outlives the wait bound.
func (c *Coordinator) Run(ctx context.Context, jobID string, req *domain.TransformationRequest) *domain.JobResult {
	result, _ := c.Execute(ctx, jobID, req)
	return result
}

// Execute is Run that also returns a channel closed once the scratch
// resources have been released, which implies the engine has returned.
func (c *Coordinator) Execute(ctx context.Context, jobID string, req *domain.TransformationRequest) (result *domain.JobResult, released <-chan struct{}) {
	ctx = logger.SetJobID(c.withLogger(ctx), jobID)
	log := c.log(ctx)

	releasedCh := make(chan struct{})
	released = releasedCh
	result = &domain.JobResult{
		JobID:     jobID,
		Outcome:   domain.OutcomeFailed,
		StartedAt: time.Now(),
	}

	var (
		scratch *Scratch
		handoff bool
	)
	release := sync.OnceFunc(func() {
		if scratch != nil {
			if err := scratch.Release(); err != nil {
				log.WithError(err).Warn("Failed to release job resources")
			}
		}
		close(releasedCh)
	})

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Transformation job failed unexpectedly")
			result.Outcome = domain.OutcomeFailed
			result.Success = false
			result.Err = fmt.Errorf("%w: %v", ErrEngine, r)
		}
		if !handoff {
			release()
		}
		result.CompletedAt = time.Now()

		logger.With(logger.Fields{
			logger.FieldOutcome: string(result.Outcome),
		}).WithDuration(result.Duration().Milliseconds()).Info(ctx, "Transformation job finished")
	}()

	if req == nil {
		result.Err = fmt.Errorf("%w: empty request", ErrConfiguration)
		return result, released
	}
	if err := req.Validate(); err != nil {
		result.Err = fmt.Errorf("%w: %w", ErrConfiguration, err)
		return result, released
	}

	log.WithFields(logger.Fields{
		logger.FieldProject: req.ProjectLocation,
		logger.FieldSource:  req.SourceDataLocation,
	}).Info("Starting transformation job")

	var err error
	scratch, err = c.workspace.Acquire(jobID)
	if err != nil {
		log.WithError(err).Error("Failed to acquire job resources")
		result.Err = err
		return result, released
	}
	jobLog := logger.NewJobLogger(log, scratch.LogFile)

	ec, err := c.buildContext(ctx, jobLog, scratch, req)
	if err != nil {
		jobLog.WithError(err).Error("Cannot configure transformation target")
		result.Err = err
		return result, released
	}

	// From here the engine goroutine and this waiter agree on who releases.
	var (
		mu         sync.Mutex
		engineDone bool
		waiterGone bool
	)
	done := make(chan error, 1)
	handoff = true
	go func() {
		err := c.invoke(ctx, ec)
		mu.Lock()
		engineDone = true
		gone := waiterGone
		mu.Unlock()
		done <- err
		if gone {
			if err != nil {
				log.WithError(err).Warn("Abandoned transformation finished with an error")
			} else {
				log.Info("Abandoned transformation finished")
			}
			release()
		}
	}()

	timer := time.NewTimer(c.cfg.WaitTimeout)
	defer timer.Stop()

	select {
	case err = <-done:
	case <-timer.C:
		mu.Lock()
		waiterGone = true
		finished := engineDone
		mu.Unlock()
		if finished {
			// the engine returned at the deadline; take the regular path
			err = <-done
			break
		}
		log.WithField("timeout", c.cfg.WaitTimeout.String()).
			Error("Transformation did not complete in time; the engine keeps running until it exits")
		result.Outcome = domain.OutcomeTimedOut
		result.Err = fmt.Errorf("%w after %s", ErrTimeout, c.cfg.WaitTimeout)
		return result, released
	}

	// The engine has returned; this goroutine owns the release again.
	defer release()

	if err != nil {
		jobLog.WithError(err).Error("Transformation failed")
		result.Err = fmt.Errorf("%w: %w", ErrEngine, err)
		return result, released
	}

	reports, err := report.ReadFile(ec.ReportsSink)
	if err != nil {
		jobLog.WithError(err).Error("Failed to read transformation reports")
		result.Err = fmt.Errorf("%w: %w", ErrEngine, err)
		return result, released
	}

	verdict := c.evaluator.Evaluate(jobLog, reports)
	result.Outcome = verdict.Outcome
	result.Success = verdict.Success
	result.Statistics = verdict.Statistics
	if !result.Success {
		if result.Outcome == domain.OutcomeIndeterminate {
			result.Err = fmt.Errorf("%w: no task reports", ErrEngine)
		} else {
			result.Err = fmt.Errorf("%w: transformation tasks failed", ErrEngine)
		}
		return result, released
	}

	c.retain(ctx, jobID, ec.TargetLocation, result)
	c.publish(ctx, req, result)
	return result, released
}

// invoke runs the engine and turns a panic into an error.
func (c *Coordinator) invoke(ctx context.Context, ec *domain.ExecutionContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panicked: %v", r)
		}
	}()
	return c.engine.Execute(ctx, ec)
}

// buildContext detects the source CRS, loads the project, resolves the target
// and assembles the execution context. A target without writer is fatal.
func (c *Coordinator) buildContext(ctx context.Context, log *logger.Logger, scratch *Scratch, req *domain.TransformationRequest) (*domain.ExecutionContext, error) {
	sources := []domain.SourceDescriptor{c.source(req)}

	sourceCRS, ok := domain.DetectCRS(sources)
	if !ok {
		log.Warn("No source CRS could be determined, using defaults")
	}

	var project *domain.Project
	if c.loader != nil {
		p, err := c.loader.Load(ctx, req.ProjectLocation)
		if err != nil {
			log.WithError(err).Warn("Failed to load project, falling back to a custom target")
		} else {
			project = p
		}
	}

	target := c.resolver.Resolve(ctx, project, sourceCRS)
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	resultDir := filepath.Join(scratch.Dir, resultDirName)
	if err := os.MkdirAll(resultDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create result directory: %w", err)
	}
	filename := target.Filename
	if filename == "" {
		filename = domain.DefaultTargetFilename
	}

	ec := &domain.ExecutionContext{
		ProjectLocation: req.ProjectLocation,
		Sources:         sources,
		TargetLocation:  filepath.Join(resultDir, filename),
		ReportsSink:     scratch.ReportsPath,
		LogSink:         scratch.LogFile,
		LogException:    true,
	}
	if target.PresetID != "" {
		ec.PresetID = target.PresetID
	} else {
		ec.TargetProviderID = target.Custom.ProviderID
		ec.TargetSettings = target.Custom.Settings.Clone()
	}
	return ec, nil
}

func (c *Coordinator) source(req *domain.TransformationRequest) domain.SourceDescriptor {
	settings := domain.Settings{
		domain.SettingXMLPretty:     true,
		domain.SettingCRSEPSGPrefix: domain.EPSGNamespacePrefix,
		domain.SettingCRS:           domain.DefaultTargetCRS,
	}
	if c.cfg.DefaultSourceCRS != "" {
		settings[domain.SettingDefaultSRS] = c.cfg.DefaultSourceCRS
	}
	return domain.SourceDescriptor{
		Location:           req.SourceDataLocation,
		ProviderID:         c.cfg.SourceProviderID,
		Settings:           settings,
		IncludeInTransform: true,
	}
}

// retain moves the artifact out of the scratch directory.
func (c *Coordinator) retain(ctx context.Context, jobID, artifact string, result *domain.JobResult) {
	log := c.log(ctx)

	info, err := os.Stat(artifact)
	if err != nil {
		log.WithError(err).Warn("Transformation succeeded but produced no artifact")
		return
	}
	if c.cfg.OutputDir == "" {
		result.ArtifactPath = artifact
		return
	}

	dest := filepath.Join(c.cfg.OutputDir, jobID, filepath.Base(artifact))
	if err := moveFile(artifact, dest); err != nil {
		log.WithError(err).Error("Failed to retain transformation result")
		result.ArtifactPath = artifact
		return
	}
	result.ArtifactPath = dest
	log.WithFields(logger.Fields{
		"path":           dest,
		logger.FieldSize: info.Size(),
	}).Info("Retained transformation result")
}

// publish uploads a successful artifact when the request asks for it.
// Failures are recorded in PublishErr only.
func (c *Coordinator) publish(ctx context.Context, req *domain.TransformationRequest, result *domain.JobResult) {
	log := c.log(ctx)

	defer func() {
		if r := recover(); r != nil {
			result.PublishErr = fmt.Errorf("%w: %v", ErrPublish, r)
			log.WithField("panic", r).Error("Failed to publish transformation result")
		}
	}()

	if result.ArtifactPath == "" {
		if req.Storage.Complete() || req.UploadRequired {
			result.PublishErr = fmt.Errorf("%w: no artifact", ErrPublish)
		}
		return
	}

	if !req.Storage.Complete() {
		if req.UploadRequired {
			result.PublishErr = fmt.Errorf("%w: incomplete storage credentials", ErrPublish)
			log.Error("Upload required but storage credentials are incomplete")
		} else if req.Storage != nil {
			log.Info("Incomplete storage credentials, not publishing")
		}
		return
	}
	if c.publisher == nil {
		result.PublishErr = fmt.Errorf("%w: no publisher configured", ErrPublish)
		log.Error("Storage credentials given but publishing is disabled")
		return
	}

	key := req.PublishKey(result.ArtifactPath)
	if err := c.publisher.Publish(ctx, req.Storage, key, result.ArtifactPath); err != nil {
		result.PublishErr = fmt.Errorf("%w: %w", ErrPublish, err)
		log.WithError(err).WithField("bucket", req.Storage.Bucket).Error("Failed to publish transformation result")
		return
	}
	result.PublishedKey = key
}
