package service

import "errors"

var (
	// ErrConfiguration means no usable target writer could be configured.
	ErrConfiguration = errors.New("configuration error")
	// ErrTimeout means the engine did not finish within the wait bound.
	ErrTimeout = errors.New("transformation timed out")
	// ErrEngine wraps failures raised by the engine or while reading its reports.
	ErrEngine = errors.New("engine failure")
	// ErrPublish wraps upload failures; it never changes the job verdict.
	ErrPublish = errors.New("publish failed")
	// ErrBusy is returned by Submit when the job queue is full.
	ErrBusy = errors.New("job queue is full")
)
