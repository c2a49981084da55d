package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NewJobLogger derives a logger that writes to the base logger's output and to
// sink. Formatter, level, caller reporting and fields are inherited from base.
// The returned logger is owned by a single job; the base logger is untouched.
// Parameters:
//   - base: logger to inherit from; nil uses the default logger.
//   - sink: job-scoped destination such as the transformation log file.
// Returns:
//   - *Logger: logger writing to both destinations.
func NewJobLogger(base *Logger, sink io.Writer) *Logger {
	if base == nil {
		base = GetDefault()
	}
	if sink == nil {
		return base
	}

	parent := base.Entry.Logger
	log := logrus.New()
	log.SetFormatter(parent.Formatter)
	log.SetLevel(parent.GetLevel())
	log.SetReportCaller(parent.ReportCaller)
	log.SetOutput(io.MultiWriter(parent.Out, sink))

	fields := make(logrus.Fields, len(base.Data))
	for k, v := range base.Data {
		fields[k] = v
	}

	return &Logger{Entry: log.WithFields(fields)}
}
