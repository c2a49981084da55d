package domain

import "io"

// ExecutionContext is everything the engine needs to run one transformation.
// It belongs to exactly one job.
type ExecutionContext struct {
	ProjectLocation  string
	Sources          []SourceDescriptor
	TargetLocation   string
	TargetProviderID string
	PresetID         string
	TargetSettings   Settings
	ReportsSink      string
	// LogSink receives engine output for the transformation log of this job.
	LogSink      io.Writer
	LogException bool
}

// TransformedSources returns the sources that take part in the transformation.
func (c *ExecutionContext) TransformedSources() []SourceDescriptor {
	var out []SourceDescriptor
	for _, src := range c.Sources {
		if src.IncludeInTransform {
			out = append(out, src)
		}
	}
	return out
}
