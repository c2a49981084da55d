package domain

import "errors"

// CustomTarget describes an output writer when no preset is reused.
type CustomTarget struct {
	ProviderID string
	Settings   Settings
}

// TargetConfiguration is the resolved output description of one job.
// Exactly one of PresetID and Custom is set.
type TargetConfiguration struct {
	Filename string
	PresetID string
	Custom   *CustomTarget
	// AmbiguousContentType is set when the file extension came from one of
	// several content types supported by the preset's provider.
	AmbiguousContentType bool
}

var ErrNoTargetWriter = errors.New("no configuration on how to write transformed data available")

// Validate enforces the exactly-one-of invariant between preset and custom target.
func (t *TargetConfiguration) Validate() error {
	hasPreset := t.PresetID != ""
	hasCustom := t.Custom != nil && t.Custom.ProviderID != ""
	if hasPreset == hasCustom {
		if hasPreset {
			return errors.New("target configuration has both a preset and a custom target")
		}
		return ErrNoTargetWriter
	}
	return nil
}
