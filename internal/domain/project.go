package domain

// Action and parameter identifiers used in project export configurations.
const (
	ActionSaveTransformedData = "eu.esdihumboldt.hale.io.instance.write.transformed"
)

// IOConfiguration is an I/O provider configuration stored in a project.
type IOConfiguration struct {
	ActionID   string
	ProviderID string
	Settings   Settings
}

// Clone returns a copy that does not share settings.
func (c IOConfiguration) Clone() IOConfiguration {
	c.Settings = c.Settings.Clone()
	return c
}

// Project is a loaded transformation project.
type Project struct {
	Name                 string
	ExportConfigurations map[string]IOConfiguration
}
