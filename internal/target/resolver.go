// Package target resolves how and where a job writes its transformed data.
package target

import (
	"context"
	"sort"
	"strings"

	"github.com/timmy/transformer/internal/catalog"
	"github.com/timmy/transformer/internal/domain"
	"github.com/timmy/transformer/internal/logger"
)

// Preset names looked up in projects, in priority order.
const (
	PresetHaleConnect = "hale-connect"
	PresetDefault     = "default"
)

const (
	defaultExtension = "xml"
	resultBaseName   = "result."
)

// Lookup answers the content type and provider questions of resolution.
type Lookup interface {
	ContentType(id string) (catalog.ContentType, bool)
	SupportedTypes(providerID string) []catalog.ContentType
	Writer(providerID string) (catalog.Provider, bool)
}

// Options configure the custom target fallback.
type Options struct {
	FallbackProviderID string
	FallbackFilename   string
}

// Resolver turns a project and a detected source CRS into a target configuration.
type Resolver struct {
	lookup Lookup
	opts   Options
}

// NewResolver creates a resolver. Empty options take the INSPIRE GML defaults.
func NewResolver(lookup Lookup, opts Options) *Resolver {
	if opts.FallbackProviderID == "" {
		opts.FallbackProviderID = "eu.esdihumboldt.hale.io.gml.xplan.writer"
	}
	if opts.FallbackFilename == "" {
		opts.FallbackFilename = "inspire.gml"
	}
	return &Resolver{lookup: lookup, opts: opts}
}

// Resolve picks the hale-connect preset, then the default preset, then a
// custom target. It never fails; a nil project resolves to the custom target.
func (r *Resolver) Resolve(ctx context.Context, project *domain.Project, sourceCRS string) domain.TargetConfiguration {
	presets := r.Presets(ctx, project)

	for _, name := range []string{PresetHaleConnect, PresetDefault} {
		preset, ok := presets[name]
		if !ok {
			continue
		}
		filename, ambiguous := r.FileName(ctx, preset)
		logger.CtxInfo(ctx, "Using export preset %q with target file %s", name, filename)
		return domain.TargetConfiguration{
			Filename:             filename,
			PresetID:             name,
			AmbiguousContentType: ambiguous,
		}
	}

	targetCRS := TargetCRS(sourceCRS)
	logger.CtxInfo(ctx, "Using %s as the transformation target CRS", targetCRS)

	return domain.TargetConfiguration{
		Filename: r.opts.FallbackFilename,
		Custom: &domain.CustomTarget{
			ProviderID: r.opts.FallbackProviderID,
			Settings: domain.Settings{
				domain.SettingXMLPretty:     true,
				domain.SettingCRSEPSGPrefix: domain.EPSGNamespacePrefix,
				domain.SettingCRS:           targetCRS,
			},
		},
	}
}

// TargetCRS returns sourceCRS when it is an EPSG code reference and the
// default target CRS otherwise.
func TargetCRS(sourceCRS string) string {
	if sourceCRS != "" && strings.HasPrefix(sourceCRS, domain.EPSGCodePrefix) {
		return sourceCRS
	}
	return domain.DefaultTargetCRS
}

// Presets returns the export presets of a project that write transformed
// data with a known instance writer. Unnamed presets take the writer's name.
func (r *Resolver) Presets(ctx context.Context, project *domain.Project) map[string]domain.IOConfiguration {
	presets := make(map[string]domain.IOConfiguration)
	if project == nil {
		return presets
	}

	names := make([]string, 0, len(project.ExportConfigurations))
	for name := range project.ExportConfigurations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cfg := project.ExportConfigurations[name]
		if cfg.ActionID != domain.ActionSaveTransformedData {
			continue
		}

		writer, ok := r.lookup.Writer(cfg.ProviderID)
		if !ok {
			logger.FromContext(ctx).WithField("preset", name).
				Errorf("I/O provider %s for export preset not found", cfg.ProviderID)
			continue
		}

		key := name
		if key == "" {
			key = writer.Name
		}
		if _, exists := presets[key]; !exists {
			presets[key] = cfg.Clone()
		}
	}
	return presets
}

// FileName derives "result.<ext>" for a preset. The second return value
// reports whether the content type was picked among several candidates.
func (r *Resolver) FileName(ctx context.Context, preset domain.IOConfiguration) (string, bool) {
	extension := defaultExtension

	ct, ambiguous, ok := r.contentType(ctx, preset)
	if ok && len(ct.Extensions) > 0 {
		extension = ct.Extensions[0]
	}

	// .gml results have always been delivered as .xml
	if strings.EqualFold(extension, "gml") {
		extension = defaultExtension
	}

	logger.CtxInfo(ctx, "Chose .%s as the extension for the target file", extension)
	return resultBaseName + extension, ambiguous
}

func (r *Resolver) contentType(ctx context.Context, preset domain.IOConfiguration) (ct catalog.ContentType, ambiguous bool, ok bool) {
	if id, set := preset.Settings.String(domain.SettingContentType); set {
		ct, ok = r.lookup.ContentType(id)
		return ct, false, ok
	}

	if preset.ProviderID == "" {
		return ct, false, false
	}

	supported := r.lookup.SupportedTypes(preset.ProviderID)
	if len(supported) == 0 {
		return ct, false, false
	}

	if len(supported) > 1 {
		ids := make([]string, len(supported))
		for i, s := range supported {
			ids[i] = s.ID
		}
		logger.CtxWarn(ctx, "Multiple content types as candidates (%s), chose %s",
			strings.Join(ids, ", "), supported[0].ID)
		return supported[0], true, true
	}
	return supported[0], false, true
}
