// Package project loads transformation projects and their export presets.
package project

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/timmy/transformer/internal/domain"
)

// zipMagic prefixes zip archives such as .halez project bundles.
var zipMagic = []byte("PK\x03\x04")

// DefaultMaxSize bounds a project document, archive or archive entry.
const DefaultMaxSize int64 = 256 << 20

var (
	ErrNoProjectEntry  = errors.New("archive contains no project file")
	ErrProjectTooLarge = errors.New("project exceeds size limit")
)

type projectXML struct {
	XMLName xml.Name          `xml:"hale-project"`
	Name    string            `xml:"name"`
	Exports []exportConfigXML `xml:"export-config"`
}

type exportConfigXML struct {
	Name          string           `xml:"name,attr"`
	Configuration configurationXML `xml:"configuration"`
}

type configurationXML struct {
	ActionID   string       `xml:"action-id,attr"`
	ProviderID string       `xml:"provider-id,attr"`
	Settings   []settingXML `xml:"setting"`
}

// settingXML keeps the character data of a setting; nested value
// elements are not used by export presets.
type settingXML struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// Opener opens a project location.
type Opener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// Loader fetches and parses projects.
type Loader struct {
	opener  Opener
	maxSize int64
}

// NewLoader creates a loader reading locations through opener. Projects
// larger than maxSize bytes are rejected; maxSize <= 0 uses DefaultMaxSize.
func NewLoader(opener Opener, maxSize int64) *Loader {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Loader{opener: opener, maxSize: maxSize}
}

// Load fetches the project at location and parses it.
func (l *Loader) Load(ctx context.Context, location string) (*domain.Project, error) {
	rc, err := l.opener.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return parse(rc, l.maxSize)
}

// Parse reads a project from a project XML document or a zip archive
// containing one, up to DefaultMaxSize bytes.
func Parse(r io.Reader) (*domain.Project, error) {
	return parse(r, DefaultMaxSize)
}

func parse(r io.Reader, maxSize int64) (*domain.Project, error) {
	data, err := readLimited(r, maxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read project: %w", err)
	}

	if bytes.HasPrefix(data, zipMagic) {
		data, err = extractProject(data, maxSize)
		if err != nil {
			return nil, err
		}
	}

	var doc projectXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse project: %w", err)
	}

	project := &domain.Project{
		Name:                 doc.Name,
		ExportConfigurations: make(map[string]domain.IOConfiguration, len(doc.Exports)),
	}
	for _, exp := range doc.Exports {
		// first definition of a name wins
		if _, exists := project.ExportConfigurations[exp.Name]; exists {
			continue
		}
		settings := make(domain.Settings, len(exp.Configuration.Settings))
		for _, s := range exp.Configuration.Settings {
			settings[s.Name] = strings.TrimSpace(s.Value)
		}
		project.ExportConfigurations[exp.Name] = domain.IOConfiguration{
			ActionID:   exp.Configuration.ActionID,
			ProviderID: exp.Configuration.ProviderID,
			Settings:   settings,
		}
	}
	return project, nil
}

func extractProject(data []byte, maxSize int64) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open project archive: %w", err)
	}

	var candidate *zip.File
	for _, f := range zr.File {
		name := strings.ToLower(path.Base(f.Name))
		if strings.HasSuffix(name, ".halex") {
			candidate = f
			break
		}
		if name == "project.xml" && candidate == nil {
			candidate = f
		}
	}
	if candidate == nil {
		return nil, ErrNoProjectEntry
	}
	if candidate.UncompressedSize64 > uint64(maxSize) {
		return nil, fmt.Errorf("%s in archive: %w", candidate.Name, ErrProjectTooLarge)
	}

	rc, err := candidate.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s in archive: %w", candidate.Name, err)
	}
	defer rc.Close()

	// the declared size is not trusted
	data, err = readLimited(rc, maxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s in archive: %w", candidate.Name, err)
	}
	return data, nil
}

// readLimited reads r fully, failing once more than maxSize bytes arrive.
func readLimited(r io.Reader, maxSize int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, ErrProjectTooLarge
	}
	return data, nil
}
