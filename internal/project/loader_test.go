package project

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/transformer/internal/domain"
)

const sampleProject = `<?xml version="1.0" encoding="UTF-8"?>
<hale-project version="5.0.0">
  <name>Roads to INSPIRE</name>
  <export-config name="default">
    <configuration action-id="eu.esdihumboldt.hale.io.instance.write.transformed" provider-id="eu.esdihumboldt.hale.io.geojson.writer">
      <setting name="contentType">eu.esdihumboldt.hale.io.geojson</setting>
      <setting name="charset"> UTF-8 </setting>
      <setting name="xml.rootElement.name">Roads&amp;Rivers</setting>
    </configuration>
  </export-config>
  <export-config name="default">
    <configuration action-id="eu.esdihumboldt.hale.io.instance.write.transformed" provider-id="ignored.duplicate"/>
  </export-config>
  <export-config name="alignment">
    <configuration action-id="eu.esdihumboldt.hale.io.align.write" provider-id="eu.esdihumboldt.hale.io.html.writer"/>
  </export-config>
</hale-project>`

func TestParse_XML(t *testing.T) {
	p, err := Parse(strings.NewReader(sampleProject))
	require.NoError(t, err)

	assert.Equal(t, "Roads to INSPIRE", p.Name)
	require.Len(t, p.ExportConfigurations, 2)

	def := p.ExportConfigurations["default"]
	assert.Equal(t, domain.ActionSaveTransformedData, def.ActionID)
	assert.Equal(t, "eu.esdihumboldt.hale.io.geojson.writer", def.ProviderID)
	assert.Equal(t, "eu.esdihumboldt.hale.io.geojson", def.Settings[domain.SettingContentType])
	assert.Equal(t, "UTF-8", def.Settings["charset"])
	assert.Equal(t, "Roads&Rivers", def.Settings["xml.rootElement.name"])
}

func TestParse_Archive(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("data/source.gml")
	require.NoError(t, err)
	_, _ = w.Write([]byte("<gml/>"))
	w, err = zw.Create("roads.halex")
	require.NoError(t, err)
	_, _ = w.Write([]byte(sampleProject))
	require.NoError(t, zw.Close())

	p, err := Parse(&buf)
	require.NoError(t, err)
	assert.Contains(t, p.ExportConfigurations, "default")
}

func TestParse_ArchiveWithoutProject(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("readme.txt")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = Parse(&buf)
	assert.ErrorIs(t, err, ErrNoProjectEntry)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse(strings.NewReader("not xml"))
	assert.Error(t, err)
}

func TestLoader_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/project.halex" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(sampleProject))
	}))
	defer srv.Close()

	loader := NewLoader(NewFetcher(5*time.Second), 0)

	p, err := loader.Load(context.Background(), srv.URL+"/project.halex")
	require.NoError(t, err)
	assert.Equal(t, "Roads to INSPIRE", p.Name)

	_, err = loader.Load(context.Background(), srv.URL+"/missing.halex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestLoader_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.halex")
	require.NoError(t, os.WriteFile(path, []byte(sampleProject), 0o644))

	loader := NewLoader(NewFetcher(time.Second), 0)

	for _, location := range []string{path, "file://" + path} {
		p, err := loader.Load(context.Background(), location)
		require.NoError(t, err, location)
		assert.Contains(t, p.ExportConfigurations, "default")
	}

	_, err := loader.Load(context.Background(), "ftp://example.com/project.halex")
	assert.Error(t, err)
}

func TestLoader_SizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleProject))
	}))
	defer srv.Close()

	small := NewLoader(NewFetcher(5*time.Second), 64)
	_, err := small.Load(context.Background(), srv.URL+"/project.halex")
	assert.ErrorIs(t, err, ErrProjectTooLarge)

	exact := NewLoader(NewFetcher(5*time.Second), int64(len(sampleProject)))
	_, err = exact.Load(context.Background(), srv.URL+"/project.halex")
	assert.NoError(t, err)
}

func TestParse_ArchiveEntryTooLarge(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("project.halex")
	require.NoError(t, err)
	// compresses to a few kilobytes, well under the limit as an archive
	_, _ = w.Write(bytes.Repeat([]byte(" "), 4<<20))
	require.NoError(t, zw.Close())
	require.Less(t, buf.Len(), 1<<20)

	_, err = parse(&buf, 1<<20)
	assert.ErrorIs(t, err, ErrProjectTooLarge)
}
