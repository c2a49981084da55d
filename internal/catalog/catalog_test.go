package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/transformer/internal/config"
)

func TestSupportedTypes_SortedByID(t *testing.T) {
	c := New()
	c.AddContentType(ContentType{ID: "z.type", Extensions: []string{"z"}})
	c.AddContentType(ContentType{ID: "a.type", Extensions: []string{"a"}})
	c.AddProvider(Provider{ID: "p", ContentTypes: []string{"z.type", "missing", "a.type"}})

	types := c.SupportedTypes("p")
	require.Len(t, types, 2)
	assert.Equal(t, "a.type", types[0].ID)
	assert.Equal(t, "z.type", types[1].ID)

	assert.Nil(t, c.SupportedTypes("unknown"))
}

func TestWriter(t *testing.T) {
	c := Default()

	_, ok := c.Writer("eu.esdihumboldt.hale.io.gml.writer")
	assert.True(t, ok)

	_, ok = c.Writer("eu.esdihumboldt.hale.io.gml.reader")
	assert.False(t, ok, "readers cannot back export presets")
}

func TestFromConfig_OverridesBuiltins(t *testing.T) {
	c := FromConfig(&config.CatalogConfig{
		ContentTypes: []config.ContentTypeConfig{{ID: ContentTypeGML, Extensions: []string{"xml"}}},
		Providers:    []config.ProviderConfig{{ID: "custom.writer", ContentTypes: []string{ContentTypeCSV}, Writer: true}},
	})

	ct, ok := c.ContentType(ContentTypeGML)
	require.True(t, ok)
	assert.Equal(t, []string{"xml"}, ct.Extensions)

	_, ok = c.Writer("custom.writer")
	assert.True(t, ok)

	_, ok = c.Provider("eu.esdihumboldt.hale.io.geojson.writer")
	assert.True(t, ok, "built-ins are kept")
}
