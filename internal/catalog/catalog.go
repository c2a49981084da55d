// Package catalog answers content type and I/O provider lookups for target
// configuration resolution.
package catalog

import (
	"sort"
	"sync"

	"github.com/timmy/transformer/internal/config"
)

// ContentType is a registered content type with its file extensions, most
// preferred first.
type ContentType struct {
	ID         string
	Extensions []string
}

// Provider is a registered I/O provider.
type Provider struct {
	ID           string
	Name         string
	ContentTypes []string
	// Writer marks instance writers that may back an export preset.
	Writer bool
}

// Catalog is an in-memory registry of content types and providers.
// It is safe for concurrent use.
type Catalog struct {
	mu           sync.RWMutex
	contentTypes map[string]ContentType
	providers    map[string]Provider
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		contentTypes: make(map[string]ContentType),
		providers:    make(map[string]Provider),
	}
}

// FromConfig returns the built-in catalog extended by configured entries.
// Configured entries replace built-ins with the same ID.
func FromConfig(cfg *config.CatalogConfig) *Catalog {
	c := Default()
	if cfg == nil {
		return c
	}
	for _, ct := range cfg.ContentTypes {
		c.AddContentType(ContentType{ID: ct.ID, Extensions: ct.Extensions})
	}
	for _, p := range cfg.Providers {
		c.AddProvider(Provider{ID: p.ID, Name: p.Name, ContentTypes: p.ContentTypes, Writer: p.Writer})
	}
	return c
}

// AddContentType registers or replaces a content type.
func (c *Catalog) AddContentType(ct ContentType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contentTypes[ct.ID] = ct
}

// AddProvider registers or replaces a provider.
func (c *Catalog) AddProvider(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[p.ID] = p
}

// ContentType looks up a content type by ID.
func (c *Catalog) ContentType(id string) (ContentType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ct, ok := c.contentTypes[id]
	return ct, ok
}

// Provider looks up a provider by ID.
func (c *Catalog) Provider(id string) (Provider, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.providers[id]
	return p, ok
}

// Writer looks up a provider that is an instance writer.
func (c *Catalog) Writer(id string) (Provider, bool) {
	p, ok := c.Provider(id)
	if !ok || !p.Writer {
		return Provider{}, false
	}
	return p, true
}

// SupportedTypes returns the registered content types of a provider ordered
// lexicographically by ID. Unknown content type IDs are skipped.
func (c *Catalog) SupportedTypes(providerID string) []ContentType {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.providers[providerID]
	if !ok {
		return nil
	}

	types := make([]ContentType, 0, len(p.ContentTypes))
	for _, id := range p.ContentTypes {
		if ct, ok := c.contentTypes[id]; ok {
			types = append(types, ct)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i].ID < types[j].ID })
	return types
}
