package config

import "fmt"

// CatalogConfig extends the built-in content type and provider registry.
type CatalogConfig struct {
	ContentTypes []ContentTypeConfig `mapstructure:"content_types"`
	Providers    []ProviderConfig    `mapstructure:"providers"`
}

// ContentTypeConfig declares a content type and its file extensions, most preferred first.
type ContentTypeConfig struct {
	ID         string   `mapstructure:"id"`
	Extensions []string `mapstructure:"extensions"`
}

// ProviderConfig declares an I/O provider and the content types it supports.
type ProviderConfig struct {
	ID           string   `mapstructure:"id"`
	Name         string   `mapstructure:"name"`
	ContentTypes []string `mapstructure:"content_types"`
	Writer       bool     `mapstructure:"writer"` // instance writer usable for export presets
}

// Validate checks that every catalog entry has an identifier.
func (c *CatalogConfig) Validate() error {
	for i, ct := range c.ContentTypes {
		if ct.ID == "" {
			return fmt.Errorf("catalog.content_types[%d]: id is required", i)
		}
	}
	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("catalog.providers[%d]: id is required", i)
		}
	}
	return nil
}
