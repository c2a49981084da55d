package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Transformer.WaitTimeout)
	assert.Equal(t, "inspire.gml", cfg.Transformer.FallbackFilename)
	assert.Equal(t, "eu.esdihumboldt.hale.io.gml.xplan.writer", cfg.Transformer.FallbackProviderID)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.EqualValues(t, 256, cfg.Transformer.MaxProjectSizeMB)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileAndCatalog(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
transformer:
  wait_timeout: 90s
  engine:
    command: /opt/hale/hale
catalog:
  content_types:
    - id: org.geojson
      extensions: [geojson, json]
  providers:
    - id: my.writer
      content_types: [org.geojson]
      writer: true
`))
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Transformer.WaitTimeout)
	assert.Equal(t, "/opt/hale/hale", cfg.Transformer.Engine.Command)
	require.Len(t, cfg.Catalog.ContentTypes, 1)
	assert.Equal(t, []string{"geojson", "json"}, cfg.Catalog.ContentTypes[0].Extensions)
	require.Len(t, cfg.Catalog.Providers, 1)
	assert.True(t, cfg.Catalog.Providers[0].Writer)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TRANSFORMER_WAIT_TIMEOUT", "5m")
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Transformer.WaitTimeout)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "sqlite"},
			Transformer: TransformerConfig{
				WaitTimeout: time.Minute,
				QueueSize:   1,
				Engine:      EngineConfig{Command: "hale"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero timeout", mutate: func(c *Config) { c.Transformer.WaitTimeout = 0 }, wantErr: "wait_timeout"},
		{name: "no engine", mutate: func(c *Config) { c.Transformer.Engine.Command = "" }, wantErr: "engine.command"},
		{name: "amqp without url", mutate: func(c *Config) { c.AMQP = AMQPConfig{Enabled: true, Queue: "q"} }, wantErr: "amqp.url"},
		{name: "bad driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: "database.driver"},
		{name: "catalog entry without id", mutate: func(c *Config) {
			c.Catalog.Providers = []ProviderConfig{{Name: "nameless"}}
		}, wantErr: "catalog.providers[0]"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
