package logger

import (
	"io"
	"os"
	"strconv"
)

// EnvConfig is the logger configuration read from the process environment.
type EnvConfig struct {
	Config

	// Environment is local, dev or prod. Only non-local environments log to a file.
	Environment string
	File        FileConfig
}

// FileConfig controls the rotating log file.
type FileConfig struct {
	Path       string
	Only       bool // skip stdout outside the local environment
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// LoadFromEnv reads LOG_*, SERVICE_NAME and APP_ENV.
func LoadFromEnv() *EnvConfig {
	return loadEnv(os.Getenv)
}

func loadEnv(getenv func(string) string) *EnvConfig {
	env := envReader(getenv)
	return &EnvConfig{
		Config: Config{
			Level:       env.str("LOG_LEVEL", "info"),
			Format:      env.str("LOG_FORMAT", "json"),
			ServiceName: env.str("SERVICE_NAME", "transformer"),
		},
		Environment: env.str("APP_ENV", "local"),
		File: FileConfig{
			Path:       env.str("LOG_FILE", "/var/log/transformer/transformer.log"),
			Only:       env.boolean("LOG_FILE_ONLY", false),
			MaxSizeMB:  env.integer("LOG_MAX_SIZE", 100),
			MaxBackups: env.integer("LOG_MAX_BACKUPS", 7),
			MaxAgeDays: env.integer("LOG_MAX_AGE", 30),
			Compress:   env.boolean("LOG_COMPRESS", true),
		},
	}
}

// writesFile reports whether logs go to the rotating file.
func (e *EnvConfig) writesFile() bool {
	return e.Environment != "local" && e.File.Path != ""
}

// writers returns the configured destinations, stdout when nothing else is.
func (e *EnvConfig) writers(file io.Writer) []io.Writer {
	var out []io.Writer
	if !e.writesFile() || !e.File.Only {
		out = append(out, os.Stdout)
	}
	if e.writesFile() && file != nil {
		out = append(out, file)
	}
	if len(out) == 0 {
		out = append(out, os.Stdout)
	}
	return out
}

type envReader func(string) string

func (r envReader) str(key, def string) string {
	if v := r(key); v != "" {
		return v
	}
	return def
}

func (r envReader) boolean(key string, def bool) bool {
	b, err := strconv.ParseBool(r(key))
	if err != nil {
		return def
	}
	return b
}

func (r envReader) integer(key string, def int) int {
	i, err := strconv.Atoi(r(key))
	if err != nil {
		return def
	}
	return i
}
