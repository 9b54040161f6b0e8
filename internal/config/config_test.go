package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/querysql"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Dialect)
	assert.Equal(t, FormatText, cfg.Format)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Same(t, querysql.Postgres, cfg.DialectValue())
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("QUARRY_DIALECT", "sqlite")
	t.Setenv("QUARRY_LOG_LEVEL", "debug")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Dialect)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dialect: mysql\nformat: json\nlog:\n  format: json\n"), 0o644))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Dialect)
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestFlagsOverrideEnvironmentAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dialect: mysql\n"), 0o644))
	t.Setenv("QUARRY_DIALECT", "h2")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("dialect", "postgres", "")
	require.NoError(t, fs.Parse([]string{"--dialect", "sqlserver"}))

	v := New()
	require.NoError(t, BindFlags(v, fs))
	cfg, err := Load(v, path)
	require.NoError(t, err)
	assert.Equal(t, "sqlserver", cfg.Dialect)
}

func TestLoadRejectsUnknownValues(t *testing.T) {
	tests := []struct {
		env, value, want string
	}{
		{"QUARRY_DIALECT", "oracle", "unknown dialect"},
		{"QUARRY_FORMAT", "xml", `format "xml"`},
		{"QUARRY_LOG_LEVEL", "loud", `log level "loud"`},
		{"QUARRY_LOG_FORMAT", "logfmt", `log format "logfmt"`},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := Load(New(), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
