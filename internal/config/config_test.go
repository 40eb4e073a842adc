package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docfate111/HDrepresentation/pkg/fsprog"
)

func TestLoadMissingReturnsDefaults(t *testing.T) {
	t.Setenv("FSPROG_LOG_LEVEL", "")
	t.Setenv("FSPROG_OUTPUT_FORMAT", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, fsprog.Defaults(), cfg.Options())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("FSPROG_LOG_LEVEL", "")
	t.Setenv("FSPROG_OUTPUT_FORMAT", "")

	path := filepath.Join(t.TempDir(), "nested", "fsprog.yaml")
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Output.Format = "yaml"
	cfg.Generator.Seed = 42
	cfg.Generator.MaxFiles = 3
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
	assert.Equal(t, uint64(42), got.Options().Seed)
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	t.Setenv("FSPROG_LOG_LEVEL", "")
	t.Setenv("FSPROG_OUTPUT_FORMAT", "")

	path := filepath.Join(t.TempDir(), "fsprog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("generator:\n  max_syscalls: 5\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Generator.MaxSyscalls)
	assert.Equal(t, fsprog.Defaults().Root, cfg.Generator.Root)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("FSPROG_LOG_LEVEL", func(t *testing.T) {
		t.Setenv("FSPROG_LOG_LEVEL", "WARN")
		t.Setenv("FSPROG_OUTPUT_FORMAT", "")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, "json", cfg.Output.Format)
	})

	t.Run("FSPROG_OUTPUT_FORMAT", func(t *testing.T) {
		t.Setenv("FSPROG_LOG_LEVEL", "")
		t.Setenv("FSPROG_OUTPUT_FORMAT", "yaml")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "yaml", cfg.Output.Format)
	})
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("FSPROG_LOG_LEVEL", "")
	t.Setenv("FSPROG_OUTPUT_FORMAT", "")
	dir := t.TempDir()

	tests := map[string]string{
		"bad yaml":   "logging: [",
		"bad level":  "logging:\n  level: loud\n",
		"bad format": "output:\n  format: toml\n",
		"bad encode": "logging:\n  format: xml\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
