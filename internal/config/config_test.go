package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonletto/alfred/internal/paths"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile_Missing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, uint16(DefaultPort), cfg.Daemon.Port)
	assert.Equal(t, uint32(DefaultIdleTimeoutMinutes), cfg.Daemon.IdleTimeoutMinutes)
	assert.False(t, cfg.Daemon.AutoStart)
	assert.Empty(t, cfg.ModelPath)
	assert.Equal(t, DefaultRunner, cfg.Runner)
}

func TestLoadFile_PartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "model_path: /models/m.gguf\ndaemon:\n  auto_start: true\n")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/models/m.gguf", cfg.ModelPath)
	assert.True(t, cfg.Daemon.AutoStart)
	assert.Equal(t, uint16(DefaultPort), cfg.Daemon.Port)
	assert.Equal(t, uint32(DefaultIdleTimeoutMinutes), cfg.Daemon.IdleTimeoutMinutes)
}

func TestLoadFile_ZeroValues(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "daemon:\n  port: 0\n  idle_timeout_minutes: 0\n")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, uint16(DefaultPort), cfg.Daemon.Port, "port 0 falls back to the default")
	assert.Equal(t, uint32(0), cfg.Daemon.IdleTimeoutMinutes, "idle timeout 0 means never")
	assert.Equal(t, time.Duration(0), cfg.Daemon.IdleTimeout())
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not yaml", "daemon: [unclosed\n"},
		{"port out of range", "daemon:\n  port: 70000\n"},
		{"negative idle", "daemon:\n  idle_timeout_minutes: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, t.TempDir(), tt.body))
			assert.Error(t, err)
		})
	}
}

func TestSaveFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.ModelPath = "/models/other.gguf"
	cfg.Daemon.Port = 9000
	cfg.Daemon.IdleTimeoutMinutes = 5
	cfg.Daemon.AutoStart = true

	require.NoError(t, SaveFile(path, cfg))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestLoad_UsesAlfredHomeAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv(paths.HomeEnv, home)
	writeConfig(t, home, "daemon:\n  port: 8100\n  idle_timeout_minutes: 10\n")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, uint16(8100), cfg.Daemon.Port)
	assert.Equal(t, "127.0.0.1:8100", cfg.Daemon.Addr())
	assert.Equal(t, 10*time.Minute, cfg.Daemon.IdleTimeout())

	t.Setenv(EnvPort, "8200")
	t.Setenv(EnvIdleTimeout, "0")
	t.Setenv(EnvAutoStart, "yes")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, uint16(8200), cfg.Daemon.Port)
	assert.Equal(t, uint32(0), cfg.Daemon.IdleTimeoutMinutes)
	assert.True(t, cfg.Daemon.AutoStart)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidEnvIgnored(t *testing.T) {
	t.Setenv(paths.HomeEnv, t.TempDir())
	t.Setenv(EnvPort, "not-a-port")
	t.Setenv(EnvAutoStart, "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, uint16(DefaultPort), cfg.Daemon.Port)
	assert.False(t, cfg.Daemon.AutoStart)
}

func TestLoad_BadLogLevel(t *testing.T) {
	home := t.TempDir()
	t.Setenv(paths.HomeEnv, home)
	writeConfig(t, home, "log_level: chatty\n")

	_, err := Load()
	assert.ErrorContains(t, err, "log_level")
}

func TestResolvedModelPath(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "/a/models/phi-3-mini-q4.gguf", cfg.ResolvedModelPath("/a"))

	cfg.ModelPath = "/explicit/model.gguf"
	assert.Equal(t, "/explicit/model.gguf", cfg.ResolvedModelPath("/a"))

	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg.ModelPath = "~/m.gguf"
	assert.Equal(t, filepath.Join(home, "m.gguf"), cfg.ResolvedModelPath("/a"))
}
