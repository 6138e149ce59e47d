// Package paths resolves the per-user locations alfred and alferd share.
//
// Everything lives under one directory, ~/.alfred by default. Setting
// ALFRED_HOME relocates the whole tree, which is how tests isolate themselves.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv overrides the alfred directory when set.
const HomeEnv = "ALFRED_HOME"

const (
	configFileName    = "config.yaml"
	pidFileName       = "alferd.pid"
	spawnLockFileName = "alferd.spawn.lock"
	logFileName       = "alferd.log"
	errorLogFileName  = "alferd.error.log"
	modelsDirName     = "models"
	defaultModelName  = "phi-3-mini-q4.gguf"
)

// AlfredDir returns the per-user alfred directory. ALFRED_HOME wins when set
// and must be absolute.
func AlfredDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(HomeEnv)); dir != "" {
		if !filepath.IsAbs(dir) {
			return "", fmt.Errorf("%s must be an absolute path, got: %s", HomeEnv, dir)
		}
		return filepath.Clean(dir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".alfred"), nil
}

// EnsureDir returns AlfredDir after creating it if needed.
func EnsureDir() (string, error) {
	dir, err := AlfredDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// ConfigFile returns the path of config.yaml inside dir.
func ConfigFile(dir string) string {
	return filepath.Join(dir, configFileName)
}

// PIDFile returns the path of the daemon PID record inside dir.
func PIDFile(dir string) string {
	return filepath.Join(dir, pidFileName)
}

// SpawnLockFile returns the path of the lock held while spawning the daemon.
func SpawnLockFile(dir string) string {
	return filepath.Join(dir, spawnLockFileName)
}

// LogFile returns the path the daemon's stdout is sent to.
func LogFile(dir string) string {
	return filepath.Join(dir, logFileName)
}

// ErrorLogFile returns the path the daemon's stderr is sent to.
func ErrorLogFile(dir string) string {
	return filepath.Join(dir, errorLogFileName)
}

// ModelsDir returns the directory holding downloaded model files.
func ModelsDir(dir string) string {
	return filepath.Join(dir, modelsDirName)
}

// DefaultModelPath is used when the config does not name a model.
func DefaultModelPath(dir string) string {
	return filepath.Join(ModelsDir(dir), defaultModelName)
}
