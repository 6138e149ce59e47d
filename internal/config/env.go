package config

import (
	"os"
	"strconv"
)

// Environment overrides applied by Load on top of config.yaml.
//
//   - ALFRED_MODEL_PATH: model file
//   - ALFRED_RUNNER: inference runner executable
//   - ALFRED_LOG_LEVEL: debug, info, warn or error
//   - ALFRED_DAEMON_PORT: loopback port
//   - ALFRED_DAEMON_IDLE_TIMEOUT: idle timeout in minutes (0 = never)
//   - ALFRED_DAEMON_AUTO_START: "true"/"1"/"yes" or "false"/"0"/"no"
const (
	EnvModelPath   = "ALFRED_MODEL_PATH"
	EnvRunner      = "ALFRED_RUNNER"
	EnvLogLevel    = "ALFRED_LOG_LEVEL"
	EnvPort        = "ALFRED_DAEMON_PORT"
	EnvIdleTimeout = "ALFRED_DAEMON_IDLE_TIMEOUT"
	EnvAutoStart   = "ALFRED_DAEMON_AUTO_START"
)

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvModelPath); v != "" {
		cfg.ModelPath = v
	}
	if v := os.Getenv(EnvRunner); v != "" {
		cfg.Runner = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v, ok := envUint(EnvPort, 16); ok && v > 0 {
		cfg.Daemon.Port = uint16(v)
	}
	if v, ok := envUint(EnvIdleTimeout, 32); ok {
		cfg.Daemon.IdleTimeoutMinutes = uint32(v)
	}
	if v, ok := envBool(EnvAutoStart); ok {
		cfg.Daemon.AutoStart = v
	}
}

// envUint reads an unsigned integer of the given bit size. Unset or invalid
// values report ok=false.
func envUint(key string, bits int) (uint64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, bits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// envBool reads a boolean env var. Unset or unrecognized values report ok=false.
func envBool(key string) (value, ok bool) {
	switch os.Getenv(key) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	}
	return false, false
}
