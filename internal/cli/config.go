package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/leonletto/alfred/internal/config"
)

// ConfigUpdate lists the fields `alfred config` may change. Nil pointers
// leave the stored value alone.
type ConfigUpdate struct {
	Model       *string
	Port        *uint16
	IdleTimeout *uint32
	AutoStart   *bool
	Reset       bool
}

// Empty reports whether the update changes nothing.
func (u ConfigUpdate) Empty() bool {
	return !u.Reset && u.Model == nil && u.Port == nil && u.IdleTimeout == nil && u.AutoStart == nil
}

// UpdateConfig applies u to the config file at path and returns the stored
// result. Environment overrides are not written back.
func UpdateConfig(path string, u ConfigUpdate) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if u.Reset {
		cfg = config.Default()
	}
	if u.Model != nil {
		cfg.ModelPath = strings.TrimSpace(*u.Model)
	}
	if u.Port != nil {
		if *u.Port == 0 {
			return nil, errors.New("port must be between 1 and 65535")
		}
		cfg.Daemon.Port = *u.Port
	}
	if u.IdleTimeout != nil {
		cfg.Daemon.IdleTimeoutMinutes = *u.IdleTimeout
	}
	if u.AutoStart != nil {
		cfg.Daemon.AutoStart = *u.AutoStart
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := config.SaveFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FormatConfig renders the effective configuration. dir resolves the
// default model location.
func FormatConfig(cfg *config.Config, dir string) string {
	var b strings.Builder
	model := cfg.ResolvedModelPath(dir)

	fmt.Fprintf(&b, "Model:        %s\n", model)
	if info, err := os.Stat(model); err == nil {
		fmt.Fprintf(&b, "Model size:   %s\n", humanize.IBytes(uint64(info.Size()))) //nolint:gosec // G115 - size is non-negative
	} else {
		b.WriteString("Model size:   (not found)\n")
	}
	fmt.Fprintf(&b, "Runner:       %s\n", cfg.Runner)
	fmt.Fprintf(&b, "Log level:    %s\n", cfg.LogLevel)
	fmt.Fprintf(&b, "Port:         %d\n", cfg.Daemon.Port)
	if cfg.Daemon.IdleTimeoutMinutes > 0 {
		fmt.Fprintf(&b, "Idle timeout: %d minutes\n", cfg.Daemon.IdleTimeoutMinutes)
	} else {
		b.WriteString("Idle timeout: disabled\n")
	}
	fmt.Fprintf(&b, "Auto start:   %t\n", cfg.Daemon.AutoStart)
	return b.String()
}
