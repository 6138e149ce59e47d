// Package service installs alferd as a login-time OS service: a launchd
// agent on macOS and a systemd user unit on Linux.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/leonletto/alfred/internal/paths"
	"github.com/leonletto/alfred/internal/safecmd"
)

var (
	// ErrUnsupported is returned on platforms without a service manager.
	ErrUnsupported = errors.New("service installation is not supported on this platform")
	// ErrNotInstalled is returned by Uninstall when no descriptor exists.
	ErrNotInstalled = errors.New("service is not installed")
)

// Manager writes and removes the service descriptor for alferd and asks the
// platform service manager to load it.
type Manager interface {
	// Install writes a descriptor referencing execPath and loads it.
	// Installing twice replaces the descriptor.
	Install(ctx context.Context, execPath string) error
	// Uninstall unloads and removes the descriptor, or returns
	// ErrNotInstalled.
	Uninstall(ctx context.Context) error
	IsInstalled() bool
	DescriptorPath() string
	Name() string
}

// Runner runs a service manager command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type commandRunner struct{}

func (commandRunner) Run(ctx context.Context, name string, args ...string) error {
	_, err := safecmd.Run(ctx, safecmd.ServiceTimeout, name, args...)
	return err
}

// Options locates the descriptor and log files.
type Options struct {
	Home       string // user home directory
	ConfigHome string // XDG config home; empty means Home/.config
	AlfredDir  string // per-user alfred directory holding the log files
	Runner     Runner
	Logger     *zap.Logger
}

// DefaultOptions fills Options from the environment.
func DefaultOptions() (Options, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Options{}, fmt.Errorf("find home directory: %w", err)
	}
	dir, err := paths.AlfredDir()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Home:       home,
		ConfigHome: os.Getenv("XDG_CONFIG_HOME"),
		AlfredDir:  dir,
	}, nil
}

func (o Options) withDefaults() Options {
	if o.ConfigHome == "" {
		o.ConfigHome = filepath.Join(o.Home, ".config")
	}
	if o.Runner == nil {
		o.Runner = commandRunner{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// ForPlatform returns the manager for goos, as reported by runtime.GOOS.
func ForPlatform(goos string, opts Options) Manager {
	opts = opts.withDefaults()
	switch goos {
	case "darwin":
		return newLaunchd(opts)
	case "linux":
		return newSystemd(opts)
	default:
		return unsupported{goos: goos}
	}
}

// descriptor is the data rendered into a service descriptor template.
type descriptor struct {
	Label        string
	Exec         string
	LogFile      string
	ErrorLogFile string
}

func newDescriptor(label, execPath, alfredDir string) descriptor {
	return descriptor{
		Label:        label,
		Exec:         execPath,
		LogFile:      paths.LogFile(alfredDir),
		ErrorLogFile: paths.ErrorLogFile(alfredDir),
	}
}

// writeDescriptor atomically replaces path with content.
func writeDescriptor(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create service directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil { //nolint:gosec // G306 - service managers read descriptors as the user
		return fmt.Errorf("write service descriptor: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("move service descriptor into place: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func requireAbs(execPath string) error {
	if !filepath.IsAbs(execPath) {
		return fmt.Errorf("daemon executable path must be absolute: %s", execPath)
	}
	return nil
}
