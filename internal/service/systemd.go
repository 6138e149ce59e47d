package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"go.uber.org/zap"
)

// SystemdUnit is the user unit name.
const SystemdUnit = "alfred.service"

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=Alfred AI Daemon
After=network.target

[Service]
Type=simple
ExecStart={{.Exec}}
Restart=on-failure
RestartSec=5
StandardOutput=append:{{.LogFile}}
StandardError=append:{{.ErrorLogFile}}

[Install]
WantedBy=default.target
`))

type systemd struct {
	opts Options
	path string
}

func newSystemd(opts Options) *systemd {
	return &systemd{
		opts: opts,
		path: filepath.Join(opts.ConfigHome, "systemd", "user", SystemdUnit),
	}
}

func (s *systemd) Name() string           { return "systemd" }
func (s *systemd) DescriptorPath() string { return s.path }
func (s *systemd) IsInstalled() bool      { return fileExists(s.path) }

func (s *systemd) Install(ctx context.Context, execPath string) error {
	if err := requireAbs(execPath); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, newDescriptor(SystemdUnit, systemdQuote(execPath), s.opts.AlfredDir)); err != nil {
		return fmt.Errorf("render unit: %w", err)
	}
	if err := writeDescriptor(s.path, buf.Bytes()); err != nil {
		return err
	}

	if err := s.systemctl(ctx, "daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	if err := s.systemctl(ctx, "enable", "--now", SystemdUnit); err != nil {
		return fmt.Errorf("failed to enable systemd service: %w", err)
	}
	s.opts.Logger.Info("systemd service installed", zap.String("unit", s.path))
	return nil
}

func (s *systemd) Uninstall(ctx context.Context) error {
	if !s.IsInstalled() {
		return ErrNotInstalled
	}
	if err := s.systemctl(ctx, "disable", "--now", SystemdUnit); err != nil {
		s.opts.Logger.Warn("systemctl disable failed", zap.Error(err))
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove unit: %w", err)
	}
	if err := s.systemctl(ctx, "daemon-reload"); err != nil {
		s.opts.Logger.Warn("systemctl daemon-reload failed", zap.Error(err))
	}
	return nil
}

func (s *systemd) systemctl(ctx context.Context, args ...string) error {
	return s.opts.Runner.Run(ctx, "systemctl", append([]string{"--user"}, args...)...)
}

// systemdQuote quotes a path for ExecStart when it contains spaces.
func systemdQuote(path string) string {
	if !strings.ContainsAny(path, " \t\"\\") {
		return path
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range path {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
