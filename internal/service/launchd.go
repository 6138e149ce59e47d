package service

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"go.uber.org/zap"
)

// LaunchdLabel identifies the launch agent.
const LaunchdLabel = "com.alfred.daemon"

var plistTemplate = template.Must(template.New("plist").Funcs(template.FuncMap{
	"xml": xmlEscape,
}).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{xml .Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{xml .Exec}}</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<false/>
	<key>StandardOutPath</key>
	<string>{{xml .LogFile}}</string>
	<key>StandardErrorPath</key>
	<string>{{xml .ErrorLogFile}}</string>
</dict>
</plist>
`))

func xmlEscape(s string) (string, error) {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type launchd struct {
	opts Options
	path string
}

func newLaunchd(opts Options) *launchd {
	return &launchd{
		opts: opts,
		path: filepath.Join(opts.Home, "Library", "LaunchAgents", LaunchdLabel+".plist"),
	}
}

func (l *launchd) Name() string           { return "launchd" }
func (l *launchd) DescriptorPath() string { return l.path }
func (l *launchd) IsInstalled() bool      { return fileExists(l.path) }

func (l *launchd) Install(ctx context.Context, execPath string) error {
	if err := requireAbs(execPath); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := plistTemplate.Execute(&buf, newDescriptor(LaunchdLabel, execPath, l.opts.AlfredDir)); err != nil {
		return fmt.Errorf("render plist: %w", err)
	}

	// launchctl refuses to load a label twice.
	if l.IsInstalled() {
		if err := l.opts.Runner.Run(ctx, "launchctl", "unload", "-w", l.path); err != nil {
			l.opts.Logger.Debug("unload before reinstall failed", zap.Error(err))
		}
	}
	if err := writeDescriptor(l.path, buf.Bytes()); err != nil {
		return err
	}
	if err := l.opts.Runner.Run(ctx, "launchctl", "load", "-w", l.path); err != nil {
		return fmt.Errorf("failed to load launchd service: %w", err)
	}
	l.opts.Logger.Info("launchd service installed", zap.String("plist", l.path))
	return nil
}

func (l *launchd) Uninstall(ctx context.Context) error {
	if !l.IsInstalled() {
		return ErrNotInstalled
	}
	if err := l.opts.Runner.Run(ctx, "launchctl", "unload", "-w", l.path); err != nil {
		l.opts.Logger.Warn("launchctl unload failed", zap.Error(err))
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove plist: %w", err)
	}
	return nil
}
