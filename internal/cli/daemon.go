package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/leonletto/alfred/internal/config"
	"github.com/leonletto/alfred/internal/daemon"
	"github.com/leonletto/alfred/internal/llm"
	"github.com/leonletto/alfred/internal/paths"
	"github.com/leonletto/alfred/internal/service"
)

// DaemonBinaryName is the daemon executable name.
const DaemonBinaryName = "alferd"

// ErrDaemonBinaryNotFound is returned when no alferd executable can be found.
var ErrDaemonBinaryNotFound = errors.New("could not find alferd binary; make sure it is installed next to alfred or in your PATH")

// Manager timing defaults.
const (
	DefaultStartTimeout = 30 * time.Second
	DefaultStopTimeout  = 10 * time.Second
	spawnLockTimeout    = 5 * time.Second
	pollInterval        = 100 * time.Millisecond
)

// StartResult describes what Start did.
type StartResult struct {
	AlreadyRunning bool   `json:"already_running"`
	Starting       bool   `json:"starting,omitempty"` // process alive but not answering yet
	PID            int    `json:"pid,omitempty"`
	Binary         string `json:"binary,omitempty"`
	Ready          bool   `json:"ready"`
}

// StopResult describes what Stop did.
type StopResult struct {
	AlreadyStopped bool `json:"already_stopped"`
	Forced         bool `json:"forced,omitempty"` // signalled via the PID record
	PID            int  `json:"pid,omitempty"`
}

// DaemonStatusResult contains daemon status information. Reachability,
// configuration and service installation are computed independently.
type DaemonStatusResult struct {
	Running            bool   `json:"running"`
	Status             string `json:"status"`
	Addr               string `json:"addr"`
	Port               uint16 `json:"port"`
	IdleTimeoutMinutes uint32 `json:"idle_timeout_minutes"`
	ServiceInstalled   bool   `json:"service_installed"`
	ServiceManager     string `json:"service_manager,omitempty"`
	ServicePath        string `json:"service_path,omitempty"`
	PID                int    `json:"pid,omitempty"`
	Uptime             string `json:"uptime,omitempty"`
	Version            string `json:"version,omitempty"`
	ModelLoaded        bool   `json:"model_loaded,omitempty"`
	RequestsServed     uint64 `json:"requests_served,omitempty"`
	InstanceMismatch   bool   `json:"instance_mismatch,omitempty"`
}

// Spawner starts the daemon executable detached from the caller and
// returns its pid.
type Spawner func(binary string) (int, error)

// DaemonManager starts, stops, inspects and installs alferd. It keeps no
// state about the daemon; every call re-derives it from the protocol or the
// PID record.
type DaemonManager struct {
	dir          string
	cfg          *config.Config
	service      service.Manager
	logger       *zap.Logger
	clientOpts   []daemon.ClientOption
	binary       string
	spawn        Spawner
	terminate    func(pid int) error
	startTimeout time.Duration
	stopTimeout  time.Duration
}

// ManagerOption configures a DaemonManager.
type ManagerOption func(*DaemonManager)

// WithServiceManager sets the platform service manager.
func WithServiceManager(m service.Manager) ManagerOption {
	return func(d *DaemonManager) { d.service = m }
}

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *zap.Logger) ManagerOption {
	return func(d *DaemonManager) { d.logger = logger }
}

// WithDaemonBinary skips the alferd lookup.
func WithDaemonBinary(path string) ManagerOption {
	return func(d *DaemonManager) { d.binary = path }
}

// WithSpawner replaces the detached process spawn.
func WithSpawner(s Spawner) ManagerOption {
	return func(d *DaemonManager) { d.spawn = s }
}

// WithTerminator replaces the signal sent when the shutdown request fails.
func WithTerminator(fn func(pid int) error) ManagerOption {
	return func(d *DaemonManager) { d.terminate = fn }
}

// WithClientOptions sets the options used for every daemon connection.
func WithClientOptions(opts ...daemon.ClientOption) ManagerOption {
	return func(d *DaemonManager) { d.clientOpts = opts }
}

// WithTimeouts overrides how long Start and Stop wait for the daemon.
func WithTimeouts(start, stop time.Duration) ManagerOption {
	return func(d *DaemonManager) {
		d.startTimeout = start
		d.stopTimeout = stop
	}
}

// NewDaemonManager creates a manager for the daemon configured by cfg whose
// PID record and logs live in dir.
func NewDaemonManager(dir string, cfg *config.Config, opts ...ManagerOption) *DaemonManager {
	d := &DaemonManager{
		dir:          dir,
		cfg:          cfg,
		logger:       zap.NewNop(),
		terminate:    terminateProcess,
		startTimeout: DefaultStartTimeout,
		stopTimeout:  DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.spawn == nil {
		d.spawn = d.spawnDetached
	}
	return d
}

// Addr returns the daemon address.
func (d *DaemonManager) Addr() string {
	return d.cfg.Daemon.Addr()
}

func (d *DaemonManager) pidFile() string {
	return paths.PIDFile(d.dir)
}

func (d *DaemonManager) reachable(ctx context.Context) bool {
	return daemon.IsDaemonRunning(ctx, d.Addr(), d.clientOpts...)
}

// Start spawns alferd unless it is already reachable. With wait it polls
// until the daemon answers ping.
func (d *DaemonManager) Start(ctx context.Context, wait bool) (*StartResult, error) {
	if d.reachable(ctx) {
		return &StartResult{AlreadyRunning: true, Ready: true}, nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, spawnLockTimeout)
	defer cancel()
	lock, err := daemon.AcquireLockWait(lockCtx, paths.SpawnLockFile(d.dir), 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquire spawn lock: %w", err)
	}
	defer func() { _ = lock.Release() }()

	// Another alfred may have started it while we waited for the lock.
	if d.reachable(ctx) {
		return &StartResult{AlreadyRunning: true, Ready: true}, nil
	}
	if info, ok := daemon.LiveDaemon(d.pidFile(), DaemonBinaryName); ok {
		d.logger.Debug("daemon process alive but not answering yet", zap.Int("pid", info.PID))
		res := &StartResult{AlreadyRunning: true, Starting: true, PID: info.PID}
		if wait {
			if err := d.waitReachable(ctx); err != nil {
				return res, err
			}
			res.Ready = true
		}
		return res, nil
	}

	binary := d.binary
	if binary == "" {
		if binary, err = FindDaemonBinary(); err != nil {
			return nil, err
		}
	}

	pid, err := d.spawn(binary)
	if err != nil {
		return nil, fmt.Errorf("failed to start daemon from %s: %w", binary, err)
	}
	d.logger.Info("daemon spawned", zap.String("binary", binary), zap.Int("pid", pid))

	res := &StartResult{PID: pid, Binary: binary}
	if wait {
		if err := d.waitReachable(ctx); err != nil {
			return res, err
		}
		res.Ready = true
	}
	return res, nil
}

func (d *DaemonManager) waitReachable(ctx context.Context) error {
	deadline := time.Now().Add(d.startTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if d.reachable(ctx) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for daemon to start; see %s", paths.ErrorLogFile(d.dir))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// spawnDetached starts binary in its own session with output appended to
// the daemon log files, then releases it.
func (d *DaemonManager) spawnDetached(binary string) (int, error) {
	if err := os.MkdirAll(d.dir, 0o700); err != nil {
		return 0, fmt.Errorf("create alfred directory: %w", err)
	}
	stdout, err := openLog(paths.LogFile(d.dir))
	if err != nil {
		return 0, err
	}
	defer func() { _ = stdout.Close() }()
	stderr, err := openLog(paths.ErrorLogFile(d.dir))
	if err != nil {
		return 0, err
	}
	defer func() { _ = stderr.Close() }()

	cmd := exec.Command(binary) //nolint:gosec // G204 - binary resolved by FindDaemonBinary
	cmd.Stdin = nil
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = detachAttr()

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid

	// Release instead of Wait so the child is adopted by init/launchd.
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("failed to release daemon process: %w", err)
	}
	return pid, nil
}

func openLog(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // G304 - path inside the alfred directory
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	return f, nil
}

// Stop asks the daemon to shut down, falling back to signalling the pid in
// the PID record. The record is removed on every path.
func (d *DaemonManager) Stop(ctx context.Context) (*StopResult, error) {
	if !d.reachable(ctx) {
		if _, live := daemon.LiveDaemon(d.pidFile(), DaemonBinaryName); !live {
			_ = daemon.RemovePIDFile(d.pidFile())
		}
		return &StopResult{AlreadyStopped: true}, nil
	}
	defer func() {
		if err := daemon.RemovePIDFile(d.pidFile()); err != nil {
			d.logger.Warn("failed to remove PID file", zap.Error(err))
		}
	}()

	res := &StopResult{}
	client := daemon.NewClient(d.Addr(), d.clientOpts...)
	if err := client.Shutdown(ctx); err != nil {
		d.logger.Warn("shutdown request failed, signalling process", zap.Error(err))
		info, readErr := daemon.ReadPIDFileJSON(d.pidFile())
		if readErr != nil {
			return nil, fmt.Errorf("daemon did not accept shutdown (%w) and the PID record is unusable: %w", err, readErr)
		}
		if termErr := d.terminate(info.PID); termErr != nil {
			return nil, fmt.Errorf("failed to signal daemon (PID %d): %w", info.PID, termErr)
		}
		res.Forced = true
		res.PID = info.PID
	}

	if err := d.waitUnreachable(ctx); err != nil {
		return res, err
	}
	return res, nil
}

func (d *DaemonManager) waitUnreachable(ctx context.Context) error {
	deadline := time.Now().Add(d.stopTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if !d.reachable(ctx) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for daemon to stop")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Status reports reachability, the configured port and idle timeout, and
// whether the service descriptor is installed.
func (d *DaemonManager) Status(ctx context.Context) *DaemonStatusResult {
	res := &DaemonStatusResult{
		Status:             "stopped",
		Addr:               d.Addr(),
		Port:               d.cfg.Daemon.Port,
		IdleTimeoutMinutes: d.cfg.Daemon.IdleTimeoutMinutes,
	}
	if d.service != nil {
		res.ServiceManager = d.service.Name()
		res.ServicePath = d.service.DescriptorPath()
		res.ServiceInstalled = d.service.IsInstalled()
	}

	client, err := daemon.Connect(ctx, d.Addr(), d.clientOpts...)
	if err != nil {
		return res
	}
	res.Running = true
	res.Status = "running"

	record, recordErr := daemon.ReadPIDFileJSON(d.pidFile())
	if recordErr == nil {
		res.PID = record.PID
	}

	health, err := client.Health(ctx)
	if err != nil {
		// Daemons without health still answer ping.
		d.logger.Debug("health unavailable", zap.Error(err))
		return res
	}
	res.PID = health.PID
	res.Uptime = formatDuration(time.Duration(health.UptimeMs) * time.Millisecond)
	res.Version = health.Version
	res.ModelLoaded = health.ModelLoaded
	res.RequestsServed = health.RequestsServed
	if recordErr == nil && record.InstanceID != "" && health.InstanceID != "" &&
		record.InstanceID != health.InstanceID {
		res.InstanceMismatch = true
	}
	return res
}

// Install writes the service descriptor for the resolved alferd path.
// It returns the descriptor path.
func (d *DaemonManager) Install(ctx context.Context) (string, error) {
	if d.service == nil {
		return "", service.ErrUnsupported
	}
	binary := d.binary
	if binary == "" {
		var err error
		if binary, err = FindDaemonBinary(); err != nil {
			return "", err
		}
	}
	abs, err := filepath.Abs(binary)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", binary, err)
	}
	if err := d.service.Install(ctx, abs); err != nil {
		return "", err
	}
	return d.service.DescriptorPath(), nil
}

// Uninstall removes the service descriptor. It reports false when nothing
// was installed.
func (d *DaemonManager) Uninstall(ctx context.Context) (bool, error) {
	if d.service == nil {
		return false, service.ErrUnsupported
	}
	if err := d.service.Uninstall(ctx); err != nil {
		if errors.Is(err, service.ErrNotInstalled) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Assistant returns the daemon-first assistant for the AI commands, falling
// back to engine in process. With auto_start set, an unreachable daemon is
// spawned in the background for later calls.
func (d *DaemonManager) Assistant(engine llm.Engine) llm.Assistant {
	opts := []llm.FallbackOption{llm.WithLogger(d.logger)}
	if d.cfg.Daemon.AutoStart {
		opts = append(opts, llm.WithAutoStart(func(ctx context.Context) error {
			_, err := d.Start(ctx, false)
			return err
		}))
	}
	return llm.WithDaemonFallback(daemon.Connector(d.Addr(), d.clientOpts...), llm.NewLocal(engine), opts...)
}

// FindDaemonBinary locates alferd: next to the running executable, then
// $PATH, then common install directories.
func FindDaemonBinary() (string, error) {
	self, _ := os.Executable()
	home, _ := os.UserHomeDir()
	return findDaemonBinary(self, home, exec.LookPath)
}

func findDaemonBinary(self, home string, lookPath func(string) (string, error)) (string, error) {
	name := DaemonBinaryName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}

	if self != "" {
		if resolved, err := filepath.EvalSymlinks(self); err == nil {
			self = resolved
		}
		if p := filepath.Join(filepath.Dir(self), name); isExecutable(p) {
			return p, nil
		}
	}
	if p, err := lookPath(name); err == nil {
		if abs, err := filepath.Abs(p); err == nil {
			return abs, nil
		}
		return p, nil
	}

	candidates := []string{
		filepath.Join("/usr/local/bin", name),
		filepath.Join("/usr/bin", name),
	}
	if home != "" {
		candidates = append(candidates,
			filepath.Join(home, ".local", "bin", name),
			filepath.Join(home, "go", "bin", name),
		)
	}
	for _, p := range candidates {
		if isExecutable(p) {
			return p, nil
		}
	}
	return "", ErrDaemonBinaryNotFound
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return runtime.GOOS == "windows" || info.Mode()&0o111 != 0
}

// FormatDaemonStatus formats the daemon status for display.
func FormatDaemonStatus(result *DaemonStatusResult) string {
	var status string
	if result.Running {
		if result.PID > 0 {
			status = fmt.Sprintf("Daemon:   running (PID %d)\n", result.PID)
		} else {
			status = "Daemon:   running\n"
		}
		if result.Uptime != "" {
			status += fmt.Sprintf("Uptime:   %s\n", result.Uptime)
		}
		if result.Version != "" {
			status += fmt.Sprintf("Version:  %s\n", result.Version)
		}
		if result.Uptime != "" {
			if result.ModelLoaded {
				status += "Model:    loaded\n"
			} else {
				status += "Model:    not loaded\n"
			}
			status += fmt.Sprintf("Requests: %d\n", result.RequestsServed)
		}
		if result.InstanceMismatch {
			status += "Warning:  PID file belongs to a different daemon run\n"
		}
	} else {
		status = "Daemon:   stopped\n"
	}

	status += fmt.Sprintf("Port:     %d\n", result.Port)
	if result.IdleTimeoutMinutes > 0 {
		status += fmt.Sprintf("Idle:     %d minutes\n", result.IdleTimeoutMinutes)
	} else {
		status += "Idle:     disabled\n"
	}
	switch {
	case result.ServiceInstalled:
		status += fmt.Sprintf("Service:  installed (%s)\n", result.ServicePath)
	case result.ServiceManager == "unsupported":
		status += "Service:  unsupported on this platform\n"
	default:
		status += "Service:  not installed\n"
	}
	return status
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		if minutes > 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}
