package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/leonletto/alfred/internal/llm"
)

// LifecycleConfig holds everything alferd needs to run.
type LifecycleConfig struct {
	Addr        string
	IdleTimeout time.Duration
	PIDFile     string
	Version     string
	Logger      *zap.Logger

	// Signals overrides the signals that trigger a graceful stop.
	// Nil means SIGINT and SIGTERM.
	Signals []os.Signal
	// PollInterval overrides DefaultPollInterval.
	PollInterval time.Duration
}

// Lifecycle runs the daemon from startup to exit: PID record, model load,
// bind, signal forwarding, serve loop and cleanup.
type Lifecycle struct {
	cfg        LifecycleConfig
	engine     llm.Engine
	server     *Server
	instanceID string
	logger     *zap.Logger
	ready      chan struct{}
}

// NewLifecycle creates a lifecycle that serves engine.
func NewLifecycle(engine llm.Engine, cfg LifecycleConfig) *Lifecycle {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	instanceID := NewInstanceID()

	opts := []ServerOption{
		WithIdleTimeout(cfg.IdleTimeout),
		WithServerLogger(logger),
		WithIdentity(cfg.Version, instanceID),
		WithModelLoaded(engine.Loaded),
	}
	if cfg.PollInterval > 0 {
		opts = append(opts, WithPollInterval(cfg.PollInterval))
	}

	return &Lifecycle{
		cfg:        cfg,
		engine:     engine,
		server:     NewServer(cfg.Addr, llm.NewLocal(engine), opts...),
		instanceID: instanceID,
		logger:     logger,
		ready:      make(chan struct{}),
	}
}

// Server returns the underlying server.
func (l *Lifecycle) Server() *Server {
	return l.server
}

// InstanceID returns the id written to the PID record for this run.
func (l *Lifecycle) InstanceID() string {
	return l.instanceID
}

// Ready is closed once the server is bound and accepting.
func (l *Lifecycle) Ready() <-chan struct{} {
	return l.ready
}

// Shutdown asks a running lifecycle to stop.
func (l *Lifecycle) Shutdown() {
	l.server.RequestShutdown()
}

// Run executes the startup sequence, serves until stopped and removes the
// PID record on every exit path. Errors are startup failures; a normal stop
// returns nil.
func (l *Lifecycle) Run(ctx context.Context) error {
	exe, _ := os.Executable()

	// 1. Refuse to clobber the record of another live daemon.
	running, existing, err := CheckPIDFileJSON(l.cfg.PIDFile)
	if err != nil {
		l.logger.Warn("ignoring unreadable PID file", zap.String("path", l.cfg.PIDFile), zap.Error(err))
	} else if running && existing.PID != os.Getpid() {
		owner := existing.Executable
		if owner == "" {
			owner = exe
		}
		if looksLikeDaemon(existing.PID, owner) {
			return fmt.Errorf("daemon already running (PID %d)", existing.PID)
		}
		l.logger.Warn("overwriting stale PID file", zap.Int("pid", existing.PID))
	}

	// 2. Write the PID record.
	info := PIDInfo{
		PID:        os.Getpid(),
		Port:       portOf(l.cfg.Addr),
		StartedAt:  time.Now().UTC(),
		InstanceID: l.instanceID,
		Executable: exe,
	}
	if err := WritePIDFileJSON(l.cfg.PIDFile, info); err != nil {
		return err
	}
	defer func() {
		if err := RemovePIDFile(l.cfg.PIDFile); err != nil {
			l.logger.Error("failed to remove PID file", zap.Error(err))
		}
	}()

	// 3. Load the model.
	l.logger.Info("loading model")
	if err := l.engine.LoadModel(ctx); err != nil {
		l.logger.Error("error loading model", zap.Error(err))
		return fmt.Errorf("load model: %w", err)
	}
	l.logger.Info("model loaded")

	// 4. Bind.
	if err := l.server.Listen(); err != nil {
		l.logger.Error("bind failed", zap.Error(err))
		return err
	}
	if port := l.server.Port(); port != info.Port {
		info.Port = port
		if err := WritePIDFileJSON(l.cfg.PIDFile, info); err != nil {
			l.logger.Warn("failed to update PID file port", zap.Error(err))
		}
	}

	// 5. Signals only flip the shutdown flag.
	sigs := l.cfg.Signals
	if sigs == nil {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sigs...)
	done := make(chan struct{})
	defer func() {
		signal.Stop(sigCh)
		close(done)
	}()
	go func() {
		select {
		case sig := <-sigCh:
			l.logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
			l.server.stop(StopSignal)
		case <-done:
		}
	}()

	l.logger.Info("listening",
		zap.String("addr", l.server.Addr()),
		zap.Duration("idle_timeout", l.cfg.IdleTimeout),
		zap.String("instance_id", l.instanceID),
	)
	close(l.ready)

	reason, err := l.server.Serve(ctx)
	if err != nil {
		return err
	}
	l.logger.Info("daemon stopped",
		zap.Stringer("reason", reason),
		zap.Uint64("requests_served", l.server.RequestsServed()),
	)
	return nil
}

func portOf(addr string) uint16 {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return 0
	}
	return uint16(tcpAddr.Port) //nolint:gosec // G115 - TCP ports fit in uint16
}
