package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/leonletto/alfred/internal/llm"
	"github.com/leonletto/alfred/internal/protocol"
)

// Server timing defaults.
const (
	DefaultPollInterval = 50 * time.Millisecond
	DefaultIOTimeout    = 5 * time.Second
)

// StopReason says why Serve returned.
type StopReason int32

const (
	StopNone StopReason = iota
	StopRequested
	StopSignal
	StopIdle
	StopContext
)

func (r StopReason) String() string {
	switch r {
	case StopRequested:
		return "shutdown requested"
	case StopSignal:
		return "signal"
	case StopIdle:
		return "idle timeout"
	case StopContext:
		return "context cancelled"
	default:
		return "none"
	}
}

// Handler answers one request with a result string.
type Handler func(ctx context.Context, req *protocol.Request) (string, error)

// Server is the loopback TCP server. Serve runs on a single goroutine and
// handles one connection at a time, one exchange per connection.
type Server struct {
	addr      string
	listener  *net.TCPListener
	handlers  map[string]Handler
	extra     map[string]Handler
	assistant llm.Assistant
	logger    *zap.Logger

	idleTimeout  time.Duration
	pollInterval time.Duration
	ioTimeout    time.Duration

	version     string
	instanceID  string
	modelLoaded func() bool

	startTime    time.Time
	lastActivity atomic.Int64 // nanoseconds since startTime, monotonic
	shutdown     atomic.Bool
	reason       atomic.Int32
	served       atomic.Uint64
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithIdleTimeout stops Serve after d without requests. Zero disables it.
func WithIdleTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.idleTimeout = d }
}

// WithServerLogger sets the server logger.
func WithServerLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithPollInterval sets the accept deadline used between idle checks.
func WithPollInterval(d time.Duration) ServerOption {
	return func(s *Server) { s.pollInterval = d }
}

// WithIOTimeout sets the per-connection read and write deadline.
func WithIOTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.ioTimeout = d }
}

// WithIdentity sets the version and instance id reported by health.
func WithIdentity(version, instanceID string) ServerOption {
	return func(s *Server) {
		s.version = version
		s.instanceID = instanceID
	}
}

// WithModelLoaded sets the check reported as model_loaded by health.
func WithModelLoaded(fn func() bool) ServerOption {
	return func(s *Server) { s.modelLoaded = fn }
}

// WithHandler registers an extra handler, replacing a builtin of the same name.
func WithHandler(method string, h Handler) ServerOption {
	return func(s *Server) { s.extra[method] = h }
}

// NewServer creates a server for addr that answers with assistant.
func NewServer(addr string, assistant llm.Assistant, opts ...ServerOption) *Server {
	s := &Server{
		addr:         addr,
		assistant:    assistant,
		handlers:     make(map[string]Handler),
		extra:        make(map[string]Handler),
		logger:       zap.NewNop(),
		pollInterval: DefaultPollInterval,
		ioTimeout:    DefaultIOTimeout,
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerBuiltins()
	for method, h := range s.extra {
		s.handlers[method] = h
	}
	return s
}

// RegisterHandler registers a handler for a method, replacing any existing
// one. It must not be called while Serve is running.
func (s *Server) RegisterHandler(method string, h Handler) {
	s.handlers[method] = h
}

// Listen binds the loopback address.
func (s *Server) Listen() error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", s.addr, err)
	}
	listener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", s.addr, err)
	}
	s.listener = listener
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Port returns the bound port, or 0 before Listen.
func (s *Server) Port() uint16 {
	if s.listener == nil {
		return 0
	}
	return uint16(s.listener.Addr().(*net.TCPAddr).Port) //nolint:gosec // G115 - TCP ports fit in uint16
}

// RequestShutdown asks Serve to return after the current iteration.
// Safe to call from any goroutine.
func (s *Server) RequestShutdown() {
	s.stop(StopRequested)
}

// ShutdownRequested reports whether the shutdown flag is set.
func (s *Server) ShutdownRequested() bool {
	return s.shutdown.Load()
}

// RequestsServed returns the number of responses written.
func (s *Server) RequestsServed() uint64 {
	return s.served.Load()
}

func (s *Server) stop(reason StopReason) {
	s.reason.CompareAndSwap(int32(StopNone), int32(reason))
	s.shutdown.Store(true)
}

// Serve runs the accept loop until shutdown is requested, the idle timeout
// passes or ctx is cancelled. The listener is closed on return. Requests in
// flight are always answered; ctx cancellation is only observed between
// connections.
func (s *Server) Serve(ctx context.Context) (StopReason, error) {
	if s.listener == nil {
		return StopNone, errors.New("server not listening")
	}
	defer func() { _ = s.listener.Close() }()

	s.touch()
	for {
		if s.shutdown.Load() {
			return StopReason(s.reason.Load()), nil
		}
		if ctx.Err() != nil {
			return StopContext, nil
		}
		if s.idleExpired() {
			s.stop(StopIdle)
			s.logger.Info("idle timeout reached", zap.Duration("idle_timeout", s.idleTimeout))
			continue
		}

		if err := s.listener.SetDeadline(time.Now().Add(s.pollInterval)); err != nil {
			return StopNone, fmt.Errorf("set accept deadline: %w", err)
		}
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return StopNone, fmt.Errorf("listener closed: %w", err)
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}

		s.handleConnection(ctx, conn)
	}
}

// handleConnection serves one exchange and closes conn.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()
	logger := s.logger.With(zap.String("remote", conn.RemoteAddr().String()))

	_ = conn.SetReadDeadline(time.Now().Add(s.ioTimeout))
	line, err := protocol.ReadLine(bufio.NewReader(conn))
	if err != nil {
		if errors.Is(err, protocol.ErrLineTooLong) {
			s.touch()
			s.writeResponse(conn, logger, protocol.Failure(0, "request too large"))
			return
		}
		var netErr net.Error
		switch {
		case errors.Is(err, io.EOF), errors.As(err, &netErr) && netErr.Timeout():
			logger.Debug("connection closed without a request", zap.Error(err))
		default:
			logger.Warn("read request failed", zap.Error(err))
		}
		return
	}
	s.touch()

	req, err := protocol.DecodeRequest(line)
	if err != nil {
		logger.Warn("malformed request", zap.Error(err))
		s.writeResponse(conn, logger, protocol.Failure(protocol.PeekID(line), fmt.Sprintf("Invalid request: %v", err)))
		return
	}

	// Inference is never interrupted by cancellation.
	resp := s.dispatch(context.WithoutCancel(ctx), req)
	if !s.writeResponse(conn, logger, resp) {
		return
	}
	// A long inference must not count as idle time.
	s.touch()
	if req.Method == protocol.MethodShutdown && !resp.IsError() {
		logger.Info("shutdown requested by client")
		s.stop(StopRequested)
	}
}

func (s *Server) writeResponse(conn net.Conn, logger *zap.Logger, resp *protocol.Response) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(s.ioTimeout))
	if err := protocol.EncodeResponse(bufio.NewWriter(conn), resp); err != nil {
		logger.Warn("write response failed", zap.Uint64("id", resp.ID), zap.Error(err))
		return false
	}
	s.served.Add(1)
	return true
}

// dispatch routes req to its handler. Handler errors and panics become
// error responses.
func (s *Server) dispatch(ctx context.Context, req *protocol.Request) (resp *protocol.Response) {
	handler, ok := s.handlers[req.Method]
	if !ok {
		return protocol.Failure(req.ID, "Unknown method: "+req.Method)
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked", zap.String("method", req.Method), zap.Any("panic", r))
			resp = protocol.Failure(req.ID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	start := time.Now()
	result, err := handler(ctx, req)
	s.logger.Debug("request handled",
		zap.String("method", req.Method),
		zap.Uint64("id", req.ID),
		zap.Duration("took", time.Since(start)),
		zap.Bool("ok", err == nil),
	)
	if err != nil {
		return protocol.Failure(req.ID, err.Error())
	}
	return protocol.Success(req.ID, result)
}

func (s *Server) touch() {
	s.lastActivity.Store(int64(time.Since(s.startTime)))
}

func (s *Server) idleExpired() bool {
	if s.idleTimeout <= 0 {
		return false
	}
	idle := time.Since(s.startTime) - time.Duration(s.lastActivity.Load())
	return idle > s.idleTimeout
}

func (s *Server) registerBuiltins() {
	s.handlers[protocol.MethodPing] = func(context.Context, *protocol.Request) (string, error) {
		return protocol.PongResult, nil
	}
	s.handlers[protocol.MethodShutdown] = func(context.Context, *protocol.Request) (string, error) {
		return protocol.ShutdownResult, nil
	}
	s.handlers[protocol.MethodHealth] = s.handleHealth

	s.handlers[protocol.MethodGenerate] = func(ctx context.Context, req *protocol.Request) (string, error) {
		params := protocol.GenerateParams{MaxTokens: protocol.DefaultMaxTokens}
		if err := req.DecodeParams(&params); err != nil {
			return "", err
		}
		return s.assistant.Generate(ctx, params.Prompt, params.MaxTokens)
	}
	s.handlers[protocol.MethodCommitMessage] = func(ctx context.Context, req *protocol.Request) (string, error) {
		var params protocol.CommitMessageParams
		if err := req.DecodeParams(&params); err != nil {
			return "", err
		}
		return s.assistant.CommitMessage(ctx, params.Diff)
	}
	s.handlers[protocol.MethodBranchName] = func(ctx context.Context, req *protocol.Request) (string, error) {
		var params protocol.BranchNameParams
		if err := req.DecodeParams(&params); err != nil {
			return "", err
		}
		return s.assistant.BranchName(ctx, params.Description)
	}
	s.handlers[protocol.MethodConflictResolution] = func(ctx context.Context, req *protocol.Request) (string, error) {
		var params protocol.ConflictParams
		if err := req.DecodeParams(&params); err != nil {
			return "", err
		}
		return s.assistant.ConflictResolution(ctx, params.File, params.Ours, params.Theirs, params.Base)
	}
	s.handlers[protocol.MethodRebaseStrategy] = func(ctx context.Context, req *protocol.Request) (string, error) {
		var params protocol.RebaseParams
		if err := req.DecodeParams(&params); err != nil {
			return "", err
		}
		return s.assistant.RebaseStrategy(ctx, params.Commits, params.Onto)
	}
}

func (s *Server) handleHealth(context.Context, *protocol.Request) (string, error) {
	loaded := false
	if s.modelLoaded != nil {
		loaded = s.modelLoaded()
	}
	data, err := json.Marshal(protocol.Health{
		Status:         "ok",
		UptimeMs:       time.Since(s.startTime).Milliseconds(),
		Version:        s.version,
		PID:            os.Getpid(),
		InstanceID:     s.instanceID,
		ModelLoaded:    loaded,
		RequestsServed: s.served.Load(),
		IdleTimeoutMs:  s.idleTimeout.Milliseconds(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal health: %w", err)
	}
	return string(data), nil
}
