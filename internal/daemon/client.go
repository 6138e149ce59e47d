package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/leonletto/alfred/internal/llm"
	"github.com/leonletto/alfred/internal/protocol"
)

// Client timing defaults.
const (
	DefaultDialTimeout  = 100 * time.Millisecond
	DefaultReadTimeout  = 120 * time.Second
	DefaultWriteTimeout = 5 * time.Second
)

var (
	// ErrDaemonNotRunning marks connection-level failures: nothing listening,
	// connect timeout, or the connection dropping before a response. It
	// matches llm.ErrUnavailable so the fallback assistant runs locally.
	ErrDaemonNotRunning error = unavailableError("daemon not running")
	// ErrEmptyResponse is returned when a response carries neither an error
	// nor a non-empty result.
	ErrEmptyResponse = errors.New("empty response from daemon")
)

type unavailableError string

func (e unavailableError) Error() string { return string(e) }

func (e unavailableError) Is(target error) bool { return target == llm.ErrUnavailable }

// RemoteError carries the error text of an error Response.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return "daemon error: " + e.Message
}

// Client talks to alferd. Every call dials a fresh connection because the
// server answers exactly one exchange per connection.
type Client struct {
	addr         string
	dialTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	nextID       atomic.Uint64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithDialTimeout overrides DefaultDialTimeout.
func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.dialTimeout = d }
}

// WithReadTimeout overrides DefaultReadTimeout.
func WithReadTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.readTimeout = d }
}

// NewClient returns a client for addr without contacting the daemon.
func NewClient(addr string, opts ...ClientOption) *Client {
	c := &Client{
		addr:         addr,
		dialTimeout:  DefaultDialTimeout,
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect returns a client after a successful ping. Any failure wraps
// ErrDaemonNotRunning.
func Connect(ctx context.Context, addr string, opts ...ClientOption) (*Client, error) {
	c := NewClient(addr, opts...)
	if err := c.Ping(ctx); err != nil {
		if errors.Is(err, ErrDaemonNotRunning) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: ping: %w", ErrDaemonNotRunning, err)
	}
	return c, nil
}

// IsDaemonRunning reports whether Connect succeeds.
func IsDaemonRunning(ctx context.Context, addr string, opts ...ClientOption) bool {
	_, err := Connect(ctx, addr, opts...)
	return err == nil
}

// Connector adapts Connect for llm.WithDaemonFallback.
func Connector(addr string, opts ...ClientOption) llm.Connector {
	return func(ctx context.Context) (llm.Assistant, error) {
		c, err := Connect(ctx, addr, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Addr returns the daemon address.
func (c *Client) Addr() string {
	return c.addr
}

// Call sends one request with the next sequential id and returns the result.
func (c *Client) Call(ctx context.Context, method string, params any) (string, error) {
	id := c.nextID.Add(1)
	req, err := protocol.NewRequest(method, params, id)
	if err != nil {
		return "", err
	}

	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDaemonNotRunning, err)
	}
	defer func() { _ = conn.Close() }()
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := protocol.EncodeRequest(bufio.NewWriter(conn), req); err != nil {
		return "", c.classify(ctx, "send "+method, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	line, err := protocol.ReadLine(bufio.NewReader(conn))
	if err != nil {
		return "", c.classify(ctx, "read "+method+" response", err)
	}

	resp, err := protocol.DecodeResponse(line)
	if err != nil {
		return "", fmt.Errorf("invalid %s response: %w", method, err)
	}
	if resp.ID != id {
		return "", fmt.Errorf("invalid %s response: id %d does not match request id %d", method, resp.ID, id)
	}
	if resp.Error != nil {
		return "", &RemoteError{Method: method, Message: *resp.Error}
	}
	if resp.Result == nil || *resp.Result == "" {
		return "", ErrEmptyResponse
	}
	return *resp.Result, nil
}

// classify wraps connection drops in ErrDaemonNotRunning. Timeouts and
// cancellation stay distinct so a slow daemon is not mistaken for a dead one.
func (c *Client) classify(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: timed out: %w", op, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return fmt.Errorf("%w: %s: %w", ErrDaemonNotRunning, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Ping checks liveness.
func (c *Client) Ping(ctx context.Context) error {
	out, err := c.Call(ctx, protocol.MethodPing, nil)
	if err != nil {
		return err
	}
	if out != protocol.PongResult {
		return fmt.Errorf("unexpected ping result %q", out)
	}
	return nil
}

// Shutdown asks the daemon to stop after acknowledging.
func (c *Client) Shutdown(ctx context.Context) error {
	out, err := c.Call(ctx, protocol.MethodShutdown, nil)
	if err != nil {
		return err
	}
	if out != protocol.ShutdownResult {
		return fmt.Errorf("unexpected shutdown result %q", out)
	}
	return nil
}

// Health fetches the daemon's health document.
func (c *Client) Health(ctx context.Context) (*protocol.Health, error) {
	out, err := c.Call(ctx, protocol.MethodHealth, nil)
	if err != nil {
		return nil, err
	}
	var h protocol.Health
	if err := json.Unmarshal([]byte(out), &h); err != nil {
		return nil, fmt.Errorf("parse health: %w", err)
	}
	return &h, nil
}

// Generate runs a raw prompt on the daemon.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens uint32) (string, error) {
	return c.Call(ctx, protocol.MethodGenerate, protocol.GenerateParams{Prompt: prompt, MaxTokens: maxTokens})
}

// CommitMessage asks the daemon for a commit message.
func (c *Client) CommitMessage(ctx context.Context, diff string) (string, error) {
	return c.Call(ctx, protocol.MethodCommitMessage, protocol.CommitMessageParams{Diff: diff})
}

// BranchName asks the daemon for a branch name.
func (c *Client) BranchName(ctx context.Context, description string) (string, error) {
	return c.Call(ctx, protocol.MethodBranchName, protocol.BranchNameParams{Description: description})
}

// ConflictResolution asks the daemon to merge one conflicted file.
func (c *Client) ConflictResolution(ctx context.Context, file, ours, theirs, base string) (string, error) {
	return c.Call(ctx, protocol.MethodConflictResolution, protocol.ConflictParams{
		File: file, Ours: ours, Theirs: theirs, Base: base,
	})
}

// RebaseStrategy asks the daemon for rebase advice.
func (c *Client) RebaseStrategy(ctx context.Context, commits []string, onto string) (string, error) {
	if commits == nil {
		commits = []string{}
	}
	return c.Call(ctx, protocol.MethodRebaseStrategy, protocol.RebaseParams{Commits: commits, Onto: onto})
}

var _ llm.Assistant = (*Client)(nil)
