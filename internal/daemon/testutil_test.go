package daemon

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/leonletto/alfred/internal/protocol"
)

// echoAssistant answers every method with a predictable string.
type echoAssistant struct {
	mu    sync.Mutex
	calls []string
	err   error
	delay time.Duration
}

func (a *echoAssistant) record(method string) error {
	a.mu.Lock()
	a.calls = append(a.calls, method)
	a.mu.Unlock()
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	return a.err
}

func (a *echoAssistant) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *echoAssistant) Generate(_ context.Context, prompt string, _ uint32) (string, error) {
	if err := a.record("generate"); err != nil {
		return "", err
	}
	return "generated: " + prompt, nil
}

func (a *echoAssistant) CommitMessage(_ context.Context, diff string) (string, error) {
	if err := a.record("commit"); err != nil {
		return "", err
	}
	return "feat: " + diff, nil
}

func (a *echoAssistant) BranchName(_ context.Context, description string) (string, error) {
	if err := a.record("branch"); err != nil {
		return "", err
	}
	return "feature/" + description, nil
}

func (a *echoAssistant) ConflictResolution(_ context.Context, file, _, _, _ string) (string, error) {
	if err := a.record("conflict"); err != nil {
		return "", err
	}
	return "resolved " + file, nil
}

func (a *echoAssistant) RebaseStrategy(_ context.Context, commits []string, onto string) (string, error) {
	if err := a.record("rebase"); err != nil {
		return "", err
	}
	if len(commits) == 0 {
		return "", errors.New("no commits")
	}
	return "rebase onto " + onto, nil
}

// stubEngine is an llm.Engine with a canned completion.
type stubEngine struct {
	mu      sync.Mutex
	loadErr error
	loaded  bool
	output  string
}

func (e *stubEngine) LoadModel(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loadErr != nil {
		return e.loadErr
	}
	e.loaded = true
	return nil
}

func (e *stubEngine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

func (e *stubEngine) Infer(context.Context, string, uint32) (string, error) {
	return e.output, nil
}

// TestServer wraps a Server running Serve on a goroutine.
type TestServer struct {
	*Server
	done   chan struct{}
	reason StopReason
	err    error
}

// Wait blocks until Serve returns or the timeout passes.
func (ts *TestServer) Wait(t *testing.T, timeout time.Duration) StopReason {
	t.Helper()
	select {
	case <-ts.done:
		if ts.err != nil {
			t.Fatalf("Serve returned error: %v", ts.err)
		}
		return ts.reason
	case <-time.After(timeout):
		t.Fatalf("Serve did not return within %v", timeout)
		return StopNone
	}
}

// StartTestServer binds a server on 127.0.0.1:0 and runs Serve until the
// test ends.
func StartTestServer(t *testing.T, assistant *echoAssistant, opts ...ServerOption) *TestServer {
	t.Helper()
	if assistant == nil {
		assistant = &echoAssistant{}
	}
	opts = append([]ServerOption{WithPollInterval(10 * time.Millisecond)}, opts...)
	server := NewServer("127.0.0.1:0", assistant, opts...)
	if err := server.Listen(); err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	ts := &TestServer{Server: server, done: make(chan struct{})}
	go func() {
		defer close(ts.done)
		ts.reason, ts.err = server.Serve(context.Background())
	}()

	t.Cleanup(func() {
		server.RequestShutdown()
		select {
		case <-ts.done:
		case <-time.After(3 * time.Second):
			t.Log("WARNING: server did not stop in cleanup")
		}
	})
	return ts
}

// exchange writes raw bytes on a fresh connection and returns the single
// response line, or "" when the server closed without answering.
func exchange(t *testing.T, addr, raw string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := conn.Write([]byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
	line, err := protocol.ReadLine(bufio.NewReader(conn))
	if err != nil {
		return ""
	}
	return string(line)
}
