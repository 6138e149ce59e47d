package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/leonletto/alfred/internal/protocol"
)

func TestServerPing(t *testing.T) {
	ts := StartTestServer(t, nil)

	got := exchange(t, ts.Addr(), `{"method":"ping","params":{},"id":1}`+"\n")
	want := `{"result":"pong","error":null,"id":1}`
	if got != want {
		t.Fatalf("ping response = %s, want %s", got, want)
	}
}

func TestServerEchoesID(t *testing.T) {
	ts := StartTestServer(t, nil)

	for _, id := range []string{"0", "7", "18446744073709551615"} {
		got := exchange(t, ts.Addr(), `{"method":"ping","params":{},"id":`+id+"}\n")
		resp, err := protocol.DecodeResponse([]byte(got))
		if err != nil {
			t.Fatalf("id %s: decode %q: %v", id, got, err)
		}
		if !strings.HasSuffix(got, `"id":`+id+`}`) {
			t.Errorf("id %s not echoed: %s", id, got)
		}
		if (resp.Result == nil) == (resp.Error == nil) {
			t.Errorf("id %s: want exactly one of result and error: %s", id, got)
		}
	}
}

func TestServerUnknownMethod(t *testing.T) {
	ts := StartTestServer(t, nil)

	got := exchange(t, ts.Addr(), `{"method":"bogus","params":{},"id":3}`+"\n")
	want := `{"result":null,"error":"Unknown method: bogus","id":3}`
	if got != want {
		t.Fatalf("response = %s, want %s", got, want)
	}
}

func TestServerDispatchesAssistant(t *testing.T) {
	assistant := &echoAssistant{}
	ts := StartTestServer(t, assistant)

	tests := []struct {
		raw  string
		want string
	}{
		{`{"method":"generate_commit_message","params":{"diff":"add x\n+y"},"id":2}`, "feat: add x\n+y"},
		{`{"method":"suggest_branch_name","params":{"description":"login"},"id":4}`, "feature/login"},
		{`{"method":"suggest_conflict_resolution","params":{"file":"a.go","ours":"1","theirs":"2","base":"0"},"id":5}`, "resolved a.go"},
		{`{"method":"suggest_rebase_strategy","params":{"commits":["abc one"],"onto":"main"},"id":6}`, "rebase onto main"},
		{`{"method":"generate","params":{"prompt":"hi"},"id":8}`, "generated: hi"},
	}

	for _, tt := range tests {
		got := exchange(t, ts.Addr(), tt.raw+"\n")
		resp, err := protocol.DecodeResponse([]byte(got))
		if err != nil {
			t.Fatalf("decode %q: %v", got, err)
		}
		if resp.Error != nil {
			t.Fatalf("%s: unexpected error %q", tt.raw, *resp.Error)
		}
		if *resp.Result != tt.want {
			t.Errorf("%s: result = %q, want %q", tt.raw, *resp.Result, tt.want)
		}
	}

	calls := assistant.Calls()
	if strings.Join(calls, ",") != "commit,branch,conflict,rebase,generate" {
		t.Errorf("assistant calls = %v", calls)
	}
}

func TestServerAssistantError(t *testing.T) {
	ts := StartTestServer(t, &echoAssistant{err: errors.New("model exploded")})

	got := exchange(t, ts.Addr(), `{"method":"suggest_branch_name","params":{"description":"x"},"id":11}`+"\n")
	want := `{"result":null,"error":"model exploded","id":11}`
	if got != want {
		t.Fatalf("response = %s, want %s", got, want)
	}
}

func TestServerMalformedRequest(t *testing.T) {
	ts := StartTestServer(t, nil)

	tests := []struct {
		name   string
		raw    string
		wantID uint64
	}{
		{"not json", "not json\n", 0},
		{"missing id", `{"method":"ping","params":{}}` + "\n", 0},
		{"missing method", `{"params":{},"id":12}` + "\n", 12},
		{"bad params", `{"method":"suggest_branch_name","params":{"description":5},"id":13}` + "\n", 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := exchange(t, ts.Addr(), tt.raw)
			resp, err := protocol.DecodeResponse([]byte(got))
			if err != nil {
				t.Fatalf("decode %q: %v", got, err)
			}
			if resp.Error == nil || resp.Result != nil {
				t.Fatalf("want error response, got %s", got)
			}
			if resp.ID != tt.wantID {
				t.Errorf("id = %d, want %d", resp.ID, tt.wantID)
			}
		})
	}

	// The server keeps serving after bad input.
	if got := exchange(t, ts.Addr(), `{"method":"ping","params":{},"id":14}`+"\n"); got != `{"result":"pong","error":null,"id":14}` {
		t.Fatalf("ping after malformed requests = %s", got)
	}
}

func TestServerClosedConnection(t *testing.T) {
	ts := StartTestServer(t, nil)

	conn, err := net.Dial("tcp", ts.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = conn.Close()

	if got := exchange(t, ts.Addr(), `{"method":"ping","params":{},"id":1}`+"\n"); got == "" {
		t.Fatal("server stopped answering after an empty connection")
	}
	if ts.ShutdownRequested() {
		t.Fatal("empty connection must not stop the server")
	}
}

func TestServerOneExchangePerConnection(t *testing.T) {
	ts := StartTestServer(t, nil)

	// Two requests on one connection get a single response.
	conn, err := net.Dial("tcp", ts.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))

	raw := `{"method":"ping","params":{},"id":1}` + "\n" + `{"method":"ping","params":{},"id":2}` + "\n"
	if _, err := conn.Write([]byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 4096)
	var all []byte
	for {
		n, err := conn.Read(buf)
		all = append(all, buf[:n]...)
		if err != nil {
			break
		}
	}
	if got := string(all); got != `{"result":"pong","error":null,"id":1}`+"\n" {
		t.Fatalf("connection output = %q", got)
	}
}

func TestServerShutdown(t *testing.T) {
	ts := StartTestServer(t, nil)
	addr := ts.Addr()

	got := exchange(t, addr, `{"method":"shutdown","params":{},"id":21}`+"\n")
	want := `{"result":"shutting_down","error":null,"id":21}`
	if got != want {
		t.Fatalf("shutdown response = %s, want %s", got, want)
	}

	if reason := ts.Wait(t, 2*time.Second); reason != StopRequested {
		t.Fatalf("stop reason = %v, want %v", reason, StopRequested)
	}
	if conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond); err == nil {
		_ = conn.Close()
		t.Fatal("listener still accepting after shutdown")
	}
}

func TestServerIdleTimeout(t *testing.T) {
	ts := StartTestServer(t, nil, WithIdleTimeout(100*time.Millisecond))

	start := time.Now()
	if reason := ts.Wait(t, 3*time.Second); reason != StopIdle {
		t.Fatalf("stop reason = %v, want %v", reason, StopIdle)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("stopped after %v, before the idle timeout", elapsed)
	}
}

func TestServerActivityResetsIdle(t *testing.T) {
	ts := StartTestServer(t, nil, WithIdleTimeout(300*time.Millisecond))

	deadline := time.Now().Add(700 * time.Millisecond)
	for time.Now().Before(deadline) {
		if got := exchange(t, ts.Addr(), `{"method":"ping","params":{},"id":1}`+"\n"); got == "" {
			t.Fatal("server stopped while requests kept arriving")
		}
		time.Sleep(100 * time.Millisecond)
	}
	if ts.ShutdownRequested() {
		t.Fatal("idle timeout fired despite activity")
	}
}

func TestServerIdleCountsFromAnswer(t *testing.T) {
	ts := StartTestServer(t, &echoAssistant{delay: 400 * time.Millisecond},
		WithIdleTimeout(200*time.Millisecond))

	got := exchange(t, ts.Addr(), `{"method":"generate","params":{"prompt":"slow"},"id":1}`+"\n")
	if got != `{"result":"generated: slow","error":null,"id":1}` {
		t.Fatalf("slow response = %s", got)
	}
	time.Sleep(50 * time.Millisecond)
	if ts.ShutdownRequested() {
		t.Fatal("idle timeout fired right after a long request was answered")
	}
	if got := exchange(t, ts.Addr(), `{"method":"ping","params":{},"id":2}`+"\n"); got == "" {
		t.Fatal("server not answering after a long request")
	}

	if reason := ts.Wait(t, 3*time.Second); reason != StopIdle {
		t.Fatalf("stop reason = %v, want %v", reason, StopIdle)
	}
}

func TestServerZeroIdleTimeoutNeverStops(t *testing.T) {
	ts := StartTestServer(t, nil, WithIdleTimeout(0))

	time.Sleep(300 * time.Millisecond)
	if ts.ShutdownRequested() {
		t.Fatal("server stopped with idle timeout disabled")
	}
	if got := exchange(t, ts.Addr(), `{"method":"ping","params":{},"id":1}`+"\n"); got == "" {
		t.Fatal("server not answering")
	}
}

func TestServerContextCancel(t *testing.T) {
	server := NewServer("127.0.0.1:0", &echoAssistant{}, WithPollInterval(10*time.Millisecond))
	if err := server.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan StopReason, 1)
	go func() {
		reason, _ := server.Serve(ctx)
		done <- reason
	}()

	cancel()
	select {
	case reason := <-done:
		if reason != StopContext {
			t.Fatalf("stop reason = %v, want %v", reason, StopContext)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve ignored context cancellation")
	}
}

func TestServerFirstStopReasonWins(t *testing.T) {
	server := NewServer("127.0.0.1:0", &echoAssistant{})
	server.stop(StopSignal)
	server.stop(StopIdle)
	if got := StopReason(server.reason.Load()); got != StopSignal {
		t.Fatalf("reason = %v, want %v", got, StopSignal)
	}
}

func TestServerServeRequiresListen(t *testing.T) {
	server := NewServer("127.0.0.1:0", &echoAssistant{})
	if _, err := server.Serve(context.Background()); err == nil {
		t.Fatal("expected error from Serve without Listen")
	}
}

func TestServerBindConflict(t *testing.T) {
	ts := StartTestServer(t, nil)

	other := NewServer(ts.Addr(), &echoAssistant{})
	err := other.Listen()
	if err == nil {
		t.Fatal("expected bind error on a port in use")
	}
	if !strings.Contains(err.Error(), "failed to bind") {
		t.Errorf("error = %v", err)
	}
}

func TestServerHealth(t *testing.T) {
	ts := StartTestServer(t, nil,
		WithIdentity("1.2.3", "01TESTINSTANCE"),
		WithModelLoaded(func() bool { return true }),
		WithIdleTimeout(time.Minute),
	)

	exchange(t, ts.Addr(), `{"method":"ping","params":{},"id":1}`+"\n")
	got := exchange(t, ts.Addr(), `{"method":"health","params":{},"id":2}`+"\n")

	resp, err := protocol.DecodeResponse([]byte(got))
	if err != nil || resp.Result == nil {
		t.Fatalf("health response %q: %v", got, err)
	}
	var h protocol.Health
	if err := json.Unmarshal([]byte(*resp.Result), &h); err != nil {
		t.Fatalf("parse health: %v", err)
	}
	if h.Status != "ok" || h.Version != "1.2.3" || h.InstanceID != "01TESTINSTANCE" {
		t.Errorf("health = %+v", h)
	}
	if !h.ModelLoaded {
		t.Error("model_loaded = false")
	}
	if h.RequestsServed != 1 {
		t.Errorf("requests_served = %d, want 1", h.RequestsServed)
	}
	if h.IdleTimeoutMs != 60000 {
		t.Errorf("idle_timeout_ms = %d", h.IdleTimeoutMs)
	}
}

func TestServerCustomHandlers(t *testing.T) {
	ts := StartTestServer(t, nil,
		WithHandler("boom", func(context.Context, *protocol.Request) (string, error) {
			panic("kaboom")
		}),
		WithHandler(protocol.MethodPing, func(context.Context, *protocol.Request) (string, error) {
			return "custom pong", nil
		}),
	)

	got := exchange(t, ts.Addr(), `{"method":"boom","params":{},"id":31}`+"\n")
	want := `{"result":null,"error":"internal error: kaboom","id":31}`
	if got != want {
		t.Fatalf("panic response = %s, want %s", got, want)
	}

	got = exchange(t, ts.Addr(), `{"method":"ping","params":{},"id":32}`+"\n")
	if got != `{"result":"custom pong","error":null,"id":32}` {
		t.Fatalf("override response = %s", got)
	}
}

func TestServerInferenceOutlastsCancellation(t *testing.T) {
	server := NewServer("127.0.0.1:0", &echoAssistant{delay: 150 * time.Millisecond},
		WithPollInterval(10*time.Millisecond))
	if err := server.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = server.Serve(ctx)
	}()

	conn, err := net.Dial("tcp", server.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))
	if _, err := conn.Write([]byte(`{"method":"generate","params":{"prompt":"slow"},"id":41}` + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	result := make(chan string, 1)
	go func() {
		line, _ := protocol.ReadLine(bufio.NewReader(conn))
		result <- string(line)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case got := <-result:
		if got != `{"result":"generated: slow","error":null,"id":41}` {
			t.Fatalf("response = %s", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no response")
	}
	<-done
}
