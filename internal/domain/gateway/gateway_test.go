package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vitrinehq/vitrine/internal/domain/protocol"
	"github.com/vitrinehq/vitrine/internal/shared/types"
)

// stubEngine satisfies Engine with a pluggable function
type stubEngine struct {
	calls int64
	fn    func(ctx context.Context, toolID string, params map[string]interface{}, fragCtx *types.Context) (*types.Result, error)
}

func (s *stubEngine) Execute(ctx context.Context, toolID string, params map[string]interface{}, fragCtx *types.Context) (*types.Result, error) {
	atomic.AddInt64(&s.calls, 1)
	return s.fn(ctx, toolID, params, fragCtx)
}

func echoEngine() *stubEngine {
	return &stubEngine{fn: func(_ context.Context, toolID string, params map[string]interface{}, _ *types.Context) (*types.Result, error) {
		return &types.Result{Success: true, Data: map[string]interface{}{"tool": toolID, "params": params}}, nil
	}}
}

func call(tool, messageID string) protocol.ToolCall {
	return protocol.ToolCall{
		Type:      protocol.MessageTool,
		MessageID: messageID,
		Payload:   protocol.ToolPayload{ToolName: tool, Params: map[string]interface{}{"k": "v"}},
	}
}

func TestAllowlistCheckedBeforeEngine(t *testing.T) {
	engine := echoEngine()
	g := New(engine, Config{Allowed: []string{"storage.get"}})

	resp := g.Handle(context.Background(), call("storage.remove", "msg-1"))
	if resp.Type != protocol.MessageUIResponse {
		t.Errorf("Type = %q", resp.Type)
	}
	if resp.MessageID != "msg-1" {
		t.Errorf("MessageID = %q", resp.MessageID)
	}
	if resp.Error != "storage.remove not allowed" {
		t.Errorf("Error = %q, want %q", resp.Error, "storage.remove not allowed")
	}
	if atomic.LoadInt64(&engine.calls) != 0 {
		t.Error("engine invoked for a disallowed tool")
	}
	if g.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", g.PendingCount())
	}
}

func TestEmptyAllowlistDeniesEverything(t *testing.T) {
	engine := echoEngine()
	g := New(engine, Config{})

	resp := g.Handle(context.Background(), call("storage.get", "msg-1"))
	if !strings.Contains(resp.Error, "not allowed") {
		t.Errorf("Error = %q", resp.Error)
	}
	if atomic.LoadInt64(&engine.calls) != 0 {
		t.Error("engine invoked with empty allowlist")
	}
}

func TestDelegatesAllowedCall(t *testing.T) {
	g := New(echoEngine(), Config{Allowed: []string{"storage.get"}})

	resp := g.Handle(context.Background(), call("storage.get", "msg-2"))
	if resp.Error != "" {
		t.Fatalf("Error = %q", resp.Error)
	}
	if resp.MessageID != "msg-2" {
		t.Errorf("MessageID = %q", resp.MessageID)
	}
	data, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("Result = %T", resp.Result)
	}
	if data["tool"] != "storage.get" {
		t.Errorf("engine saw tool %v", data["tool"])
	}
}

func TestEngineErrorBecomesResponseError(t *testing.T) {
	engine := &stubEngine{fn: func(context.Context, string, map[string]interface{}, *types.Context) (*types.Result, error) {
		return nil, errors.New("backend unreachable")
	}}
	g := New(engine, Config{Allowed: []string{"http.get"}})

	resp := g.Handle(context.Background(), call("http.get", "msg-3"))
	if !strings.Contains(resp.Error, "http.get") || !strings.Contains(resp.Error, "backend unreachable") {
		t.Errorf("Error = %q", resp.Error)
	}
	if g.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", g.PendingCount())
	}
}

func TestEngineSoftFailure(t *testing.T) {
	msg := "key not found"
	engine := &stubEngine{fn: func(context.Context, string, map[string]interface{}, *types.Context) (*types.Result, error) {
		return &types.Result{Success: false, Error: &msg}, nil
	}}
	g := New(engine, Config{Allowed: []string{"storage.get"}})

	resp := g.Handle(context.Background(), call("storage.get", "msg-4"))
	if !strings.Contains(resp.Error, "key not found") {
		t.Errorf("Error = %q", resp.Error)
	}
}

func TestTimeoutSettlesCall(t *testing.T) {
	engine := &stubEngine{fn: func(ctx context.Context, _ string, _ map[string]interface{}, _ *types.Context) (*types.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	g := New(engine, Config{Allowed: []string{"http.get"}, Timeout: 50 * time.Millisecond})

	start := time.Now()
	resp := g.Handle(context.Background(), call("http.get", "msg-5"))
	if resp.Error == "" {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(resp.Error, "timed out") {
		t.Errorf("Error = %q", resp.Error)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout took far longer than configured")
	}

	deadline := time.After(2 * time.Second)
	for g.PendingCount() != 0 {
		select {
		case <-deadline:
			t.Fatalf("PendingCount stuck at %d", g.PendingCount())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestDuplicateMessageID(t *testing.T) {
	release := make(chan struct{})
	engine := &stubEngine{fn: func(context.Context, string, map[string]interface{}, *types.Context) (*types.Result, error) {
		<-release
		return &types.Result{Success: true}, nil
	}}
	g := New(engine, Config{Allowed: []string{"storage.get"}})

	first := make(chan protocol.ToolResponse, 1)
	go func() { first <- g.Handle(context.Background(), call("storage.get", "dup")) }()

	deadline := time.After(2 * time.Second)
	for g.PendingCount() != 1 {
		select {
		case <-deadline:
			t.Fatal("first call never registered")
		case <-time.After(time.Millisecond):
		}
	}

	resp := g.Handle(context.Background(), call("storage.get", "dup"))
	if !strings.Contains(resp.Error, "duplicate") {
		t.Errorf("Error = %q, want duplicate id rejection", resp.Error)
	}

	close(release)
	if resp := <-first; resp.Error != "" {
		t.Errorf("first call failed: %s", resp.Error)
	}
}

func TestCloseRejectsPending(t *testing.T) {
	engine := &stubEngine{fn: func(ctx context.Context, _ string, _ map[string]interface{}, _ *types.Context) (*types.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	g := New(engine, Config{Allowed: []string{"http.get"}, Timeout: time.Minute})

	responses := make(chan protocol.ToolResponse, 3)
	for i := 0; i < 3; i++ {
		go func(i int) {
			responses <- g.Handle(context.Background(), call("http.get", fmt.Sprintf("msg-%d", i)))
		}(i)
	}

	deadline := time.After(2 * time.Second)
	for g.PendingCount() != 3 {
		select {
		case <-deadline:
			t.Fatalf("PendingCount = %d, want 3", g.PendingCount())
		case <-time.After(time.Millisecond):
		}
	}

	g.Close()
	g.Close()

	for i := 0; i < 3; i++ {
		resp := <-responses
		if !strings.Contains(resp.Error, "gateway closed") {
			t.Errorf("pending call settled with %q", resp.Error)
		}
	}
	if g.PendingCount() != 0 {
		t.Errorf("PendingCount = %d after Close, want 0", g.PendingCount())
	}

	resp := g.Handle(context.Background(), call("http.get", "late"))
	if !strings.Contains(resp.Error, "gateway closed") {
		t.Errorf("post-Close call settled with %q", resp.Error)
	}
}

func TestConcurrentCallsPairResults(t *testing.T) {
	g := New(echoEngine(), Config{Allowed: []string{"storage.get"}})

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("msg-%d", i)
			c := call("storage.get", id)
			c.Payload.Params = map[string]interface{}{"i": i}
			resp := g.Handle(context.Background(), c)
			if resp.Error != "" {
				errs <- fmt.Errorf("%s: %s", id, resp.Error)
				return
			}
			if resp.MessageID != id {
				errs <- fmt.Errorf("%s: paired with %s", id, resp.MessageID)
				return
			}
			params := resp.Result.(map[string]interface{})["params"].(map[string]interface{})
			if params["i"] != i {
				errs <- fmt.Errorf("%s: got params %v", id, params)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if g.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", g.PendingCount())
	}
}

func TestFragmentContextForwarded(t *testing.T) {
	var seen *types.Context
	engine := &stubEngine{fn: func(_ context.Context, _ string, _ map[string]interface{}, fragCtx *types.Context) (*types.Result, error) {
		seen = fragCtx
		return &types.Result{Success: true}, nil
	}}
	fragID := "frag_01ABCDEF"
	g := New(engine, Config{
		Allowed:  []string{"storage.get"},
		Fragment: &types.Context{FragmentID: &fragID},
	})

	if resp := g.Handle(context.Background(), call("storage.get", "msg-ctx")); resp.Error != "" {
		t.Fatalf("Handle: %s", resp.Error)
	}
	if seen == nil || seen.FragmentID == nil || *seen.FragmentID != fragID {
		t.Errorf("engine saw fragment context %+v", seen)
	}
}
