package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vitrinehq/vitrine/internal/domain/protocol"
	"github.com/vitrinehq/vitrine/internal/domain/security"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Gate = security.MustNew()
	return cfg
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m := NewManager()
	if err := m.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(m.Terminate)
	return m
}

func TestInitRejectsInvalidConfig(t *testing.T) {
	m := NewManager()
	if err := m.Init(Config{}); err == nil {
		t.Fatal("expected error for config without gate")
	}
	if m.IsActive() {
		t.Error("manager should not be active after rejected Init")
	}
	if _, err := m.Execute(context.Background(), "1 + 1"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Execute after failed Init: got %v, want ErrNotInitialized", err)
	}
}

func TestInitBootFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Bootstrap = `throw new Error("boot exploded")`

	m := NewManager()
	err := m.Init(cfg)
	if err == nil {
		t.Fatal("expected boot failure")
	}
	if !strings.Contains(err.Error(), "boot exploded") {
		t.Errorf("boot error %q should carry the thrown message", err)
	}
	if m.IsActive() {
		t.Error("manager should not be active after boot failure")
	}
}

func TestInitIdempotentWhileReady(t *testing.T) {
	m := newTestManager(t, testConfig())
	if err := m.Init(testConfig()); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if !m.IsActive() {
		t.Error("manager should stay active")
	}
}

func TestCallsBeforeInit(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	if _, err := m.Execute(ctx, "1"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Execute: got %v, want ErrNotInitialized", err)
	}
	if _, err := m.SendOperation(ctx, protocol.SetTextContent("n1", "hi")); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("SendOperation: got %v, want ErrNotInitialized", err)
	}
	if _, err := m.SendBatch(ctx, []protocol.Operation{protocol.RemoveChild("a", "b")}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("SendBatch: got %v, want ErrNotInitialized", err)
	}
	if n := m.PendingCount(); n != 0 {
		t.Errorf("PendingCount = %d, want 0", n)
	}
	if m.IsActive() {
		t.Error("uninitialized manager should not be active")
	}

	m.Terminate()
	if _, err := m.Execute(ctx, "1"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Execute after pre-init Terminate: got %v, want ErrNotInitialized", err)
	}
}

func TestExecuteGateRejects(t *testing.T) {
	m := newTestManager(t, testConfig())
	ctx := context.Background()

	_, err := m.Execute(ctx, `window.alert("hi")`)
	var viol *security.ViolationError
	if !errors.As(err, &viol) {
		t.Fatalf("got %v, want ViolationError", err)
	}
	if viol.Identifier != "window" {
		t.Errorf("Identifier = %q, want window", viol.Identifier)
	}
	if n := m.PendingCount(); n != 0 {
		t.Errorf("PendingCount = %d after gate rejection, want 0", n)
	}

	// The worker was never involved; it must still serve clean code.
	if _, err := m.Execute(ctx, "2 + 2"); err != nil {
		t.Fatalf("Execute after rejection: %v", err)
	}
}

func TestExecuteReturnsConsoleOutput(t *testing.T) {
	m := newTestManager(t, testConfig())

	res, err := m.Execute(context.Background(), `console.log("hello", 42); console.warn("careful")`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Console) != 2 {
		t.Fatalf("captured %d entries, want 2", len(res.Console))
	}
	if res.Console[0].Level != "log" || res.Console[0].Message != "hello 42" {
		t.Errorf("entry 0 = %+v", res.Console[0])
	}
	if res.Console[1].Level != "warn" || res.Console[1].Message != "careful" {
		t.Errorf("entry 1 = %+v", res.Console[1])
	}
}

func TestExecuteErrorMessageVerbatim(t *testing.T) {
	m := newTestManager(t, testConfig())
	ctx := context.Background()

	cases := []struct {
		code string
		want string
	}{
		{`throw new Error("exact message text")`, "exact message text"},
		{`throw "bare string"`, "bare string"},
		{`throw { message: "object message" }`, "object message"},
		{`undefinedFunction()`, "undefinedFunction is not defined"},
	}
	for _, c := range cases {
		_, err := m.Execute(ctx, c.code)
		var exec *ExecutionError
		if !errors.As(err, &exec) {
			t.Fatalf("%s: got %v, want ExecutionError", c.code, err)
		}
		if !strings.Contains(exec.Message, c.want) {
			t.Errorf("%s: message %q, want %q", c.code, exec.Message, c.want)
		}
	}
}

func TestExecuteTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ExecTimeout = 80 * time.Millisecond
	m := newTestManager(t, cfg)
	ctx := context.Background()

	_, err := m.Execute(ctx, `for (;;) {}`)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}

	waitForZeroPending(t, m)

	// The interrupt must not poison the next run.
	if _, err := m.Execute(ctx, "1 + 1"); err != nil {
		t.Fatalf("Execute after timeout: %v", err)
	}
}

func TestExecuteEmitsOperations(t *testing.T) {
	var mu sync.Mutex
	var got []protocol.Operation

	cfg := testConfig()
	cfg.Sink = func(op protocol.Operation) {
		mu.Lock()
		got = append(got, op)
		mu.Unlock()
	}
	m := newTestManager(t, cfg)

	res, err := m.Execute(context.Background(), `
		var el = ui.createElement("div");
		ui.setAttribute(el, "class", "panel");
		ui.setTextContent(el, "hello");
		ui.appendChild(ui.root, el);
	`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.OpsEmitted != 4 {
		t.Errorf("OpsEmitted = %d, want 4", res.OpsEmitted)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 4 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("sink received %d operations, want 4", n)
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0].Type != protocol.OpCreateElement || got[0].TagName != "div" {
		t.Errorf("op 0 = %+v", got[0])
	}
	if got[1].Type != protocol.OpSetAttribute || got[1].AttributeName != "class" {
		t.Errorf("op 1 = %+v", got[1])
	}
	if got[3].Type != protocol.OpAppendChild || got[3].ParentID != protocol.RootNodeID {
		t.Errorf("op 3 = %+v", got[3])
	}
	if got[0].NodeID == "" || got[0].NodeID != got[1].NodeID {
		t.Errorf("node id should be stable across ops: %q vs %q", got[0].NodeID, got[1].NodeID)
	}
}

func TestSendOperationPairsResults(t *testing.T) {
	m := newTestManager(t, testConfig())
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			nodeID := fmt.Sprintf("node-%d", i)
			result, err := m.SendOperation(ctx, protocol.SetTextContent(nodeID, "x"))
			if err != nil {
				errs <- fmt.Errorf("op %d: %w", i, err)
				return
			}
			echo, ok := result.(map[string]interface{})
			if !ok {
				errs <- fmt.Errorf("op %d: result %T", i, result)
				return
			}
			if echo["nodeId"] != nodeID {
				errs <- fmt.Errorf("op %d: paired with %v", i, echo["nodeId"])
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	waitForZeroPending(t, m)
}

func TestSendOperationInvalid(t *testing.T) {
	m := newTestManager(t, testConfig())

	_, err := m.SendOperation(context.Background(), protocol.Operation{Type: protocol.OpCreateElement})
	var exec *ExecutionError
	if !errors.As(err, &exec) {
		t.Fatalf("got %v, want ExecutionError", err)
	}
	if !strings.Contains(exec.Message, "tagName") {
		t.Errorf("message %q should name the missing field", exec.Message)
	}
}

func TestSendBatchEmpty(t *testing.T) {
	m := newTestManager(t, testConfig())

	results, err := m.SendBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("SendBatch: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("got %v, want empty slice", results)
	}
	if n := m.PendingCount(); n != 0 {
		t.Errorf("PendingCount = %d, want 0", n)
	}
}

func TestSendBatchPreservesOrder(t *testing.T) {
	m := newTestManager(t, testConfig())

	const n = 100
	ops := make([]protocol.Operation, n)
	for i := range ops {
		ops[i] = protocol.CreateElement("span", fmt.Sprintf("el-%d", i))
	}

	results, err := m.SendBatch(context.Background(), ops)
	if err != nil {
		t.Fatalf("SendBatch: %v", err)
	}
	if len(results) != n {
		t.Fatalf("got %d results, want %d", len(results), n)
	}
	for i, res := range results {
		if !res.Success {
			t.Fatalf("entry %d failed: %s", i, res.Error)
		}
		echo := res.Result.(map[string]interface{})
		if want := fmt.Sprintf("el-%d", i); echo["nodeId"] != want {
			t.Errorf("entry %d paired with %v, want %s", i, echo["nodeId"], want)
		}
	}
}

func TestSendBatchBestEffort(t *testing.T) {
	m := newTestManager(t, testConfig())

	ops := []protocol.Operation{
		protocol.CreateElement("div", "a"),
		{Type: protocol.OpAppendChild},
		protocol.SetTextContent("a", "hi"),
	}
	results, err := m.SendBatch(context.Background(), ops)
	if err != nil {
		t.Fatalf("SendBatch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if !results[0].Success || !results[2].Success {
		t.Error("valid entries should succeed around a malformed one")
	}
	if results[1].Success {
		t.Error("malformed entry should fail")
	}
	if !strings.Contains(results[1].Error, "parentId") {
		t.Errorf("error %q should name the missing field", results[1].Error)
	}
}

func TestTerminateRejectsPending(t *testing.T) {
	cfg := testConfig()
	cfg.ExecTimeout = time.Minute
	m := newTestManager(t, cfg)
	ctx := context.Background()

	const n = 5
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Execute(ctx, `for (;;) {}`)
			errs <- err
		}()
	}

	deadline := time.After(2 * time.Second)
	for m.PendingCount() < n {
		select {
		case <-deadline:
			t.Fatalf("only %d requests pending", m.PendingCount())
		case <-time.After(time.Millisecond):
		}
	}

	m.Terminate()

	if n := m.PendingCount(); n != 0 {
		t.Errorf("PendingCount = %d after Terminate, want 0", n)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if !errors.Is(err, ErrTerminated) {
			t.Errorf("pending request settled with %v, want ErrTerminated", err)
		}
	}

	if _, err := m.Execute(ctx, "1"); !errors.Is(err, ErrTerminated) {
		t.Errorf("Execute after Terminate: got %v, want ErrTerminated", err)
	}
}

func TestTerminateIdempotent(t *testing.T) {
	m := newTestManager(t, testConfig())
	m.Terminate()
	m.Terminate()
	if m.IsActive() {
		t.Error("terminated manager should not be active")
	}
	if got := m.State(); got != StateTerminated {
		t.Errorf("State = %v, want %v", got, StateTerminated)
	}
}

func TestReinitAfterTerminate(t *testing.T) {
	m := newTestManager(t, testConfig())
	m.Terminate()

	if err := m.Init(testConfig()); err != nil {
		t.Fatalf("re-Init: %v", err)
	}
	if !m.IsActive() {
		t.Fatal("manager should be active after re-Init")
	}
	res, err := m.Execute(context.Background(), `console.log("back"); 1`)
	if err != nil {
		t.Fatalf("Execute after re-Init: %v", err)
	}
	if len(res.Console) != 1 || res.Console[0].Message != "back" {
		t.Errorf("console = %+v", res.Console)
	}
	if n := m.PendingCount(); n != 0 {
		t.Errorf("PendingCount = %d, want 0", n)
	}
}

func waitForZeroPending(t *testing.T, m *Manager) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for m.PendingCount() != 0 {
		select {
		case <-deadline:
			t.Fatalf("PendingCount stuck at %d", m.PendingCount())
		case <-time.After(time.Millisecond):
		}
	}
}

