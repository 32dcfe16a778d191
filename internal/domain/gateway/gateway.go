package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vitrinehq/vitrine/internal/domain/protocol"
	"github.com/vitrinehq/vitrine/internal/shared/pending"
	"github.com/vitrinehq/vitrine/internal/shared/types"
)

// DefaultTimeout bounds a tool call when the configuration does not
const DefaultTimeout = 30 * time.Second

// ErrClosed indicates a call on, or pending at, a closed gateway
var ErrClosed = errors.New("gateway closed")

// NotAllowedError reports a tool outside the fragment's allowlist
type NotAllowedError struct {
	Tool string
}

func (e *NotAllowedError) Error() string {
	return fmt.Sprintf("%s not allowed", e.Tool)
}

// ExecutionError reports an allowed tool that failed in the engine
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Engine executes privileged tools on behalf of fragments
type Engine interface {
	Execute(ctx context.Context, toolID string, params map[string]interface{}, fragCtx *types.Context) (*types.Result, error)
}

// Config scopes a gateway to one fragment
type Config struct {
	// Allowed is the exact set of tool ids the fragment may call.
	// Wildcard grants are expanded before they reach the gateway.
	Allowed []string

	// Timeout bounds each call; DefaultTimeout when zero
	Timeout time.Duration

	// Fragment identifies the caller on engine invocations
	Fragment *types.Context
}

// Gateway enforces one fragment's allowlist and correlates tool calls with
// their responses. Safe for concurrent use.
type Gateway struct {
	engine   Engine
	allowed  map[string]struct{}
	timeout  time.Duration
	fragment *types.Context

	table *pending.Table

	mu     sync.Mutex
	closed bool
}

// New builds a gateway around an engine. A nil or empty allowlist denies
// every tool.
func New(engine Engine, cfg Config) *Gateway {
	allowed := make(map[string]struct{}, len(cfg.Allowed))
	for _, tool := range cfg.Allowed {
		allowed[tool] = struct{}{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Gateway{
		engine:   engine,
		allowed:  allowed,
		timeout:  timeout,
		fragment: cfg.Fragment,
		table:    pending.NewTable(),
	}
}

// Allowed reports whether the fragment may call the tool
func (g *Gateway) Allowed(tool string) bool {
	_, ok := g.allowed[tool]
	return ok
}

// Handle answers one tool call. The allowlist is checked before the engine
// is involved; refused calls never execute. The response always echoes the
// call's messageId.
func (g *Gateway) Handle(ctx context.Context, call protocol.ToolCall) protocol.ToolResponse {
	tool := call.Payload.ToolName

	if g.isClosed() {
		return protocol.NewToolError(call.MessageID, ErrClosed)
	}

	if !g.Allowed(tool) {
		return protocol.NewToolError(call.MessageID, &NotAllowedError{Tool: tool})
	}

	done, err := g.table.Register(call.MessageID, g.timeout)
	if err != nil {
		return protocol.NewToolError(call.MessageID, err)
	}

	go g.invoke(ctx, call)

	result, err := g.table.Wait(ctx, call.MessageID, done)
	if err != nil {
		return protocol.NewToolError(call.MessageID, err)
	}
	return protocol.NewToolResponse(call.MessageID, result)
}

// invoke runs the engine call and settles the pending entry. Late
// settlements after timeout or Close are dropped by the table.
func (g *Gateway) invoke(ctx context.Context, call protocol.ToolCall) {
	tool := call.Payload.ToolName

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.engine.Execute(callCtx, tool, call.Payload.Params, g.fragment)
	if err != nil {
		g.table.Fail(call.MessageID, &ExecutionError{Tool: tool, Err: err})
		return
	}

	if result != nil && !result.Success {
		msg := "execution failed"
		if result.Error != nil {
			msg = *result.Error
		}
		g.table.Fail(call.MessageID, &ExecutionError{Tool: tool, Err: errors.New(msg)})
		return
	}

	var data interface{}
	if result != nil {
		data = result.Data
	}
	g.table.Resolve(call.MessageID, data)
}

// PendingCount reports calls awaiting settlement
func (g *Gateway) PendingCount() int {
	return g.table.Count()
}

// Close rejects every pending call with ErrClosed and refuses new ones.
// Safe to call repeatedly.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.mu.Unlock()

	g.table.RejectAll(ErrClosed)
}

func (g *Gateway) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}
