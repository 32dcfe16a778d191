package unit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrinehq/vitrine/internal/domain/gateway"
	"github.com/vitrinehq/vitrine/internal/shared/types"
	"github.com/vitrinehq/vitrine/tests/helpers/testutil"
)

// countingEngine wraps an engine, counting delegate invocations per tool.
type countingEngine struct {
	inner gateway.Engine
	calls int64
}

func (e *countingEngine) Execute(ctx context.Context, toolID string, params map[string]interface{}, fragCtx *types.Context) (*types.Result, error) {
	atomic.AddInt64(&e.calls, 1)
	return e.inner.Execute(ctx, toolID, params, fragCtx)
}

func TestGatewayGrantExpansion(t *testing.T) {
	registry := testutil.NewRegistry(t)

	// A manifest that grants all of storage but only two math tools.
	mf := testutil.InlineManifest("scoped", `console.log('x')`,
		"storage",
		map[string]interface{}{"math": []interface{}{"sum", "mean"}},
	)
	allowed, err := mf.Allowlist(registry.Catalog())
	require.NoError(t, err)

	g := gateway.New(registry, gateway.Config{
		Allowed: allowed,
		Timeout: 2 * time.Second,
	})
	defer g.Close()

	assert.True(t, g.Allowed("storage.set"))
	assert.True(t, g.Allowed("storage.get"))
	assert.True(t, g.Allowed("math.sum"))
	assert.True(t, g.Allowed("math.mean"))
	assert.False(t, g.Allowed("math.stdev"))
	assert.False(t, g.Allowed("system.info"))
}

func TestGatewayRefusalNeverReachesEngine(t *testing.T) {
	registry := testutil.NewRegistry(t)
	engine := &countingEngine{inner: registry}

	g := gateway.New(engine, gateway.Config{
		Allowed: []string{"math.sum"},
		Timeout: 2 * time.Second,
	})
	defer g.Close()

	resp := g.Handle(context.Background(), testutil.ToolCall("m1", "system.info", nil))
	assert.Equal(t, "m1", resp.MessageID)
	assert.Contains(t, resp.Error, "not allowed")
	assert.Equal(t, int64(0), atomic.LoadInt64(&engine.calls))
}

func TestGatewayDelegatesExactlyOnce(t *testing.T) {
	registry := testutil.NewRegistry(t)
	engine := &countingEngine{inner: registry}

	g := gateway.New(engine, gateway.Config{
		Allowed: []string{"math.sum"},
		Timeout: 2 * time.Second,
	})
	defer g.Close()

	resp := g.Handle(context.Background(), testutil.ToolCall("m2", "math.sum", map[string]interface{}{
		"numbers": []interface{}{1.0, 2.0, 3.0},
	}))
	assert.Empty(t, resp.Error)
	require.NotNil(t, resp.Result)
	assert.Equal(t, int64(1), atomic.LoadInt64(&engine.calls))
	assert.Equal(t, 0, g.PendingCount())
}

func TestGatewayEngineFailureTravelsInEnvelope(t *testing.T) {
	registry := testutil.NewRegistry(t)

	g := gateway.New(registry, gateway.Config{
		Allowed: []string{"math.sum"},
		Timeout: 2 * time.Second,
	})
	defer g.Close()

	// Bad parameters fail inside the provider; the gateway reports the
	// failure without crashing or leaking a pending entry.
	resp := g.Handle(context.Background(), testutil.ToolCall("m3", "math.sum", map[string]interface{}{
		"numbers": "not an array",
	}))
	assert.Equal(t, "m3", resp.MessageID)
	assert.NotEmpty(t, resp.Error)
	assert.Equal(t, 0, g.PendingCount())
}
