package fragment

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/vitrinehq/vitrine/internal/domain/bundle"
	"github.com/vitrinehq/vitrine/internal/domain/gateway"
	"github.com/vitrinehq/vitrine/internal/domain/manifest"
	"github.com/vitrinehq/vitrine/internal/domain/protocol"
	"github.com/vitrinehq/vitrine/internal/domain/sandbox"
	"github.com/vitrinehq/vitrine/internal/infrastructure/monitoring"
	"github.com/vitrinehq/vitrine/internal/shared/id"
	"github.com/vitrinehq/vitrine/internal/shared/types"
	"github.com/vitrinehq/vitrine/internal/shared/utils"
)

// ErrNotFound indicates an unknown fragment id
var ErrNotFound = fmt.Errorf("fragment not found")

// ToolSource exposes the tool engine and its catalog for allowlist expansion
type ToolSource interface {
	gateway.Engine
	Catalog() map[string][]string
}

// Defaults carries server-wide budgets applied to every fragment unless its
// manifest overrides them
type Defaults struct {
	// Sandbox is the configuration template; Sink is set per instance
	Sandbox sandbox.Config

	// ToolTimeout bounds gateway calls
	ToolTimeout time.Duration

	// StreamBuffer sizes each instance's operation stream; 256 when zero
	StreamBuffer int
}

// Manager orchestrates fragment lifecycle
type Manager struct {
	mu        sync.RWMutex
	instances map[string]*instance // Protected by mu
	spawned   int                  // Protected by mu

	engine   ToolSource
	fetcher  *bundle.Fetcher
	defaults Defaults
	metrics  *monitoring.Metrics
}

// NewManager creates a fragment manager. The fetcher may be nil when only
// inline-code manifests are served.
func NewManager(engine ToolSource, fetcher *bundle.Fetcher, defaults Defaults) *Manager {
	if defaults.StreamBuffer <= 0 {
		defaults.StreamBuffer = 256
	}
	return &Manager{
		instances: make(map[string]*instance),
		engine:    engine,
		fetcher:   fetcher,
		defaults:  defaults,
	}
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Spawn boots a fragment from its manifest: code is resolved, the sandbox
// initialized, the code executed once, and the gateway scoped to the
// manifest's grants. A failure at any step leaves nothing registered.
func (m *Manager) Spawn(ctx context.Context, mf *manifest.Manifest) (*types.Fragment, error) {
	if err := mf.Validate(); err != nil {
		return nil, err
	}

	code, digest, err := m.resolveCode(ctx, mf)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateScript(code); err != nil {
		return nil, err
	}

	services, err := mf.ServiceNames()
	if err != nil {
		return nil, err
	}
	allowed, err := mf.Allowlist(m.engine.Catalog())
	if err != nil {
		return nil, err
	}

	fragID := id.NewFragmentID().String()
	meta := types.Fragment{
		ID:           fragID,
		Title:        mf.Fragment.Name,
		Description:  mf.Fragment.Description,
		Version:      mf.Fragment.Version,
		Author:       mf.Fragment.Author,
		State:        types.StateSpawning,
		CreatedAt:    time.Now(),
		Services:     services,
		BundleDigest: digest,
	}

	in := newInstance(meta, m.defaults.StreamBuffer)

	cfg := m.sandboxConfig(mf)
	cfg.Sink = in.emit

	sb := sandbox.NewManager()
	if err := sb.Init(cfg); err != nil {
		return nil, err
	}
	in.sandbox = sb

	res, err := sb.Execute(ctx, code)
	if err != nil {
		sb.Terminate()
		if m.metrics != nil {
			m.metrics.ExecutionObserved(0, monitoring.StatusError)
		}
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.ExecutionObserved(res.Duration, monitoring.StatusOK)
	}

	in.gateway = gateway.New(m.engine, gateway.Config{
		Allowed:  allowed,
		Timeout:  m.toolTimeout(mf),
		Fragment: &types.Context{FragmentID: &in.meta.ID},
	})

	in.meta.State = types.StateActive

	m.mu.Lock()
	m.instances[fragID] = in
	m.spawned++
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.FragmentSpawned()
	}

	metaCopy := in.meta
	return &metaCopy, nil
}

// resolveCode returns the fragment's code, fetching the bundle when the
// manifest references one
func (m *Manager) resolveCode(ctx context.Context, mf *manifest.Manifest) (string, string, error) {
	if mf.Code != "" {
		return mf.Code, "", nil
	}
	if m.fetcher == nil {
		return "", "", fmt.Errorf("bundle manifests are not enabled")
	}
	code, info, err := m.fetcher.Fetch(ctx, *mf.Bundle)
	if err != nil {
		return "", "", err
	}
	return code, info.Digest.String(), nil
}

// sandboxConfig applies manifest limit overrides to the server defaults
func (m *Manager) sandboxConfig(mf *manifest.Manifest) sandbox.Config {
	cfg := m.defaults.Sandbox
	if mf.Limits != nil {
		if mf.Limits.ExecTimeoutMS > 0 {
			cfg.ExecTimeout = time.Duration(mf.Limits.ExecTimeoutMS) * time.Millisecond
		}
		if mf.Limits.OpTimeoutMS > 0 {
			cfg.OpTimeout = time.Duration(mf.Limits.OpTimeoutMS) * time.Millisecond
		}
	}
	return cfg
}

func (m *Manager) toolTimeout(mf *manifest.Manifest) time.Duration {
	if mf.Limits != nil && mf.Limits.ToolTimeoutMS > 0 {
		return time.Duration(mf.Limits.ToolTimeoutMS) * time.Millisecond
	}
	return m.defaults.ToolTimeout
}

// Get retrieves a fragment by ID
func (m *Manager) Get(fragID string) (*types.Fragment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	in, ok := m.instances[fragID]
	if !ok {
		return nil, false
	}

	// Return a copy to prevent external modifications
	metaCopy := in.meta
	return &metaCopy, true
}

// List returns all fragments, optionally filtered by state
func (m *Manager) List(state *types.State) []*types.Fragment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fragments := make([]*types.Fragment, 0, len(m.instances))
	for _, in := range m.instances {
		if state == nil || in.meta.State == *state {
			metaCopy := in.meta
			fragments = append(fragments, &metaCopy)
		}
	}
	return fragments
}

// Execute runs code inside a fragment's sandbox
func (m *Manager) Execute(ctx context.Context, fragID, code string) (*sandbox.ExecuteResult, error) {
	in, err := m.lookup(fragID)
	if err != nil {
		return nil, err
	}

	res, execErr := in.sandbox.Execute(ctx, code)
	if m.metrics != nil {
		if execErr != nil {
			m.metrics.ExecutionObserved(0, monitoring.StatusError)
		} else {
			m.metrics.ExecutionObserved(res.Duration, monitoring.StatusOK)
		}
	}
	return res, execErr
}

// Operation posts one operation through a fragment's sandbox boundary
func (m *Manager) Operation(ctx context.Context, fragID string, op protocol.Operation) (interface{}, error) {
	in, err := m.lookup(fragID)
	if err != nil {
		return nil, err
	}
	return in.sandbox.SendOperation(ctx, op)
}

// Batch posts a batch of operations through a fragment's sandbox boundary
func (m *Manager) Batch(ctx context.Context, fragID string, ops []protocol.Operation) ([]protocol.OperationResult, error) {
	in, err := m.lookup(fragID)
	if err != nil {
		return nil, err
	}
	return in.sandbox.SendBatch(ctx, ops)
}

// HandleTool routes a tool call to the fragment's gateway
func (m *Manager) HandleTool(ctx context.Context, fragID string, call protocol.ToolCall) (protocol.ToolResponse, error) {
	in, err := m.lookup(fragID)
	if err != nil {
		return protocol.ToolResponse{}, err
	}
	return in.gateway.Handle(ctx, call), nil
}

// DispatchEvent invokes a listener the fragment registered by name
func (m *Manager) DispatchEvent(ctx context.Context, fragID, listener string) (*sandbox.ExecuteResult, error) {
	in, err := m.lookup(fragID)
	if err != nil {
		return nil, err
	}
	name := strconv.Quote(listener)
	return in.sandbox.Execute(ctx, fmt.Sprintf("__handlers[%s] && __handlers[%s]()", name, name))
}

// Stream subscribes to a fragment's emitted operations. The done channel
// closes when the fragment closes.
func (m *Manager) Stream(fragID string) (<-chan protocol.Operation, <-chan struct{}, error) {
	in, err := m.lookup(fragID)
	if err != nil {
		return nil, nil, err
	}
	return in.stream, in.done, nil
}

// Close destroys a fragment
func (m *Manager) Close(fragID string) bool {
	m.mu.Lock()
	in, ok := m.instances[fragID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	in.meta.State = types.StateClosed
	delete(m.instances, fragID)
	m.mu.Unlock()

	in.close()
	if m.metrics != nil {
		m.metrics.FragmentClosed()
	}
	return true
}

// CloseAll destroys every fragment and reports how many were closed
func (m *Manager) CloseAll() int {
	m.mu.Lock()
	closing := make([]*instance, 0, len(m.instances))
	for fragID, in := range m.instances {
		in.meta.State = types.StateClosed
		closing = append(closing, in)
		delete(m.instances, fragID)
	}
	m.mu.Unlock()

	for _, in := range closing {
		in.close()
		if m.metrics != nil {
			m.metrics.FragmentClosed()
		}
	}
	return len(closing)
}

// Stats returns manager statistics
func (m *Manager) Stats() types.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active, pending int
	for _, in := range m.instances {
		if in.meta.State == types.StateActive {
			active++
		}
		pending += in.sandbox.PendingCount() + in.gateway.PendingCount()
	}

	return types.Stats{
		TotalFragments:  len(m.instances),
		ActiveFragments: active,
		TotalSpawned:    m.spawned,
		PendingRequests: pending,
	}
}

func (m *Manager) lookup(fragID string) (*instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	in, ok := m.instances[fragID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fragID)
	}
	return in, nil
}
