package sandbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/vitrinehq/vitrine/internal/domain/protocol"
	"github.com/vitrinehq/vitrine/internal/shared/id"
	"github.com/vitrinehq/vitrine/internal/shared/pending"
)

// Manager drives one worker through its lifecycle and correlates requests
// with responses across the message boundary. All methods are safe for
// concurrent use.
type Manager struct {
	mu     sync.Mutex
	state  State
	cfg    Config
	worker *worker

	table *pending.Table
	wg    sync.WaitGroup
}

// NewManager returns an uninitialized manager. Call Init before use.
func NewManager() *Manager {
	return &Manager{
		state: StateUninitialized,
		table: pending.NewTable(),
	}
}

// Init boots a worker with the given configuration and transitions the
// manager to Ready. Invalid configuration and boot failures leave the
// manager in its prior state. Initializing a Ready manager is a no-op;
// a terminated manager can be initialized again.
func (m *Manager) Init(cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateReady {
		return nil
	}

	if err := cfg.validate(); err != nil {
		return fmt.Errorf("sandbox config: %w", err)
	}

	w, err := newWorker(cfg)
	if err != nil {
		return err
	}

	m.cfg = cfg
	m.worker = w
	m.state = StateReady

	go w.loop()
	<-w.ready

	m.wg.Add(2)
	go m.demux(w)
	go m.drain(w, cfg.Sink)

	return nil
}

// demux settles pending requests as replies arrive. Runs until the worker
// closes its reply channel; replies for already-settled ids are dropped.
func (m *Manager) demux(w *worker) {
	defer m.wg.Done()
	for resp := range w.replies {
		if resp.Success {
			m.table.Resolve(resp.ID, resp.Result)
			continue
		}
		m.table.Fail(resp.ID, &ExecutionError{Message: resp.Error})
	}
}

// drain consumes the operation stream so the worker never blocks on it,
// handing each operation to the sink when one is configured.
func (m *Manager) drain(w *worker, sink Sink) {
	defer m.wg.Done()
	for op := range w.ops {
		if sink != nil {
			sink(op)
		}
	}
}

// Execute validates code against the gate and, only if it passes, runs it
// in the worker. Gate rejections never reach the worker. The returned error
// preserves a thrown message verbatim.
func (m *Manager) Execute(ctx context.Context, code string) (*ExecuteResult, error) {
	w, cfg, err := m.active()
	if err != nil {
		return nil, err
	}

	if err := cfg.Gate.Validate(code); err != nil {
		return nil, err
	}

	reqID := id.NewRequestID().String()
	done, err := m.table.Register(reqID, cfg.ExecTimeout)
	if err != nil {
		return nil, err
	}

	req := protocol.Request{ID: reqID, Kind: protocol.KindExecute, Code: code}
	if err := w.submit(ctx, req); err != nil {
		m.table.Fail(reqID, err)
		return nil, err
	}

	result, err := m.table.Wait(ctx, reqID, done)
	if err != nil {
		return nil, err
	}

	res, ok := result.(*ExecuteResult)
	if !ok {
		return nil, fmt.Errorf("unexpected execute result %T", result)
	}
	return res, nil
}

// SendOperation posts one operation for transport and waits for its paired
// acknowledgment. Each call uses a fresh request id, so concurrent senders
// always receive the result of their own operation.
func (m *Manager) SendOperation(ctx context.Context, op protocol.Operation) (interface{}, error) {
	w, cfg, err := m.active()
	if err != nil {
		return nil, err
	}

	reqID := id.NewRequestID().String()
	done, err := m.table.Register(reqID, cfg.OpTimeout)
	if err != nil {
		return nil, err
	}

	req := protocol.Request{ID: reqID, Kind: protocol.KindOperation, Operation: &op}
	if err := w.submit(ctx, req); err != nil {
		m.table.Fail(reqID, err)
		return nil, err
	}

	result, err := m.table.Wait(ctx, reqID, done)
	if err != nil {
		return nil, err
	}

	if res, ok := result.(protocol.OperationResult); ok {
		return res.Result, nil
	}
	return result, nil
}

// SendBatch posts a slice of operations as one request and returns per-entry
// results in input order. Transport is best-effort: a malformed entry fails
// alone without voiding its neighbors. An empty batch resolves immediately.
func (m *Manager) SendBatch(ctx context.Context, ops []protocol.Operation) ([]protocol.OperationResult, error) {
	w, cfg, err := m.active()
	if err != nil {
		return nil, err
	}

	if len(ops) == 0 {
		return []protocol.OperationResult{}, nil
	}

	reqID := id.NewRequestID().String()
	done, err := m.table.Register(reqID, cfg.OpTimeout)
	if err != nil {
		return nil, err
	}

	req := protocol.Request{ID: reqID, Kind: protocol.KindBatch, Operations: ops}
	if err := w.submit(ctx, req); err != nil {
		m.table.Fail(reqID, err)
		return nil, err
	}

	result, err := m.table.Wait(ctx, reqID, done)
	if err != nil {
		return nil, err
	}

	results, ok := result.([]protocol.OperationResult)
	if !ok {
		return nil, fmt.Errorf("unexpected batch result %T", result)
	}
	return results, nil
}

// Terminate stops the worker and synchronously rejects every pending
// request with ErrTerminated. Safe to call repeatedly; a terminated
// manager rejects new work until initialized again.
func (m *Manager) Terminate() {
	m.mu.Lock()
	if m.state != StateReady {
		m.mu.Unlock()
		return
	}
	w := m.worker
	m.worker = nil
	m.state = StateTerminated
	m.mu.Unlock()

	w.terminate()
	m.table.RejectAll(ErrTerminated)
	m.wg.Wait()
}

// IsActive reports whether the manager accepts work
func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateReady
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// PendingCount reports requests awaiting settlement
func (m *Manager) PendingCount() int {
	return m.table.Count()
}

// active snapshots the worker and configuration, mapping lifecycle state to
// the error new work should see
func (m *Manager) active() (*worker, Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateReady:
		return m.worker, m.cfg, nil
	case StateTerminated:
		return nil, Config{}, ErrTerminated
	default:
		return nil, Config{}, ErrNotInitialized
	}
}
