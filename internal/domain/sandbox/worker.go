package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/vitrinehq/vitrine/internal/domain/protocol"
)

// Interrupt reasons surfaced as execution error messages
const (
	interruptTimeout    = "execution timeout exceeded"
	interruptTerminated = "sandbox terminated"
)

// worker owns one goja VM, confined to the loop goroutine. All interaction
// happens through the inbox; replies and emitted operations flow out on
// their own channels, both closed when the loop exits.
type worker struct {
	vm  *goja.Runtime
	cfg Config

	inbox   chan protocol.Request
	replies chan protocol.Response
	ops     chan protocol.Operation
	ready   chan struct{}
	stop    chan struct{}

	console []LogEntry
	emitted int
	nodeSeq int
}

// newWorker boots a VM with curated globals and runs the bootstrap script.
// A bootstrap failure is a boot failure: the manager's Init rejects.
func newWorker(cfg Config) (*worker, error) {
	w := &worker{
		vm:      goja.New(),
		cfg:     cfg,
		inbox:   make(chan protocol.Request, cfg.InboxSize),
		replies: make(chan protocol.Response, cfg.InboxSize),
		ops:     make(chan protocol.Operation, cfg.StreamSize),
		ready:   make(chan struct{}),
		stop:    make(chan struct{}),
	}

	if cfg.MaxCallStack > 0 {
		w.vm.SetMaxCallStackSize(cfg.MaxCallStack)
	}

	if err := w.setupGlobals(); err != nil {
		return nil, fmt.Errorf("sandbox boot: %w", err)
	}

	if cfg.Bootstrap != "" {
		if _, err := w.vm.RunString(cfg.Bootstrap); err != nil {
			return nil, fmt.Errorf("sandbox boot: %s", errorMessage(err))
		}
	}

	return w, nil
}

// loop processes requests until stopped. The VM is only ever touched here.
func (w *worker) loop() {
	defer close(w.replies)
	defer close(w.ops)

	close(w.ready)

	for {
		select {
		case <-w.stop:
			return
		case req := <-w.inbox:
			w.handle(req)
		}
	}
}

// submit queues a request for the loop
func (w *worker) submit(ctx context.Context, req protocol.Request) error {
	select {
	case w.inbox <- req:
		return nil
	case <-w.stop:
		return ErrTerminated
	case <-ctx.Done():
		return ctx.Err()
	}
}

// terminate stops the loop and interrupts any running script.
// In-flight work is abandoned, not drained.
func (w *worker) terminate() {
	select {
	case <-w.stop:
		return
	default:
	}
	close(w.stop)
	w.vm.Interrupt(interruptTerminated)
}

func (w *worker) handle(req protocol.Request) {
	switch req.Kind {
	case protocol.KindExecute:
		result, errMsg := w.runScript(req.Code)
		if errMsg != "" {
			w.reply(protocol.Response{ID: req.ID, Success: false, Error: errMsg})
			return
		}
		w.reply(protocol.Response{ID: req.ID, Success: true, Result: result})

	case protocol.KindOperation:
		if req.Operation == nil {
			w.reply(protocol.Response{ID: req.ID, Success: false, Error: "operation payload missing"})
			return
		}
		res := w.transport(*req.Operation)
		if !res.Success {
			w.reply(protocol.Response{ID: req.ID, Success: false, Error: res.Error})
			return
		}
		w.reply(protocol.Response{ID: req.ID, Success: true, Result: res})

	case protocol.KindBatch:
		results := make([]protocol.OperationResult, len(req.Operations))
		for i, op := range req.Operations {
			results[i] = w.transport(op)
		}
		w.reply(protocol.Response{ID: req.ID, Success: true, Result: results})

	default:
		w.reply(protocol.Response{ID: req.ID, Success: false, Error: fmt.Sprintf("unknown request kind %q", req.Kind)})
	}
}

// runScript evaluates code under the execution budget. Returns the result
// summary, or a non-empty error message with the thrown message verbatim.
func (w *worker) runScript(code string) (*ExecuteResult, string) {
	start := time.Now()
	w.console = w.console[:0]
	before := w.emitted

	timer := time.NewTimer(w.cfg.ExecTimeout)
	defer timer.Stop()

	finished := make(chan struct{})
	disarmed := make(chan struct{})
	go func() {
		defer close(disarmed)
		select {
		case <-timer.C:
			w.vm.Interrupt(interruptTimeout)
		case <-w.stop:
			w.vm.Interrupt(interruptTerminated)
		case <-finished:
		}
	}()

	_, err := w.vm.RunString(code)

	close(finished)
	<-disarmed
	// Clear any interrupt that raced with completion so the next run
	// starts clean.
	w.vm.ClearInterrupt()

	if err != nil {
		return nil, errorMessage(err)
	}

	return &ExecuteResult{
		Console:    append([]LogEntry{}, w.console...),
		OpsEmitted: w.emitted - before,
		Duration:   time.Since(start),
	}, ""
}

// transport forwards one operation to the stream without interpreting it.
// Only structural validation happens here; semantics belong to the renderer.
func (w *worker) transport(op protocol.Operation) protocol.OperationResult {
	if err := op.Validate(); err != nil {
		return protocol.OperationResult{Success: false, Error: err.Error()}
	}

	w.forward(op)
	return protocol.OperationResult{Success: true, Result: ack(op)}
}

// forward emits an operation on the stream, dropping it during shutdown
func (w *worker) forward(op protocol.Operation) {
	select {
	case w.ops <- op:
		w.emitted++
	case <-w.stop:
	}
}

func (w *worker) reply(resp protocol.Response) {
	select {
	case w.replies <- resp:
	case <-w.stop:
	}
}

// ack echoes an operation's addressing so concurrent callers can pair
// results with what they sent
func ack(op protocol.Operation) map[string]interface{} {
	out := map[string]interface{}{"type": string(op.Type)}
	if op.NodeID != "" {
		out["nodeId"] = op.NodeID
	}
	if op.ParentID != "" {
		out["parentId"] = op.ParentID
	}
	if op.ChildID != "" {
		out["childId"] = op.ChildID
	}
	return out
}

// errorMessage extracts the message a script observer would see: the thrown
// error's message property when present, the thrown value otherwise, and the
// interrupt reason for budget kills.
func errorMessage(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		val := ex.Value()
		if obj, ok := val.(*goja.Object); ok {
			if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) && !goja.IsNull(m) {
				return m.String()
			}
		}
		if val != nil {
			return val.String()
		}
		return ex.Error()
	}

	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		if v := ie.Value(); v != nil {
			return fmt.Sprintf("%v", v)
		}
	}

	return err.Error()
}
