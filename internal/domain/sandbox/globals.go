package sandbox

import (
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/vitrinehq/vitrine/internal/domain/protocol"
)

// handlersGlobal holds event handler functions registered by fragment code.
// Event dispatch invokes them by name through the execute path.
const handlersGlobal = "__handlers"

// setupGlobals curates the VM's global object: ambient capabilities removed,
// captured console and the ui operation builder installed. Runs before the
// loop starts, so no confinement concerns.
func (w *worker) setupGlobals() error {
	// Remove module-system globals goja leaves reachable
	w.vm.Set("require", goja.Undefined())
	w.vm.Set("process", goja.Undefined())
	w.vm.Set("module", goja.Undefined())
	w.vm.Set("exports", goja.Undefined())

	// Timers are host capabilities; stub them
	w.vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		return goja.Undefined()
	})
	w.vm.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		return goja.Undefined()
	})

	if w.cfg.EnableConsole {
		console := w.vm.NewObject()
		for _, level := range []string{"log", "info", "warn", "error", "debug"} {
			if err := console.Set(level, w.makeConsoleFunc(level)); err != nil {
				return err
			}
		}
		if err := w.vm.Set("console", console); err != nil {
			return err
		}
	}

	return w.setupUI()
}

// makeConsoleFunc captures console calls as structured log entries
func (w *worker) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var msg string
		for i, arg := range call.Arguments {
			if i > 0 {
				msg += " "
			}
			msg += arg.String()
		}

		w.console = append(w.console, LogEntry{
			Level:   level,
			Message: msg,
			Time:    time.Now(),
		})

		return goja.Undefined()
	}
}

// setupUI installs the operation builder fragment scripts use to describe
// their UI. Every call emits one operation on the stream; node ids are
// assigned here and stay stable for the worker's lifetime.
func (w *worker) setupUI() error {
	if _, err := w.vm.RunString(handlersGlobal + " = {};"); err != nil {
		return err
	}

	ui := w.vm.NewObject()

	if err := ui.Set("root", protocol.RootNodeID); err != nil {
		return err
	}

	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}

	must(ui.Set("createElement", func(call goja.FunctionCall) goja.Value {
		tag := w.requireArg(call, 0, "createElement", "a tag name")
		w.nodeSeq++
		nodeID := fmt.Sprintf("n%d", w.nodeSeq)
		w.forward(protocol.CreateElement(tag, nodeID))
		return w.vm.ToValue(nodeID)
	}))

	must(ui.Set("setAttribute", func(call goja.FunctionCall) goja.Value {
		nodeID := w.requireArg(call, 0, "setAttribute", "a node id")
		name := w.requireArg(call, 1, "setAttribute", "an attribute name")
		value := call.Argument(2).String()
		w.forward(protocol.SetAttribute(nodeID, name, value))
		return goja.Undefined()
	}))

	must(ui.Set("appendChild", func(call goja.FunctionCall) goja.Value {
		parent := w.requireArg(call, 0, "appendChild", "a parent id")
		child := w.requireArg(call, 1, "appendChild", "a child id")
		w.forward(protocol.AppendChild(parent, child))
		return goja.Undefined()
	}))

	must(ui.Set("removeChild", func(call goja.FunctionCall) goja.Value {
		parent := w.requireArg(call, 0, "removeChild", "a parent id")
		child := w.requireArg(call, 1, "removeChild", "a child id")
		w.forward(protocol.RemoveChild(parent, child))
		return goja.Undefined()
	}))

	must(ui.Set("setTextContent", func(call goja.FunctionCall) goja.Value {
		nodeID := w.requireArg(call, 0, "setTextContent", "a node id")
		text := call.Argument(1).String()
		if goja.IsUndefined(call.Argument(1)) {
			text = ""
		}
		w.forward(protocol.SetTextContent(nodeID, text))
		return goja.Undefined()
	}))

	must(ui.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
		nodeID := w.requireArg(call, 0, "addEventListener", "a node id")
		eventType := w.requireArg(call, 1, "addEventListener", "an event type")
		listener := w.listenerName(call.Argument(2))
		w.forward(protocol.AddEventListener(nodeID, eventType, listener))
		return goja.Undefined()
	}))

	return w.vm.Set("ui", ui)
}

// listenerName resolves the transported listener name: strings pass through,
// functions register under a generated name for later dispatch.
func (w *worker) listenerName(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		panic(w.vm.NewTypeError("ui.addEventListener requires a listener"))
	}

	if _, ok := goja.AssertFunction(v); ok {
		w.nodeSeq++
		name := fmt.Sprintf("h%d", w.nodeSeq)
		handlers := w.vm.Get(handlersGlobal).(*goja.Object)
		if err := handlers.Set(name, v); err != nil {
			panic(w.vm.NewTypeError("failed to register listener"))
		}
		return name
	}

	name := v.String()
	if name == "" {
		panic(w.vm.NewTypeError("ui.addEventListener requires a listener"))
	}
	return name
}

// requireArg coerces a required string argument or raises a TypeError in
// the script
func (w *worker) requireArg(call goja.FunctionCall, i int, fn, what string) string {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) || v.String() == "" {
		panic(w.vm.NewTypeError(fmt.Sprintf("ui.%s requires %s", fn, what)))
	}
	return v.String()
}
