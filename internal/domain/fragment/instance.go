package fragment

import (
	"github.com/vitrinehq/vitrine/internal/domain/gateway"
	"github.com/vitrinehq/vitrine/internal/domain/protocol"
	"github.com/vitrinehq/vitrine/internal/domain/sandbox"
	"github.com/vitrinehq/vitrine/internal/shared/types"
)

// instance binds one fragment's metadata to its sandbox and gateway
type instance struct {
	meta    types.Fragment
	sandbox *sandbox.Manager
	gateway *gateway.Gateway

	// stream carries emitted operations to the renderer transport. Writes
	// never block: when no consumer keeps up, operations are dropped.
	stream chan protocol.Operation

	// done closes when the instance is torn down
	done chan struct{}
}

// newInstance prepares the channels; the sandbox and gateway are attached
// during spawn, after the sink closure exists
func newInstance(meta types.Fragment, buffer int) *instance {
	return &instance{
		meta:   meta,
		stream: make(chan protocol.Operation, buffer),
		done:   make(chan struct{}),
	}
}

// emit is the sandbox sink for this instance
func (in *instance) emit(op protocol.Operation) {
	select {
	case in.stream <- op:
	default:
	}
}

// close tears down the sandbox and gateway and signals consumers.
// The stream channel is left open so concurrent emits never panic.
func (in *instance) close() {
	in.sandbox.Terminate()
	in.gateway.Close()
	close(in.done)
}
