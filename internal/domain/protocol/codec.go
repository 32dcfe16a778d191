package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Encode marshals any boundary message to JSON
func Encode(v interface{}) ([]byte, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// DecodeOperation unmarshals and validates a single operation
func DecodeOperation(data []byte) (Operation, error) {
	var op Operation
	if err := sonic.Unmarshal(data, &op); err != nil {
		return Operation{}, fmt.Errorf("decode operation: %w", err)
	}
	if err := op.Validate(); err != nil {
		return Operation{}, err
	}
	return op, nil
}

// DecodeOperations unmarshals and validates an operation batch.
// The whole batch is rejected when any element is malformed, so nothing
// half-decoded ever reaches a boundary.
func DecodeOperations(data []byte) ([]Operation, error) {
	var ops []Operation
	if err := sonic.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("decode operations: %w", err)
	}
	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
	}
	return ops, nil
}

// DecodeToolCall unmarshals a rendered-UI tool call and checks its envelope
func DecodeToolCall(data []byte) (ToolCall, error) {
	var call ToolCall
	if err := sonic.Unmarshal(data, &call); err != nil {
		return ToolCall{}, fmt.Errorf("decode tool call: %w", err)
	}
	if call.Type != MessageTool {
		return ToolCall{}, fmt.Errorf("unexpected message type %q", call.Type)
	}
	if call.MessageID == "" {
		return ToolCall{}, fmt.Errorf("tool call requires messageId")
	}
	if call.Payload.ToolName == "" {
		return ToolCall{}, fmt.Errorf("tool call requires payload.toolName")
	}
	return call, nil
}
