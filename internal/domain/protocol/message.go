package protocol

// Kind discriminates sandbox boundary requests
type Kind string

const (
	KindExecute   Kind = "execute"
	KindOperation Kind = "operation"
	KindBatch     Kind = "batch"
)

// Request is the manager-to-worker envelope. ID is unique per request;
// exactly one payload field matches Kind.
type Request struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`

	Code       string      `json:"code,omitempty"`
	Operation  *Operation  `json:"operation,omitempty"`
	Operations []Operation `json:"operations,omitempty"`
}

// Response is the worker-to-manager envelope, correlated by ID
type Response struct {
	ID      string      `json:"id"`
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OperationResult is the settlement of one transported operation
type OperationResult struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Rendered-UI boundary message types
const (
	MessageTool       = "tool"
	MessageUIResponse = "ui-message-response"
)

// ToolPayload names the privileged call and its arguments
type ToolPayload struct {
	ToolName string                 `json:"toolName"`
	Params   map[string]interface{} `json:"params"`
}

// ToolCall is the rendered UI's privileged-call request
type ToolCall struct {
	Type      string      `json:"type"`
	MessageID string      `json:"messageId"`
	Payload   ToolPayload `json:"payload"`
}

// ToolResponse answers a ToolCall; Result and Error are mutually exclusive
type ToolResponse struct {
	Type      string      `json:"type"`
	MessageID string      `json:"messageId"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// NewToolResponse builds a success response for a messageId
func NewToolResponse(messageID string, result interface{}) ToolResponse {
	return ToolResponse{Type: MessageUIResponse, MessageID: messageID, Result: result}
}

// NewToolError builds an error response for a messageId
func NewToolError(messageID string, err error) ToolResponse {
	return ToolResponse{Type: MessageUIResponse, MessageID: messageID, Error: err.Error()}
}
