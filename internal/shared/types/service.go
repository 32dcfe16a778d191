package types

// Category represents service categories
type Category string

const (
	CategoryStorage   Category = "storage"
	CategoryHTTP      Category = "http"
	CategoryClipboard Category = "clipboard"
	CategorySystem    Category = "system"
	CategoryMath      Category = "math"
	CategoryContent   Category = "content"
)

// Service represents a service definition
type Service struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Category     Category `json:"category"`
	Capabilities []string `json:"capabilities"`
	Tools        []Tool   `json:"tools"`
}

// Tool represents a service tool
type Tool struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Returns     string      `json:"returns"`
}

// Parameter represents a tool parameter
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Context carries the scope a tool call executes under.
// Providers use it to partition state per fragment and session.
type Context struct {
	FragmentID *string `json:"fragment_id,omitempty"`
	SessionID  *string `json:"session_id,omitempty"`
	UserID     *string `json:"user_id,omitempty"`
}

// Result represents a tool execution result
type Result struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   *string                `json:"error,omitempty"`
}
