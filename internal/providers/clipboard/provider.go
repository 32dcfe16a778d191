package clipboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitrinehq/vitrine/internal/shared/types"
)

const historyLimit = 50

// Entry is one clipboard item
type Entry struct {
	ID        int    `json:"id"`
	Text      string `json:"text"`
	Source    string `json:"source,omitempty"`
	CopiedAt  int64  `json:"copied_at"`
	Delivered int    `json:"delivered"`
}

// Provider implements an in-process clipboard shared by all fragments.
// Fragments cannot reach the host clipboard from the sandbox; copy and
// paste go through this service instead.
type Provider struct {
	mu      sync.Mutex
	seq     int
	history []*Entry
}

// NewProvider creates a clipboard provider
func NewProvider() *Provider {
	return &Provider{}
}

// Definition returns service metadata
func (c *Provider) Definition() types.Service {
	return types.Service{
		ID:          "clipboard",
		Name:        "Clipboard Service",
		Description: "Shared clipboard with history for fragments",
		Category:    types.CategoryClipboard,
		Capabilities: []string{
			"copy",
			"paste",
			"history",
		},
		Tools: c.getTools(),
	}
}

func (c *Provider) getTools() []types.Tool {
	return []types.Tool{
		{
			ID:          "clipboard.copy",
			Name:        "Copy to Clipboard",
			Description: "Copy text to the shared clipboard",
			Parameters: []types.Parameter{
				{Name: "text", Type: "string", Description: "Text to copy", Required: true},
			},
			Returns: "object",
		},
		{
			ID:          "clipboard.paste",
			Name:        "Paste from Clipboard",
			Description: "Read the most recent clipboard entry",
			Parameters:  []types.Parameter{},
			Returns:     "object",
		},
		{
			ID:          "clipboard.history",
			Name:        "Clipboard History",
			Description: "List recent clipboard entries, newest first",
			Parameters: []types.Parameter{
				{Name: "limit", Type: "number", Description: "Max entries to return", Required: false},
			},
			Returns: "array",
		},
		{
			ID:          "clipboard.clear",
			Name:        "Clear Clipboard",
			Description: "Drop all clipboard entries",
			Parameters:  []types.Parameter{},
			Returns:     "boolean",
		},
	}
}

// Execute runs a clipboard operation
func (c *Provider) Execute(ctx context.Context, toolID string, params map[string]interface{}, fragCtx *types.Context) (*types.Result, error) {
	switch toolID {
	case "clipboard.copy":
		return c.copy(params, fragCtx)
	case "clipboard.paste":
		return c.paste()
	case "clipboard.history":
		return c.getHistory(params)
	case "clipboard.clear":
		return c.clear()
	default:
		return failure(fmt.Sprintf("unknown tool: %s", toolID))
	}
}

func (c *Provider) copy(params map[string]interface{}, fragCtx *types.Context) (*types.Result, error) {
	text, ok := params["text"].(string)
	if !ok || text == "" {
		return failure("text required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	entry := &Entry{
		ID:       c.seq,
		Text:     text,
		CopiedAt: time.Now().UnixMilli(),
	}
	if fragCtx != nil && fragCtx.FragmentID != nil {
		entry.Source = *fragCtx.FragmentID
	}

	c.history = append(c.history, entry)
	if len(c.history) > historyLimit {
		c.history = c.history[len(c.history)-historyLimit:]
	}

	return success(map[string]interface{}{
		"entry_id": entry.ID,
		"copied":   true,
	})
}

func (c *Provider) paste() (*types.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.history) == 0 {
		return failure("clipboard is empty")
	}

	entry := c.history[len(c.history)-1]
	entry.Delivered++

	return success(map[string]interface{}{
		"text":     entry.Text,
		"entry_id": entry.ID,
		"source":   entry.Source,
	})
}

func (c *Provider) getHistory(params map[string]interface{}) (*types.Result, error) {
	limit := historyLimit
	if l, ok := params["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if limit > len(c.history) {
		limit = len(c.history)
	}

	entries := make([]Entry, 0, limit)
	for i := len(c.history) - 1; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, *c.history[i])
	}

	return success(map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func (c *Provider) clear() (*types.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cleared := len(c.history)
	c.history = nil

	return success(map[string]interface{}{
		"cleared": true,
		"dropped": cleared,
	})
}

func success(data map[string]interface{}) (*types.Result, error) {
	return &types.Result{Success: true, Data: data}, nil
}

func failure(message string) (*types.Result, error) {
	errMsg := message
	return &types.Result{Success: false, Error: &errMsg}, fmt.Errorf("%s", message)
}
