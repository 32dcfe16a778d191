package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/vitrinehq/vitrine/internal/shared/types"
)

// entry wraps a stored value with its optional expiry (unix millis, 0 = none)
type entry struct {
	Value     interface{} `json:"value"`
	ExpiresAt int64       `json:"expires_at,omitempty"`
}

func (e entry) expired(now int64) bool {
	return e.ExpiresAt > 0 && now >= e.ExpiresAt
}

// Provider implements per-fragment key-value storage. Fragments have no
// localStorage inside the sandbox; this service is the mediated replacement.
// Each scope persists as one JSON file under the provider directory.
// Expired entries are dropped lazily on access.
type Provider struct {
	dir    string
	mu     sync.Mutex
	scopes map[string]map[string]entry
}

// NewProvider creates a storage provider rooted at dir
func NewProvider(dir string) (*Provider, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage dir: %w", err)
	}
	return &Provider{
		dir:    dir,
		scopes: make(map[string]map[string]entry),
	}, nil
}

// Definition returns service metadata
func (p *Provider) Definition() types.Service {
	return types.Service{
		ID:          "storage",
		Name:        "Storage Service",
		Description: "Key-value persistence scoped per fragment",
		Category:    types.CategoryStorage,
		Capabilities: []string{
			"get",
			"set",
			"remove",
			"ttl",
			"persistence",
		},
		Tools: []types.Tool{
			{
				ID:          "storage.set",
				Name:        "Set Value",
				Description: "Store a value under a key",
				Parameters: []types.Parameter{
					{Name: "key", Type: "string", Description: "Storage key", Required: true},
					{Name: "value", Type: "any", Description: "Value to store", Required: true},
					{Name: "ttl_ms", Type: "number", Description: "Time to live in milliseconds (0 = no expiry)", Required: false},
				},
				Returns: "boolean",
			},
			{
				ID:          "storage.get",
				Name:        "Get Value",
				Description: "Retrieve a value by key",
				Parameters: []types.Parameter{
					{Name: "key", Type: "string", Description: "Storage key", Required: true},
				},
				Returns: "any",
			},
			{
				ID:          "storage.remove",
				Name:        "Remove Value",
				Description: "Delete a key and its value",
				Parameters: []types.Parameter{
					{Name: "key", Type: "string", Description: "Storage key", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "storage.list",
				Name:        "List Keys",
				Description: "List all keys in this fragment's scope",
				Parameters:  []types.Parameter{},
				Returns:     "array",
			},
			{
				ID:          "storage.clear",
				Name:        "Clear Scope",
				Description: "Remove every key in this fragment's scope",
				Parameters:  []types.Parameter{},
				Returns:     "boolean",
			},
		},
	}
}

// Execute runs a storage operation
func (p *Provider) Execute(ctx context.Context, toolID string, params map[string]interface{}, fragCtx *types.Context) (*types.Result, error) {
	scope := scopeFor(fragCtx)

	switch toolID {
	case "storage.set":
		return p.set(scope, params)
	case "storage.get":
		return p.get(scope, params)
	case "storage.remove":
		return p.remove(scope, params)
	case "storage.list":
		return p.list(scope)
	case "storage.clear":
		return p.clear(scope)
	default:
		return failure(fmt.Sprintf("unknown tool: %s", toolID))
	}
}

func (p *Provider) set(scope string, params map[string]interface{}) (*types.Result, error) {
	key, ok := params["key"].(string)
	if !ok || key == "" {
		return failure("key required")
	}
	value, ok := params["value"]
	if !ok {
		return failure("value required")
	}

	var expiresAt int64
	if ttl, ok := params["ttl_ms"].(float64); ok && ttl > 0 {
		expiresAt = time.Now().UnixMilli() + int64(ttl)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := p.load(scope)
	if err != nil {
		return failure(err.Error())
	}
	data[key] = entry{Value: value, ExpiresAt: expiresAt}
	if err := p.persist(scope, data); err != nil {
		return failure(err.Error())
	}

	return success(map[string]interface{}{"stored": true, "key": key})
}

func (p *Provider) get(scope string, params map[string]interface{}) (*types.Result, error) {
	key, ok := params["key"].(string)
	if !ok || key == "" {
		return failure("key required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := p.load(scope)
	if err != nil {
		return failure(err.Error())
	}
	e, exists := data[key]
	if exists && e.expired(time.Now().UnixMilli()) {
		delete(data, key)
		if err := p.persist(scope, data); err != nil {
			return failure(err.Error())
		}
		exists = false
	}
	if !exists {
		return failure(fmt.Sprintf("key not found: %s", key))
	}

	return success(map[string]interface{}{"key": key, "value": e.Value})
}

func (p *Provider) remove(scope string, params map[string]interface{}) (*types.Result, error) {
	key, ok := params["key"].(string)
	if !ok || key == "" {
		return failure("key required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := p.load(scope)
	if err != nil {
		return failure(err.Error())
	}
	_, existed := data[key]
	delete(data, key)
	if err := p.persist(scope, data); err != nil {
		return failure(err.Error())
	}

	return success(map[string]interface{}{"removed": existed, "key": key})
}

func (p *Provider) list(scope string) (*types.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := p.load(scope)
	if err != nil {
		return failure(err.Error())
	}

	now := time.Now().UnixMilli()
	keys := make([]string, 0, len(data))
	for k, e := range data {
		if e.expired(now) {
			delete(data, k)
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return success(map[string]interface{}{"keys": keys, "count": len(keys)})
}

func (p *Provider) clear(scope string) (*types.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.scopes[scope] = make(map[string]entry)
	if err := os.Remove(p.path(scope)); err != nil && !os.IsNotExist(err) {
		return failure(err.Error())
	}

	return success(map[string]interface{}{"cleared": true})
}

// load returns the live map for scope, reading it from disk on first touch.
// Callers hold p.mu.
func (p *Provider) load(scope string) (map[string]entry, error) {
	if data, ok := p.scopes[scope]; ok {
		return data, nil
	}

	data := make(map[string]entry)
	raw, err := os.ReadFile(p.path(scope))
	if err == nil {
		if err := sonic.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("corrupt storage scope %s: %w", scope, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	p.scopes[scope] = data
	return data, nil
}

func (p *Provider) persist(scope string, data map[string]entry) error {
	raw, err := sonic.Marshal(data)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(p.dir, "scope-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p.path(scope))
}

func (p *Provider) path(scope string) string {
	return filepath.Join(p.dir, scope+".json")
}

// scopeFor derives the storage scope from the fragment context. Calls with
// no fragment share one scope.
func scopeFor(fragCtx *types.Context) string {
	if fragCtx == nil || fragCtx.FragmentID == nil || *fragCtx.FragmentID == "" {
		return "shared"
	}
	scope := *fragCtx.FragmentID
	scope = strings.ReplaceAll(scope, string(filepath.Separator), "_")
	return scope
}

func success(data map[string]interface{}) (*types.Result, error) {
	return &types.Result{Success: true, Data: data}, nil
}

func failure(message string) (*types.Result, error) {
	errMsg := message
	return &types.Result{Success: false, Error: &errMsg}, fmt.Errorf("%s", message)
}
