// Package testutil provides shared helpers for integration and unit tests.
package testutil

import (
	"testing"
	"time"

	"github.com/vitrinehq/vitrine/internal/domain/fragment"
	"github.com/vitrinehq/vitrine/internal/domain/manifest"
	"github.com/vitrinehq/vitrine/internal/domain/protocol"
	"github.com/vitrinehq/vitrine/internal/domain/sandbox"
	"github.com/vitrinehq/vitrine/internal/domain/security"
	"github.com/vitrinehq/vitrine/internal/providers"
	"github.com/vitrinehq/vitrine/internal/service"
)

// NewRegistry builds a service registry with the full provider set rooted
// at a per-test temp directory.
func NewRegistry(t *testing.T) *service.Registry {
	t.Helper()

	registry := service.NewRegistry()
	if err := providers.RegisterAll(registry, t.TempDir()); err != nil {
		t.Fatalf("provider registration failed: %v", err)
	}
	return registry
}

// NewFragmentManager builds a fragment manager around a fresh registry,
// with short timeouts suitable for tests. Fragments are closed on cleanup.
func NewFragmentManager(t *testing.T) (*fragment.Manager, *service.Registry) {
	t.Helper()

	registry := NewRegistry(t)

	cfg := sandbox.DefaultConfig()
	cfg.ExecTimeout = 3 * time.Second
	cfg.OpTimeout = 2 * time.Second
	cfg.Gate = security.MustNew()

	mgr := fragment.NewManager(registry, nil, fragment.Defaults{
		Sandbox:     cfg,
		ToolTimeout: 3 * time.Second,
	})
	t.Cleanup(func() { mgr.CloseAll() })
	return mgr, registry
}

// InlineManifest returns a valid manifest carrying inline code and the
// given service grants.
func InlineManifest(name, code string, services ...interface{}) *manifest.Manifest {
	return &manifest.Manifest{
		Fragment: manifest.Identity{
			Name:    name,
			Version: "1.0.0",
			Author:  "tests",
		},
		Code:     code,
		Services: services,
	}
}

// ToolCall builds a rendered-UI tool call envelope.
func ToolCall(messageID, tool string, params map[string]interface{}) protocol.ToolCall {
	return protocol.ToolCall{
		Type:      protocol.MessageTool,
		MessageID: messageID,
		Payload: protocol.ToolPayload{
			ToolName: tool,
			Params:   params,
		},
	}
}

// CollectOps drains the operation stream until it has n operations or the
// timeout passes.
func CollectOps(t *testing.T, stream <-chan protocol.Operation, n int, timeout time.Duration) []protocol.Operation {
	t.Helper()

	ops := make([]protocol.Operation, 0, n)
	deadline := time.After(timeout)
	for len(ops) < n {
		select {
		case op := <-stream:
			ops = append(ops, op)
		case <-deadline:
			t.Fatalf("timed out with %d/%d operations", len(ops), n)
		}
	}
	return ops
}
