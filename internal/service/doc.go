// Package service provides the tool service registry for Vitrine.
//
// The registry maintains a catalog of provider implementations and routes
// tool calls to them. Fragments never touch providers directly: the gateway
// checks the fragment's allowlist, then delegates to Registry.Execute.
//
// Components:
//   - Registry: Central service catalog
//   - Provider: Interface for service implementations
//   - Catalog: service -> tool IDs, consumed by manifest grant resolution
//
// Features:
//   - Thread-safe service registration
//   - Category-based filtering
//   - Tool execution with fragment context passing
//   - Optional per-tool metrics
//   - Service statistics and health
//
// Example Usage:
//
//	registry := service.NewRegistry().WithMetrics(metrics)
//	registry.Register(storage.NewProvider(dir))
//	result, err := registry.Execute(ctx, "storage.get", params, fragCtx)
package service
