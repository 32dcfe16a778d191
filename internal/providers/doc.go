// Package providers implements the tool services exposed to fragments.
//
// Fragments run in a sandbox with no browser APIs. Every capability the
// blocklist takes away has a mediated replacement here, reached through
// the gateway's allowlist rather than ambient globals.
//
// Available Providers:
//   - Storage: Key-value persistence per fragment (localStorage replacement)
//   - HTTP: Outbound requests with retry and circuit breakers (fetch replacement)
//   - Clipboard: Shared clipboard with history
//   - System: Server environment info and logging (navigator replacement)
//   - Math: Statistics and dataset operations
//   - Content: HTML parsing with CSS selectors and XPath
//
// Provider Interface:
//   - Definition(): Returns service metadata and tool definitions
//   - Execute(): Executes a tool with parameters and fragment context
//
// Example Usage:
//
//	registry := service.NewRegistry()
//	providers.RegisterAll(registry, "/var/lib/vitrine/storage")
//	result, err := registry.Execute(ctx, "storage.get", params, fragCtx)
package providers
