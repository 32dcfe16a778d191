// Package http provides HTTP handlers and routing for the vitrine REST API.
//
// This package implements all HTTP endpoints using the Gin framework,
// including health checks, fragment lifecycle, operation transport, tool
// execution, and the metrics snapshot.
//
// Endpoints:
//   - Health: / and /health
//   - Fragments: /fragments, /fragments/:id
//   - Fragment commands: /fragments/:id/execute, /fragments/:id/operation,
//     /fragments/:id/operations, /fragments/:id/events, /fragments/:id/tools
//   - Services: /services, /services/execute
//   - Observability: /stats, /logs
//
// Fragment tool calls (/fragments/:id/tools) pass through the fragment's
// gateway, so the manifest allowlist applies; /services/execute is the host
// surface and bypasses it.
//
// Example Usage:
//
//	handlers := http.NewHandlers(fragments, registry, logger)
//	router.GET("/health", handlers.Health)
//	router.POST("/fragments", handlers.SpawnFragment)
package http
