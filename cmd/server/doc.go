// Package main is the entry point for the vitrine fragment host.
//
// The server executes third-party UI fragments in isolated sandboxes,
// streams their DOM operations to a renderer over WebSocket, and mediates
// every privileged call through a per-fragment tool allowlist.
//
// Architecture:
//
//	Renderer (WebSocket/REST) → Host → Sandbox (embedded VM)
//	                                 → Tool providers (storage, http, ...)
//
// Configuration comes from environment variables (12-factor), with CLI
// flags as overrides and sane defaults for development.
//
// Usage:
//
//	# Production mode
//	./server -port 8000
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
//	# Custom security policy
//	./server -policy policy.yaml
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown; every fragment sandbox is
//     terminated and its pending requests rejected before exit
package main
