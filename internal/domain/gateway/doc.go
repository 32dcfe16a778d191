// Package gateway mediates privileged tool calls from rendered fragments.
//
// A fragment's UI runs with no ambient capabilities; anything privileged
// arrives here as a tool message carrying a toolName, params, and a
// messageId. The gateway checks the fragment's allowlist before anything
// else: a tool outside it is refused without ever reaching the engine.
// Allowed calls are delegated and answered with a ui-message-response
// envelope correlated by messageId.
//
// Each gateway owns a pending table so every call settles exactly once,
// whether by engine result, timeout, or Close.
package gateway
