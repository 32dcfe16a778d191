// Package ws provides the WebSocket transport between the host and a
// renderer.
//
// Each connection gets one session. A renderer attaches to fragments it
// renders, receives their operation streams, and routes rendered-UI tool
// calls back to the owning fragment's gateway.
//
// Message Types (Renderer → Host):
//   - attach: Subscribe to a fragment's operation stream
//   - detach: Unsubscribe from a fragment
//   - tool: Tool call envelope, forwarded to the fragment's gateway
//   - execute: Run code inside a fragment's sandbox
//   - event: Dispatch a user interaction to a registered listener
//   - ping: Keep-alive ping
//
// Message Types (Host → Renderer):
//   - connected: Session established, carries the session id
//   - attached / detached: Attachment lifecycle acknowledgements
//   - operations: Batch of DOM operations for one fragment
//   - closed: The fragment closed; its stream is finished
//   - ui-message-response: Tool call result or error
//   - executed / dispatched: Command acknowledgements
//   - pong: Keep-alive reply
//   - error: Request failed
//
// Outbound text and attribute values are scrubbed of markup before they
// leave the host.
//
// Example Usage:
//
//	handler := ws.NewHandler(fragments, logger)
//	router.GET("/stream", handler.HandleConnection)
package ws
