// Package protocol defines the wire vocabulary crossing the host's two
// trust boundaries.
//
// Operations are the tagged union of DOM mutations a fragment can request.
// Each variant is keyed by its type field and addresses logical nodes by
// opaque string ids: the sandbox has no DOM, so node identity is purely an
// agreement between fragment script and renderer. The host transports
// operations without interpreting them.
//
// The sandbox boundary exchanges Request/Response envelopes correlated by
// id; the rendered-UI boundary exchanges ToolCall/ToolResponse envelopes
// correlated by messageId. The envelope payload is split into per-kind
// fields (code, operation, operations) rather than one untyped blob.
//
// Codec helpers use sonic and decode strictly: an operation with an unknown
// type tag or missing variant fields never reaches a boundary.
package protocol
