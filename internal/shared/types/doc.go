// Package types provides shared data structures for the fragment host.
//
// This package defines core types used across all host components,
// ensuring type safety and consistent data structures.
//
// Core Types:
//   - Fragment: Live fragment instance
//   - Service: Service provider definition
//   - Tool: Service tool specification
//   - Context: Execution scope for tool calls
//   - Result: Standard tool execution result
//
// Request Types:
//   - SpawnRequest: Fragment creation
//   - ExecuteRequest: Script execution against a live fragment
//
// State Management:
//   - State: Fragment state enum (spawning, active, closed)
//   - Stats: Host statistics
//
// Example Usage:
//
//	frag := &types.Fragment{
//	    ID:    string(id.NewFragmentID()),
//	    Title: "Weather Card",
//	    State: types.StateActive,
//	}
package types
