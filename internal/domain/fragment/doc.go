// Package fragment orchestrates fragment lifecycle.
//
// A fragment is one isolated UI unit: its manifest names it and grants it
// tools, its code runs in a dedicated sandbox, and its privileged calls go
// through a dedicated gateway scoped to exactly those grants. The manager
// owns the id-to-instance registry and keeps the three parts in step:
// spawning boots the sandbox and runs the fragment's code, closing tears
// both down and settles everything in flight.
//
// Operations emitted by fragment code surface on a per-instance stream
// that the renderer transport consumes.
package fragment
