// Package pending provides request/response correlation for message boundaries.
//
// Both host boundaries (the sandbox channel and the rendered-UI tool channel)
// follow the same discipline: every outbound request registers an entry keyed
// by a unique id, and the entry is settled exactly once — by the matching
// response, by its own timeout, or by owner shutdown. The table guarantees
// the entry count returns to zero after every request completes or the owner
// terminates; nothing is silently dropped.
//
// Entries carry their own timers, so timeouts are independent per request.
// Settlement delivers an Outcome on a buffered channel, which keeps the
// demultiplexing loop from ever blocking on a slow caller.
package pending
