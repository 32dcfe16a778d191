// Package security provides the static code gate for fragment scripts.
//
// The validator scans raw source text for disallowed host-capability
// identifiers (window, document, fetch, ...) before any execution resource
// is allocated. Matching is whole-word and deliberately includes comments
// and string literals: over-blocking is acceptable, false negatives are not.
// An identifier that is a substring of a longer identifier never matches,
// so "windows" does not trip the "window" rule.
//
// The gate is defense in depth, not the sole guarantee. The sandbox runtime
// independently lacks these capabilities; the validator exists to reject
// hostile scripts cheaply and to produce a precise violation report.
//
// Deployments can extend or relax the rule set with a YAML policy file.
// The console identifier stays exempt by default as the one host-provided
// diagnostic capability.
package security
