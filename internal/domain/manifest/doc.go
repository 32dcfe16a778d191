// Package manifest parses fragment manifests.
//
// A manifest declares a fragment's identity, where its code comes from
// (inline or a remote bundle), and which privileged tools it may call.
// Grants follow a compact union syntax: a bare service name grants every
// tool the service exposes, a service-to-list entry grants exactly those
// tools, and a service-to-"*" entry grants all of them explicitly.
//
// Manifests are accepted as TOML or JSON; the grant semantics are
// identical in both encodings.
package manifest
