// Package bundle fetches remote fragment code pinned by digest.
//
// A manifest may reference its code by URL instead of carrying it inline.
// The fetcher downloads the payload with retries behind a circuit breaker,
// verifies it against the manifest's digest before anything else looks at
// it, transparently decompresses gzip and zstd payloads, and normalizes
// the text to UTF-8. Verified payloads are cached on disk keyed by digest,
// so a fragment respawn never refetches.
package bundle
