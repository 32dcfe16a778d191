package types

import "time"

// State represents fragment lifecycle states
type State string

const (
	StateSpawning State = "spawning"
	StateActive   State = "active"
	StateClosed   State = "closed"
)

// Fragment represents a live, third-party UI fragment instance
type Fragment struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Version     string                 `json:"version,omitempty"`
	Author      string                 `json:"author,omitempty"`
	State       State                  `json:"state"`
	CreatedAt   time.Time              `json:"created_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	// Services the fragment's manifest was granted access to
	Services []string `json:"services"`

	// BundleDigest identifies the exact code bundle the fragment runs
	BundleDigest string `json:"bundle_digest,omitempty"`
}

// Stats contains fragment manager statistics
type Stats struct {
	TotalFragments  int `json:"total_fragments"`
	ActiveFragments int `json:"active_fragments"`
	TotalSpawned    int `json:"total_spawned"`
	PendingRequests int `json:"pending_requests"`
}
