package types

// SpawnRequest represents a fragment creation request.
// Exactly one of Manifest (inline JSON) or ManifestTOML must be set.
// Code carries the fragment script inline; BundleURL points at a remote
// bundle fetched and verified by the bundle pipeline instead.
type SpawnRequest struct {
	Manifest     map[string]interface{} `json:"manifest,omitempty"`
	ManifestTOML string                 `json:"manifest_toml,omitempty"`
	Code         string                 `json:"code,omitempty"`
	BundleURL    string                 `json:"bundle_url,omitempty"`
	BundleDigest string                 `json:"bundle_digest,omitempty"`
}

// ExecuteRequest represents a script execution request against a live fragment
type ExecuteRequest struct {
	Code string `json:"code" binding:"required"`
}

// ToolRequest represents a direct tool execution request (HTTP surface;
// the rendered UI uses the websocket tool-call envelope instead)
type ToolRequest struct {
	ToolID     string                 `json:"tool_id" binding:"required"`
	Params     map[string]interface{} `json:"params" binding:"required"`
	FragmentID *string                `json:"fragment_id,omitempty"`
}
