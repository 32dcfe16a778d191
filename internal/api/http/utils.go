package http

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/pelletier/go-toml/v2"

	"github.com/vitrinehq/vitrine/internal/domain/manifest"
	"github.com/vitrinehq/vitrine/internal/shared/types"
	"github.com/vitrinehq/vitrine/internal/shared/utils"
)

// decodeManifest assembles a manifest from a spawn request. Validation is
// deferred to the caller so that request-level overrides (inline code, a
// bundle URL) land before the code/bundle exclusivity check runs.
func decodeManifest(req types.SpawnRequest) (*manifest.Manifest, error) {
	if req.Manifest != nil && req.ManifestTOML != "" {
		return nil, fmt.Errorf("manifest and manifest_toml are mutually exclusive")
	}

	var mf manifest.Manifest
	switch {
	case req.Manifest != nil:
		raw, err := sonic.Marshal(req.Manifest)
		if err != nil {
			return nil, fmt.Errorf("failed to encode manifest: %w", err)
		}
		if err := sonic.Unmarshal(raw, &mf); err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
	case req.ManifestTOML != "":
		if len(req.ManifestTOML) > utils.MaxManifestSize {
			return nil, fmt.Errorf("manifest exceeds %d bytes", utils.MaxManifestSize)
		}
		if err := toml.Unmarshal([]byte(req.ManifestTOML), &mf); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("manifest or manifest_toml is required")
	}

	if req.Code != "" {
		mf.Code = req.Code
	}
	if req.BundleURL != "" {
		mf.Bundle = &manifest.BundleRef{URL: req.BundleURL, Digest: req.BundleDigest}
	}

	return &mf, nil
}

// parseState maps the ?state= query value onto a lifecycle state filter
func parseState(raw string) (*types.State, error) {
	if raw == "" {
		return nil, nil
	}
	state := types.State(raw)
	switch state {
	case types.StateSpawning, types.StateActive, types.StateClosed:
		return &state, nil
	}
	return nil, fmt.Errorf("unknown state %q", raw)
}
