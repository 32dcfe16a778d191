package manifest

import (
	"bytes"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/pelletier/go-toml/v2"

	"github.com/vitrinehq/vitrine/internal/shared/utils"
)

// Parse decodes a manifest, detecting the encoding from the payload.
// Documents opening with a brace are JSON; everything else is TOML.
func Parse(content []byte) (*Manifest, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("manifest is empty")
	}
	if len(content) > utils.MaxManifestSize {
		return nil, fmt.Errorf("manifest exceeds %d bytes", utils.MaxManifestSize)
	}

	if bytes.HasPrefix(bytes.TrimSpace(content), []byte("{")) {
		return ParseJSON(content)
	}
	return ParseTOML(content)
}

// ParseJSON decodes and validates a JSON manifest
func ParseJSON(content []byte) (*Manifest, error) {
	var m Manifest
	if err := sonic.Unmarshal(content, &m); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// ParseTOML decodes and validates a TOML manifest
func ParseTOML(content []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(content, &m); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
