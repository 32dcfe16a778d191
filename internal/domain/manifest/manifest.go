package manifest

import (
	"fmt"
	"strings"

	"github.com/vitrinehq/vitrine/internal/shared/utils"
)

// Manifest is the root structure of a fragment manifest
type Manifest struct {
	Fragment Identity      `json:"fragment" toml:"fragment"`
	Code     string        `json:"code,omitempty" toml:"code,omitempty"`
	Bundle   *BundleRef    `json:"bundle,omitempty" toml:"bundle,omitempty"`
	Services []interface{} `json:"services,omitempty" toml:"services,omitempty"`
	Limits   *Limits       `json:"limits,omitempty" toml:"limits,omitempty"`
}

// Identity names and describes the fragment
type Identity struct {
	Name        string   `json:"name" toml:"name"`
	Version     string   `json:"version" toml:"version"`
	Author      string   `json:"author,omitempty" toml:"author,omitempty"`
	Description string   `json:"description,omitempty" toml:"description,omitempty"`
	Tags        []string `json:"tags,omitempty" toml:"tags,omitempty"`
}

// BundleRef points at remote fragment code pinned by digest
type BundleRef struct {
	URL    string `json:"url" toml:"url"`
	Digest string `json:"digest" toml:"digest"`
}

// Limits overrides the per-fragment execution budgets, in milliseconds.
// Zero values fall back to server configuration.
type Limits struct {
	ExecTimeoutMS int64 `json:"exec_timeout_ms,omitempty" toml:"exec_timeout_ms,omitempty"`
	OpTimeoutMS   int64 `json:"op_timeout_ms,omitempty" toml:"op_timeout_ms,omitempty"`
	ToolTimeoutMS int64 `json:"tool_timeout_ms,omitempty" toml:"tool_timeout_ms,omitempty"`
}

// Grant is one expanded service entry
type Grant struct {
	Service  string
	Tools    []string
	AllowAll bool
}

// Validate checks required fields and the code/bundle choice
func (m *Manifest) Validate() error {
	if m.Fragment.Name == "" {
		return fmt.Errorf("fragment.name is required")
	}
	if m.Fragment.Version == "" {
		return fmt.Errorf("fragment.version is required")
	}
	if m.Code == "" && m.Bundle == nil {
		return fmt.Errorf("code or bundle is required")
	}
	if m.Code != "" && m.Bundle != nil {
		return fmt.Errorf("code and bundle are mutually exclusive")
	}
	if m.Bundle != nil {
		if m.Bundle.URL == "" {
			return fmt.Errorf("bundle.url is required")
		}
		if m.Bundle.Digest == "" {
			return fmt.Errorf("bundle.digest is required")
		}
		if _, err := utils.ParseDigest(m.Bundle.Digest); err != nil {
			return fmt.Errorf("bundle.digest: %w", err)
		}
	}
	if _, err := m.Grants(); err != nil {
		return err
	}
	return nil
}

// ServiceNames lists the granted services in manifest order
func (m *Manifest) ServiceNames() ([]string, error) {
	grants, err := m.Grants()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(grants))
	for _, g := range grants {
		names = append(names, g.Service)
	}
	return names, nil
}

// Grants expands the services union into grant entries.
// Supports: "storage", {storage: [get, set]}, {storage: "*"}
func (m *Manifest) Grants() ([]Grant, error) {
	grants := make([]Grant, 0, len(m.Services))

	for i, svc := range m.Services {
		switch v := svc.(type) {
		case string:
			// Bare service name: every tool allowed
			if v == "" {
				return nil, fmt.Errorf("services[%d]: empty service name", i)
			}
			grants = append(grants, Grant{Service: v, AllowAll: true})

		case map[string]interface{}:
			for service, value := range v {
				grant := Grant{Service: service}

				switch tools := value.(type) {
				case string:
					if tools != "*" {
						return nil, fmt.Errorf("services[%d].%s: %q is not a grant", i, service, tools)
					}
					grant.AllowAll = true
				case []interface{}:
					names := make([]string, 0, len(tools))
					for _, tool := range tools {
						name, ok := tool.(string)
						if !ok {
							return nil, fmt.Errorf("services[%d].%s: tool names must be strings", i, service)
						}
						names = append(names, qualify(service, name))
					}
					grant.Tools = names
				default:
					return nil, fmt.Errorf("services[%d].%s: unsupported grant %T", i, service, value)
				}

				grants = append(grants, grant)
			}

		default:
			return nil, fmt.Errorf("services[%d]: unsupported entry %T", i, svc)
		}
	}

	return grants, nil
}

// Allowlist resolves grants against a catalog of service tool ids into the
// concrete tool set the fragment may call. Grants for services absent from
// the catalog contribute nothing.
func (m *Manifest) Allowlist(catalog map[string][]string) ([]string, error) {
	grants, err := m.Grants()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	allowed := make([]string, 0)

	for _, grant := range grants {
		if grant.AllowAll {
			for _, tool := range catalog[grant.Service] {
				if _, dup := seen[tool]; !dup {
					seen[tool] = struct{}{}
					allowed = append(allowed, tool)
				}
			}
			continue
		}
		for _, tool := range grant.Tools {
			if _, dup := seen[tool]; !dup {
				seen[tool] = struct{}{}
				allowed = append(allowed, tool)
			}
		}
	}

	return allowed, nil
}

// qualify turns a short tool name into "service.tool"; names already
// carrying a dot pass through
func qualify(service, tool string) string {
	if strings.Contains(tool, ".") {
		return tool
	}
	return service + "." + tool
}
