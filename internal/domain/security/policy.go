package security

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Policy is the on-disk rule override format.
// Block entries extend the default list; Allow entries are exempted from it.
type Policy struct {
	Block []string `yaml:"block"`
	Allow []string `yaml:"allow"`
}

// LoadPolicy reads a YAML policy file
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}

	return &p, nil
}

// Validator compiles the policy on top of the default blocklist
func (p *Policy) Validator() (*Validator, error) {
	return New(WithExtra(p.Block...), WithExempt(p.Allow...))
}

// FromPolicyFile builds a validator from a policy file path.
// An empty path yields the compiled-in defaults.
func FromPolicyFile(path string) (*Validator, error) {
	if path == "" {
		return New()
	}

	policy, err := LoadPolicy(path)
	if err != nil {
		return nil, err
	}
	return policy.Validator()
}
