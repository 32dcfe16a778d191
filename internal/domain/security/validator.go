package security

import (
	"fmt"
	"regexp"
	"sort"
)

// identPattern constrains rule identifiers to word characters so the
// compiled word-boundary patterns behave as intended.
var identPattern = regexp.MustCompile(`^\w+$`)

// DefaultBlocklist returns the host capabilities fragment scripts may not
// reference. Copies are returned so callers can extend freely.
func DefaultBlocklist() []string {
	return []string{
		"window",
		"document",
		"localStorage",
		"sessionStorage",
		"fetch",
		"XMLHttpRequest",
		"WebSocket",
		"indexedDB",
		"openDatabase",
		"location",
		"navigator",
		"history",
	}
}

// ViolationError reports a disallowed identifier found in candidate code
type ViolationError struct {
	Identifier string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("security violation: disallowed identifier %q", e.Identifier)
}

type rule struct {
	identifier string
	pattern    *regexp.Regexp
}

// Validator is a pure text predicate over candidate scripts.
// It holds compiled per-identifier patterns and has no side effects.
type Validator struct {
	rules []rule
}

// Option configures a Validator
type Option func(*options)

type options struct {
	blocklist []string
	extra     []string
	exempt    []string
}

// WithBlocklist replaces the default identifier list entirely
func WithBlocklist(identifiers ...string) Option {
	return func(o *options) {
		o.blocklist = identifiers
	}
}

// WithExtra adds identifiers on top of the base list
func WithExtra(identifiers ...string) Option {
	return func(o *options) {
		o.extra = append(o.extra, identifiers...)
	}
}

// WithExempt removes identifiers from the final list
func WithExempt(identifiers ...string) Option {
	return func(o *options) {
		o.exempt = append(o.exempt, identifiers...)
	}
}

// New builds a validator. It fails when a rule identifier is not a plain
// word, since such a rule would silently never match.
func New(opts ...Option) (*Validator, error) {
	o := &options{blocklist: DefaultBlocklist()}
	for _, opt := range opts {
		opt(o)
	}

	exempt := make(map[string]bool, len(o.exempt))
	for _, e := range o.exempt {
		exempt[e] = true
	}

	seen := make(map[string]bool)
	identifiers := make([]string, 0, len(o.blocklist)+len(o.extra))
	for _, ident := range append(append([]string{}, o.blocklist...), o.extra...) {
		if exempt[ident] || seen[ident] {
			continue
		}
		seen[ident] = true
		identifiers = append(identifiers, ident)
	}
	sort.Strings(identifiers)

	v := &Validator{rules: make([]rule, 0, len(identifiers))}
	for _, ident := range identifiers {
		if !identPattern.MatchString(ident) {
			return nil, fmt.Errorf("invalid blocklist identifier %q", ident)
		}
		// Whole-word match anywhere in the source, comments and strings
		// included.
		pattern, err := regexp.Compile(`\b` + regexp.QuoteMeta(ident) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("compile rule for %q: %w", ident, err)
		}
		v.rules = append(v.rules, rule{identifier: ident, pattern: pattern})
	}

	return v, nil
}

// MustNew builds the default validator and panics on a bad rule set.
// Only the compiled-in defaults call this.
func MustNew(opts ...Option) *Validator {
	v, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate scans code and returns a *ViolationError naming the first
// disallowed identifier found, or nil when the code is clean.
func (v *Validator) Validate(code string) error {
	for _, r := range v.rules {
		if r.pattern.MatchString(code) {
			return &ViolationError{Identifier: r.identifier}
		}
	}
	return nil
}

// Identifiers lists the active rule identifiers in sorted order
func (v *Validator) Identifiers() []string {
	out := make([]string, len(v.rules))
	for i, r := range v.rules {
		out[i] = r.identifier
	}
	return out
}
