package security

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

func TestValidateBlockedIdentifiers(t *testing.T) {
	v := MustNew()

	tests := []struct {
		name string
		code string
		want string // expected identifier, "" for clean
	}{
		{"window access", "window.alert(1)", "window"},
		{"document access", "document.cookie", "document"},
		{"local storage", "localStorage.setItem('k','v')", "localStorage"},
		{"session storage", "sessionStorage.clear()", "sessionStorage"},
		{"fetch call", "fetch('https://example.com')", "fetch"},
		{"xhr", "new XMLHttpRequest()", "XMLHttpRequest"},
		{"websocket", "new WebSocket('wss://x')", "WebSocket"},
		{"indexeddb", "indexedDB.open('db')", "indexedDB"},
		{"websql", "openDatabase('db', '1', 'd', 1024)", "openDatabase"},
		{"location", "location.href = 'https://x'", "location"},
		{"navigator", "navigator.userAgent", "navigator"},
		{"history", "history.back()", "history"},
		{"clean code", "const x = 1 + 2; console.log(x)", ""},
		{"console exempt", "console.error('fine')", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.code)

			if tt.want == "" {
				if err != nil {
					t.Errorf("Expected clean, got %v", err)
				}
				return
			}

			var violation *ViolationError
			if !errors.As(err, &violation) {
				t.Fatalf("Expected ViolationError, got %v", err)
			}
			if violation.Identifier != tt.want {
				t.Errorf("Expected identifier %q, got %q", tt.want, violation.Identifier)
			}
		})
	}
}

func TestWordBoundaries(t *testing.T) {
	v := MustNew()

	// Substrings of longer identifiers never match
	clean := []string{
		"const windows = [1, 2]; console.log(windows)",
		"let windowsCount = 3",
		"myFetcher()",
		"const historyLog = []",
		"relocationTable.get(0)",
		"documentation.read()",
	}
	for _, code := range clean {
		if err := v.Validate(code); err != nil {
			t.Errorf("%q should be clean, got %v", code, err)
		}
	}

	// Whole words match even inside comments and string literals
	dirty := []string{
		"window.alert(1)",
		"// window is unavailable here",
		"const msg = 'window'",
		"a.b(window)",
		"window",
	}
	for _, code := range dirty {
		if err := v.Validate(code); err == nil {
			t.Errorf("%q should be rejected", code)
		}
	}
}

func TestViolationMessage(t *testing.T) {
	v := MustNew()

	err := v.Validate("window.alert(1)")
	if err == nil {
		t.Fatal("Expected violation")
	}

	pattern := regexp.MustCompile(`(?i)disallowed|security violation`)
	if !pattern.MatchString(err.Error()) {
		t.Errorf("Violation message %q should mention the violation", err.Error())
	}
}

func TestCustomRules(t *testing.T) {
	v, err := New(WithBlocklist("eval"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := v.Validate("window.alert(1)"); err != nil {
		t.Errorf("Replaced blocklist should not block window, got %v", err)
	}
	if err := v.Validate("eval('1+1')"); err == nil {
		t.Error("Custom rule should block eval")
	}

	v, err = New(WithExtra("crypto"), WithExempt("fetch"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := v.Validate("crypto.subtle.digest('SHA-256', buf)"); err == nil {
		t.Error("Extra rule should block crypto")
	}
	if err := v.Validate("fetch('https://x')"); err != nil {
		t.Errorf("Exempted fetch should pass, got %v", err)
	}
}

func TestInvalidIdentifier(t *testing.T) {
	if _, err := New(WithExtra("window.alert")); err == nil {
		t.Error("Non-word identifiers should be rejected at construction")
	}
}

func TestNoSideEffects(t *testing.T) {
	v := MustNew()

	code := "window.alert(1)"
	first := v.Validate(code)
	second := v.Validate(code)

	if first == nil || second == nil {
		t.Fatal("Both validations should reject")
	}
	if first.Error() != second.Error() {
		t.Error("Validation should be a pure predicate")
	}
}

func TestPolicyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")

	policy := []byte("block:\n  - eval\nallow:\n  - fetch\n")
	if err := os.WriteFile(path, policy, 0o644); err != nil {
		t.Fatalf("Write policy: %v", err)
	}

	v, err := FromPolicyFile(path)
	if err != nil {
		t.Fatalf("FromPolicyFile failed: %v", err)
	}

	if err := v.Validate("eval('x')"); err == nil {
		t.Error("Policy block entry should apply")
	}
	if err := v.Validate("fetch('https://x')"); err != nil {
		t.Errorf("Policy allow entry should exempt fetch, got %v", err)
	}
	if err := v.Validate("window.alert(1)"); err == nil {
		t.Error("Defaults should still apply under a policy")
	}
}

func TestFromPolicyFileDefaults(t *testing.T) {
	v, err := FromPolicyFile("")
	if err != nil {
		t.Fatalf("Empty path should yield defaults: %v", err)
	}

	if got := len(v.Identifiers()); got != len(DefaultBlocklist()) {
		t.Errorf("Expected %d rules, got %d", len(DefaultBlocklist()), got)
	}
}
