package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// HashAlgorithm represents the hashing algorithm to use
type HashAlgorithm string

const (
	SHA256  HashAlgorithm = "sha256"
	BLAKE2B HashAlgorithm = "blake2b"
)

// Hasher provides extensible hashing functionality
type Hasher struct {
	algorithm HashAlgorithm
}

// NewHasher creates a new hasher with the specified algorithm
func NewHasher(algorithm HashAlgorithm) *Hasher {
	return &Hasher{
		algorithm: algorithm,
	}
}

// DefaultHasher returns a hasher with the default algorithm
func DefaultHasher() *Hasher {
	return NewHasher(BLAKE2B)
}

// Hash computes a hash of the input data
func (h *Hasher) Hash(data []byte) string {
	switch h.algorithm {
	case SHA256:
		hash := sha256.Sum256(data)
		return hex.EncodeToString(hash[:])
	case BLAKE2B:
		hash := blake2b.Sum256(data)
		return hex.EncodeToString(hash[:])
	default:
		hash := blake2b.Sum256(data)
		return hex.EncodeToString(hash[:])
	}
}

// HashString computes a hash of a string
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}

// HashJSON computes a hash of a JSON-serializable object
// The hash is deterministic (same object = same hash)
func (h *Hasher) HashJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return h.Hash(data), nil
}

// HashFields computes a hash from multiple fields
// Fields are concatenated with a delimiter for consistent hashing
func (h *Hasher) HashFields(fields ...string) string {
	sorted := make([]string, len(fields))
	copy(sorted, fields)
	sort.Strings(sorted)

	combined := strings.Join(sorted, "|")
	return h.HashString(combined)
}

// Digest is a named content hash in "algorithm:hex" form, the format
// bundle manifests use to pin fragment code.
type Digest struct {
	Algorithm HashAlgorithm
	Hex       string
}

// ParseDigest parses an "algorithm:hex" digest string
func ParseDigest(s string) (Digest, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Digest{}, fmt.Errorf("invalid digest %q (want algorithm:hex)", s)
	}

	algo := HashAlgorithm(strings.ToLower(parts[0]))
	switch algo {
	case SHA256, BLAKE2B:
	default:
		return Digest{}, fmt.Errorf("unsupported digest algorithm %q", parts[0])
	}

	if _, err := hex.DecodeString(parts[1]); err != nil {
		return Digest{}, fmt.Errorf("invalid digest hex: %w", err)
	}

	return Digest{Algorithm: algo, Hex: strings.ToLower(parts[1])}, nil
}

// String renders the digest in "algorithm:hex" form
func (d Digest) String() string {
	return fmt.Sprintf("%s:%s", d.Algorithm, d.Hex)
}

// Verify checks data against the digest
func (d Digest) Verify(data []byte) bool {
	return NewHasher(d.Algorithm).Hash(data) == d.Hex
}

// DigestOf computes a digest of data with the given algorithm
func DigestOf(algorithm HashAlgorithm, data []byte) Digest {
	return Digest{Algorithm: algorithm, Hex: NewHasher(algorithm).Hash(data)}
}
