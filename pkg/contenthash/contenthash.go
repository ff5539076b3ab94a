// Package contenthash computes the opaque digest stored in the access log.
//
// The access log must never hold plaintext. Callers that decrypt a message for
// an AI feature hash the plaintext with Sum and hand only the digest to the
// logger. The digest is deterministic, so a later holder of the plaintext can
// re-derive it and verify which exact content was accessed.
package contenthash

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Size is the digest length in bytes.
const Size = 32

// Sum returns the lowercase hex BLAKE3-256 digest of content.
func Sum(content []byte) string {
	digest := blake3.Sum256(content)
	return hex.EncodeToString(digest[:])
}

// SumString hashes a string without forcing callers to copy to []byte at call sites.
func SumString(content string) string {
	return Sum([]byte(content))
}

// Valid reports whether s is a well-formed digest (hex, correct length).
func Valid(s string) bool {
	if len(s) != Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
