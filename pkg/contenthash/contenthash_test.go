package contenthash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSum_Deterministic(t *testing.T) {
	a := Sum([]byte("hello group"))
	b := SumString("hello group")
	assert.Equal(t, a, b)
	assert.True(t, Valid(a))
}

func TestSum_DistinctInputsDistinctDigests(t *testing.T) {
	assert.NotEqual(t, SumString("message one"), SumString("message two"))
}

func TestValid(t *testing.T) {
	digest := SumString("anything")

	assert.True(t, Valid(digest))
	assert.False(t, Valid(""), "empty")
	assert.False(t, Valid(digest[:10]), "too short")
	assert.False(t, Valid(digest+"ab"), "too long")
	assert.False(t, Valid(strings.Repeat("z", Size*2)), "not hex")
	// Raw plaintext padded to digest length must still be rejected.
	assert.False(t, Valid(strings.Repeat("hi there", 8)), "plaintext shaped input")
}
