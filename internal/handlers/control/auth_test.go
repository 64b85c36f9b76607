package control

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestDigestMatches_RoundTrip(t *testing.T) {
	digest := sha256Hex("hunter2")
	hash, err := HashPasswordDigest(digest)
	assert.NoError(t, err)

	assert.True(t, digestMatches(digest, hash))
	assert.False(t, digestMatches(sha256Hex("wrong"), hash))
}

func TestDigestMatches_RejectsNonHexInput(t *testing.T) {
	hash, _ := HashPasswordDigest(sha256Hex("hunter2"))
	assert.False(t, digestMatches("hunter2", hash))
}

func TestIsHexSHA256(t *testing.T) {
	assert.True(t, isHexSHA256(sha256Hex("anything")))
	assert.False(t, isHexSHA256("too-short"))
	assert.False(t, isHexSHA256(""))
}
