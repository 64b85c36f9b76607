package control

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateCode_Shape(t *testing.T) {
	code, err := generateCode()
	assert.NoError(t, err)
	assert.Len(t, code, 19) // 16 chars + 3 dashes

	groups := strings.Split(code, "-")
	assert.Len(t, groups, 4)
	for _, g := range groups {
		assert.Len(t, g, 4)
		for _, r := range g {
			assert.Contains(t, codeAlphabet, string(r))
		}
	}
}

func TestGenerateCode_Uniqueish(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		assert.NoError(t, err)
		assert.False(t, seen[code], "generateCode produced a repeat: %s", code)
		seen[code] = true
	}
}
