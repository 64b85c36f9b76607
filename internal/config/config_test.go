package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int64(86400), cfg.TokenTTLSeconds)
	assert.Equal(t, "gemini/", cfg.KeyPrefix)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, 1, cfg.MaxImagesPerResponse)
	assert.Nil(t, cfg.VertexProjectIDs)
}

func TestLoad_ParsesPipeSeparatedLists(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("VERTEX_PROJECT_IDS", "proj-a | proj-b |proj-c")
	t.Setenv("ALLOW_REF_IMAGE_HOSTS", "cdn.example.com|img.example.com")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, []string{"proj-a", "proj-b", "proj-c"}, cfg.VertexProjectIDs)
	assert.Equal(t, []string{"cdn.example.com", "img.example.com"}, cfg.AllowRefImageHosts)
}

func TestNormalizeBaseURL(t *testing.T) {
	cases := map[string]string{
		"":                       "",
		"example.com":            "https://example.com",
		"http://example.com":     "https://example.com",
		"https://example.com/":   "https://example.com",
		"https://example.com///": "https://example.com",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeBaseURL(in), "input %q", in)
	}
}
