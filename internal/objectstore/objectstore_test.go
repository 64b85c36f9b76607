package objectstore

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtForMime(t *testing.T) {
	cases := map[string]string{
		"image/png":     "png",
		"image/jpeg":    "jpg",
		"image/jpg":     "jpg",
		"image/webp":    "webp",
		"application/x": "bin",
		"":              "bin",
	}
	for mime, want := range cases {
		assert.Equal(t, want, ExtForMime(mime), "mime %q", mime)
	}
}

func TestBuildKey(t *testing.T) {
	when := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	got := BuildKey("shengchengtu/", when, "abc-123", "png")
	assert.Equal(t, "shengchengtu/2026/03/05/abc-123.png", got)
}

func TestPercentEncodeKey_PreservesSlashes(t *testing.T) {
	got := percentEncodeKey("cankaotu/2026/03/05/a b.png")
	assert.Equal(t, "cankaotu/2026/03/05/a%20b.png", got)
}

func TestDecodeImagePayload_PlainBase64(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("hello"))
	data, err := DecodeImagePayload(payload)
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestDecodeImagePayload_DataURLPrefix(t *testing.T) {
	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("hello"))
	data, err := DecodeImagePayload(payload)
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestDecodeImagePayload_InvalidBase64(t *testing.T) {
	_, err := DecodeImagePayload("not-base64!!!")
	assert.Error(t, err)
}
