package executor

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_DataURLString(t *testing.T) {
	f := newRefImageFetcher(nil, false, 0)
	payload := base64.StdEncoding.EncodeToString([]byte("pixels"))
	raw := json.RawMessage(`"data:image/jpeg;base64,` + payload + `"`)

	img, err := f.normalize(raw)
	assert.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MimeType)
	assert.Equal(t, payload, img.Base64)
}

func TestNormalize_InlineDataObject(t *testing.T) {
	f := newRefImageFetcher(nil, false, 0)
	payload := base64.StdEncoding.EncodeToString([]byte("pixels"))
	raw, _ := json.Marshal(map[string]string{"data": payload, "mimeType": "image/webp"})

	img, err := f.normalize(raw)
	assert.NoError(t, err)
	assert.Equal(t, "image/webp", img.MimeType)
	assert.Equal(t, payload, img.Base64)
}

func TestNormalize_InlineDataDefaultsMime(t *testing.T) {
	f := newRefImageFetcher(nil, false, 0)
	payload := base64.StdEncoding.EncodeToString([]byte("pixels"))
	raw, _ := json.Marshal(map[string]string{"data": payload})

	img, err := f.normalize(raw)
	assert.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)
}

func TestNormalize_RejectsUnrecognizedShape(t *testing.T) {
	f := newRefImageFetcher(nil, false, 0)
	raw := json.RawMessage(`{"foo":"bar"}`)

	_, err := f.normalize(raw)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "REF_IMAGE_INVALID")
}

func TestNormalize_RejectsMalformedBase64InObject(t *testing.T) {
	f := newRefImageFetcher(nil, false, 0)
	raw, _ := json.Marshal(map[string]string{"data": "not-base64!!!"})

	_, err := f.normalize(raw)
	assert.Error(t, err)
}

func TestFetch_RejectsPlainHTTPWhenNotAllowed(t *testing.T) {
	f := newRefImageFetcher(nil, false, 0)
	_, err := f.fetch("http://example.com/a.png")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "REF_IMAGE_PLAIN_HTTP_NOT_ALLOWED")
}

func TestFetch_RejectsDisallowedHost(t *testing.T) {
	f := newRefImageFetcher([]string{"allowed.example.com"}, true, 0)
	_, err := f.fetch("https://evil.example.com/a.png")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "REF_IMAGE_HOST_NOT_ALLOWED")
}

func TestHostAllowed_RejectsAllowedHostEmbeddedInPathOrQuery(t *testing.T) {
	allowed := []string{"trusted.example"}
	assert.False(t, hostAllowed("https://evil.com/x?ref=.trusted.example", allowed))
	assert.False(t, hostAllowed("https://evil.com/.trusted.example", allowed))
	assert.False(t, hostAllowed("https://eviltrusted.example/x", allowed))
}

func TestHostAllowed_MatchesExactOrSubdomain(t *testing.T) {
	allowed := []string{"trusted.example"}
	assert.True(t, hostAllowed("https://trusted.example/a.png", allowed))
	assert.True(t, hostAllowed("https://cdn.trusted.example/a.png", allowed))
}

func TestFetch_EnforcesMaxBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(make([]byte, 1024))
	}))
	defer server.Close()

	f := newRefImageFetcher(nil, true, 16)
	_, err := f.fetch(server.URL)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "REF_IMAGE_TOO_LARGE")
}

func TestFetch_SucceedsWithinLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png; charset=binary")
		w.Write([]byte("small"))
	}))
	defer server.Close()

	f := newRefImageFetcher(nil, true, 1024)
	img, err := f.fetch(server.URL)
	assert.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("small")), img.Base64)
}
