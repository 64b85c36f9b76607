package downloadcache

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"imagegateway/internal/objectstore"
)

func newTestProxy() *Proxy {
	return New(objectstore.New("key", "app", "bucket"))
}

func TestServe_RejectsNonGetNonHead(t *testing.T) {
	p := newTestProxy()
	req := httptest.NewRequest(http.MethodPost, "/i/foo.png", nil)
	w := httptest.NewRecorder()

	p.Serve(w, req, "foo.png")

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServe_RejectsDotDotInKey(t *testing.T) {
	p := newTestProxy()
	req := httptest.NewRequest(http.MethodGet, "/i/../etc/passwd", nil)
	w := httptest.NewRecorder()

	p.Serve(w, req, "../etc/passwd")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServe_SetsCORSHeadersEvenOnRejection(t *testing.T) {
	p := newTestProxy()
	req := httptest.NewRequest(http.MethodPost, "/i/foo.png", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()

	p.Serve(w, req, "foo.png")

	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
}

func TestServe_CacheHitBypassesOrigin(t *testing.T) {
	p := newTestProxy()
	p.cache.Add("cached.png", &cachedEntry{
		status:  http.StatusOK,
		headers: http.Header{"Content-Type": []string{"image/png"}},
		body:    []byte("cached-bytes"),
	})

	req := httptest.NewRequest(http.MethodGet, "/i/cached.png", nil)
	w := httptest.NewRecorder()

	p.Serve(w, req, "cached.png")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cached-bytes", w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
}
