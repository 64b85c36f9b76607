// Package downloadcache fronts the object-store origin with an edge
// cache for the public GET /i/<key> path: long-TTL Cache-Control,
// range-request passthrough, async population, grounded on the
// http.ServeContent-style origin-proxy pattern in BigKAA-goartstore's
// storage-element download service.
package downloadcache

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"imagegateway/internal/objectstore"
)

const cacheTTL = 24 * time.Hour

type cachedEntry struct {
	status  int
	headers http.Header
	body    []byte
}

type Proxy struct {
	objectStore *objectstore.Client
	httpClient  *http.Client
	cache       *lru.LRU[string, *cachedEntry]
}

func New(objectStore *objectstore.Client) *Proxy {
	return &Proxy{
		objectStore: objectStore,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		cache:       lru.NewLRU[string, *cachedEntry](512, nil, cacheTTL),
	}
}

// Serve handles GET|HEAD /i/<key>. Keys containing ".." are rejected.
// Range requests bypass the cache entirely in both directions.
func (p *Proxy) Serve(w http.ResponseWriter, r *http.Request, key string) {
	setCORSHeaders(w, r)

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if strings.Contains(key, "..") {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	isRange := r.Header.Get("Range") != ""

	if !isRange {
		if entry, ok := p.cache.Get(key); ok {
			writeEntry(w, entry)
			return
		}
	}

	originURL, authToken, err := p.objectStore.DownloadURL(key)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(err.Error()))
		return
	}

	req, err := http.NewRequest(r.Method, originURL, nil)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	req.Header.Set("Authorization", authToken)
	if isRange {
		req.Header.Set("Range", r.Header.Get("Range"))
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(err.Error()))
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	if resp.StatusCode != http.StatusOK {
		copyHeaders(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(body)
		return
	}

	resp.Header.Set("Cache-Control", "public, max-age=31536000, immutable")
	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)

	if !isRange {
		entry := &cachedEntry{status: http.StatusOK, headers: resp.Header.Clone(), body: body}
		go p.cache.Add(key, entry)
	}
}

func writeEntry(w http.ResponseWriter, entry *cachedEntry) {
	copyHeaders(w.Header(), entry.headers)
	w.WriteHeader(entry.status)
	_, _ = io.Copy(w, bytes.NewReader(entry.body))
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		if strings.EqualFold(k, "Access-Control-Allow-Origin") || strings.EqualFold(k, "Vary") {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Vary", "Origin")
	w.Header().Set("Access-Control-Expose-Headers", "Content-Range, Content-Length, Accept-Ranges")
}
