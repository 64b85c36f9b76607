package executor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// normalizedImage is the internal funneled form every reference-image
// input variant collapses to before it reaches the upstream call.
type normalizedImage struct {
	MimeType string
	Base64   string
}

type refImageFetcher struct {
	httpClient   *http.Client
	allowedHosts []string
	allowHTTP    bool
	maxBytes     int64
}

func newRefImageFetcher(allowedHosts []string, allowHTTP bool, maxBytes int64) *refImageFetcher {
	return &refImageFetcher{
		httpClient:   &http.Client{Timeout: 20 * time.Second},
		allowedHosts: allowedHosts,
		allowHTTP:    allowHTTP,
		maxBytes:     maxBytes,
	}
}

// normalize accepts one entry from the polymorphic images array: a string,
// or an object with uri|url|href, or an object carrying inline data.
func (f *refImageFetcher) normalize(raw json.RawMessage) (*normalizedImage, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return f.normalizeString(asString)
	}

	var asObject struct {
		URI      string `json:"uri"`
		URL      string `json:"url"`
		Href     string `json:"href"`
		Data     string `json:"data"`
		MimeType string `json:"mimeType"`
	}
	if err := json.Unmarshal(raw, &asObject); err != nil {
		return nil, fmt.Errorf("REF_IMAGE_INVALID: not a recognized reference image shape")
	}

	if link := firstNonEmpty(asObject.URI, asObject.URL, asObject.Href); link != "" {
		img, err := f.normalizeString(link)
		if err != nil {
			return nil, err
		}
		if asObject.MimeType != "" {
			img.MimeType = asObject.MimeType
		}
		return img, nil
	}

	if asObject.Data != "" {
		if looksLikeHTTPURL(asObject.Data) {
			return nil, fmt.Errorf("REF_IMAGE_INVALID: inline data field contains a URL, not base64")
		}
		mime := asObject.MimeType
		if mime == "" {
			mime = "image/png"
		}
		if _, err := base64.StdEncoding.DecodeString(stripDataPrefix(asObject.Data)); err != nil {
			return nil, fmt.Errorf("REF_IMAGE_INVALID: malformed base64 payload: %w", err)
		}
		return &normalizedImage{MimeType: mime, Base64: stripDataPrefix(asObject.Data)}, nil
	}

	return nil, fmt.Errorf("REF_IMAGE_INVALID: no uri/url/href/data field present")
}

func (f *refImageFetcher) normalizeString(s string) (*normalizedImage, error) {
	if strings.HasPrefix(s, "data:") {
		mime, data, err := parseDataURL(s)
		if err != nil {
			return nil, fmt.Errorf("REF_IMAGE_INVALID: %w", err)
		}
		return &normalizedImage{MimeType: mime, Base64: data}, nil
	}
	if looksLikeHTTPURL(s) {
		return f.fetch(s)
	}
	return nil, fmt.Errorf("REF_IMAGE_INVALID: unrecognized string form, expected data: or http(s):// URL")
}

func (f *refImageFetcher) fetch(rawURL string) (*normalizedImage, error) {
	if strings.HasPrefix(rawURL, "http://") && !f.allowHTTP {
		return nil, fmt.Errorf("REF_IMAGE_INVALID: REF_IMAGE_PLAIN_HTTP_NOT_ALLOWED")
	}
	if len(f.allowedHosts) > 0 && !hostAllowed(rawURL, f.allowedHosts) {
		return nil, fmt.Errorf("REF_IMAGE_INVALID: REF_IMAGE_HOST_NOT_ALLOWED")
	}

	req, err := http.NewRequest("GET", rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("REF_IMAGE_INVALID: failed to build fetch request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("REF_IMAGE_INVALID: fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("REF_IMAGE_INVALID: fetch returned status %d", resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	if f.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("REF_IMAGE_INVALID: failed to read fetch body: %w", err)
	}
	if f.maxBytes > 0 && int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("REF_IMAGE_INVALID: REF_IMAGE_TOO_LARGE")
	}

	mime := resp.Header.Get("Content-Type")
	if idx := strings.Index(mime, ";"); idx != -1 {
		mime = mime[:idx]
	}
	if mime == "" {
		mime = "image/png"
	}

	return &normalizedImage{MimeType: mime, Base64: base64.StdEncoding.EncodeToString(body)}, nil
}

func parseDataURL(s string) (mime string, data string, err error) {
	rest := strings.TrimPrefix(s, "data:")
	comma := strings.Index(rest, ",")
	if comma == -1 {
		return "", "", fmt.Errorf("malformed data URL")
	}
	header := rest[:comma]
	payload := rest[comma+1:]
	mime = strings.TrimSuffix(header, ";base64")
	if mime == "" {
		mime = "image/png"
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return "", "", fmt.Errorf("malformed base64 payload: %w", err)
	}
	return mime, payload, nil
}

func stripDataPrefix(s string) string {
	if idx := strings.Index(s, ","); idx != -1 && strings.HasPrefix(s, "data:") {
		return s[idx+1:]
	}
	return s
}

func looksLikeHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func hostAllowed(rawURL string, allowed []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	for _, h := range allowed {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
