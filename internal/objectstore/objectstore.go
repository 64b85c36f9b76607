// Package objectstore is a hand-rolled client for the B2-style native
// storage protocol: authorize, resolve bucket, obtain upload URL, upload
// with a SHA-1 content check. Built the way an existing
// REST client in this codebase talks an external API -- explicit
// http.NewRequest/Do, typed response structs, wrapped errors -- because
// the protocol has no Go SDK in this stack.
package objectstore

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"imagegateway/internal/metrics"
)

const (
	authTTL       = 23 * time.Hour
	uploadURLTTL  = 30 * time.Minute
	authorizeHost = "https://api.backblazeb2.com/b2api/v2/b2_authorize_account"
)

type Client struct {
	keyID      string
	appKey     string
	bucketName string
	httpClient *http.Client

	mu          sync.RWMutex
	auth        *authInfo
	authExpires time.Time
	bucketID    string

	uploadURLCache *lru.LRU[string, *uploadURLInfo]
}

type authInfo struct {
	AccountID      string   `json:"accountId"`
	AuthToken      string   `json:"authorizationToken"`
	APIURL         string   `json:"apiUrl"`
	DownloadURL    string   `json:"downloadUrl"`
	AllowedBuckets []bucket `json:"allowed"`
}

type bucket struct {
	BucketID   string `json:"bucketId"`
	BucketName string `json:"bucketName"`
}

type authorizeResponse struct {
	AccountID   string `json:"accountId"`
	AuthToken   string `json:"authorizationToken"`
	APIURL      string `json:"apiUrl"`
	DownloadURL string `json:"downloadUrl"`
	Allowed     struct {
		BucketID   string `json:"bucketId"`
		BucketName string `json:"bucketName"`
	} `json:"allowed"`
}

type uploadURLInfo struct {
	UploadURL   string
	UploadToken string
}

func New(keyID, appKey, bucketName string) *Client {
	return &Client{
		keyID:      keyID,
		appKey:     appKey,
		bucketName: bucketName,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		uploadURLCache: lru.NewLRU[string, *uploadURLInfo](8, nil, uploadURLTTL),
	}
}

// Authorize fetches and caches the account session for 23h.
func (c *Client) Authorize() (*authInfo, error) {
	c.mu.RLock()
	if c.auth != nil && time.Now().Before(c.authExpires) {
		a := c.auth
		c.mu.RUnlock()
		return a, nil
	}
	c.mu.RUnlock()

	info, err := c.authorizeRemote()
	if err != nil {
		metrics.ObjectStoreOperationsTotal.WithLabelValues("authorize", "error").Inc()
		return nil, err
	}
	metrics.ObjectStoreOperationsTotal.WithLabelValues("authorize", "success").Inc()
	return info, nil
}

func (c *Client) authorizeRemote() (*authInfo, error) {
	req, err := http.NewRequest("GET", authorizeHost, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build authorize request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.appKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to authorize: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read authorize response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("authorize failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var ar authorizeResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, fmt.Errorf("failed to decode authorize response: %w", err)
	}

	info := &authInfo{
		AccountID:   ar.AccountID,
		AuthToken:   ar.AuthToken,
		APIURL:      ar.APIURL,
		DownloadURL: ar.DownloadURL,
	}
	if ar.Allowed.BucketID != "" {
		info.AllowedBuckets = []bucket{{BucketID: ar.Allowed.BucketID, BucketName: ar.Allowed.BucketName}}
	}

	c.mu.Lock()
	c.auth = info
	c.authExpires = time.Now().Add(authTTL)
	c.mu.Unlock()

	return info, nil
}

// ResolveBucketID prefers the allow-list embedded in the auth response and
// caches the result indefinitely for the process lifetime.
func (c *Client) ResolveBucketID() (string, error) {
	c.mu.RLock()
	if c.bucketID != "" {
		id := c.bucketID
		c.mu.RUnlock()
		return id, nil
	}
	c.mu.RUnlock()

	auth, err := c.Authorize()
	if err != nil {
		return "", err
	}
	for _, b := range auth.AllowedBuckets {
		if b.BucketName == c.bucketName {
			c.mu.Lock()
			c.bucketID = b.BucketID
			c.mu.Unlock()
			return b.BucketID, nil
		}
	}

	id, err := c.listBuckets(auth)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.bucketID = id
	c.mu.Unlock()
	return id, nil
}

func (c *Client) listBuckets(auth *authInfo) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{
		"accountId":  auth.AccountID,
		"bucketName": c.bucketName,
	})
	req, err := http.NewRequest("POST", strings.TrimSuffix(auth.APIURL, "/")+"/b2api/v2/b2_list_buckets", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to build list_buckets request: %w", err)
	}
	req.Header.Set("Authorization", auth.AuthToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to list buckets: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read list_buckets response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("list_buckets failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var lr struct {
		Buckets []bucket `json:"buckets"`
	}
	if err := json.Unmarshal(body, &lr); err != nil {
		return "", fmt.Errorf("failed to decode list_buckets response: %w", err)
	}
	for _, b := range lr.Buckets {
		if b.BucketName == c.bucketName {
			return b.BucketID, nil
		}
	}
	return "", fmt.Errorf("bucket %q not found in allowed buckets", c.bucketName)
}

func (c *Client) getUploadURL(forceRefresh bool) (*uploadURLInfo, error) {
	bucketID, err := c.ResolveBucketID()
	if err != nil {
		return nil, err
	}

	if !forceRefresh {
		if info, ok := c.uploadURLCache.Get(bucketID); ok {
			return info, nil
		}
	} else {
		c.uploadURLCache.Remove(bucketID)
	}

	auth, err := c.Authorize()
	if err != nil {
		return nil, err
	}

	reqBody, _ := json.Marshal(map[string]string{"bucketId": bucketID})
	req, err := http.NewRequest("POST", strings.TrimSuffix(auth.APIURL, "/")+"/b2api/v2/b2_get_upload_url", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build get_upload_url request: %w", err)
	}
	req.Header.Set("Authorization", auth.AuthToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get upload url: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read get_upload_url response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get_upload_url failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var ur struct {
		UploadURL   string `json:"uploadUrl"`
		AuthToken   string `json:"authorizationToken"`
	}
	if err := json.Unmarshal(body, &ur); err != nil {
		return nil, fmt.Errorf("failed to decode get_upload_url response: %w", err)
	}

	info := &uploadURLInfo{UploadURL: ur.UploadURL, UploadToken: ur.AuthToken}
	c.uploadURLCache.Add(bucketID, info)
	return info, nil
}

// Upload sends bytes to the object store under key. If the first attempt
// fails for any reason, it drops the cached upload URL, fetches a fresh
// one, and retries once.
func (c *Client) Upload(key, mimeType string, data []byte, sha1Hex string) error {
	if err := c.upload(key, mimeType, data, sha1Hex); err != nil {
		metrics.ObjectStoreOperationsTotal.WithLabelValues("upload", "error").Inc()
		return err
	}
	metrics.ObjectStoreOperationsTotal.WithLabelValues("upload", "success").Inc()
	return nil
}

func (c *Client) upload(key, mimeType string, data []byte, sha1Hex string) error {
	info, err := c.getUploadURL(false)
	if err != nil {
		return err
	}

	err = c.doUpload(info, key, mimeType, data, sha1Hex)
	if err == nil {
		return nil
	}

	info, refreshErr := c.getUploadURL(true)
	if refreshErr != nil {
		return fmt.Errorf("upload failed (%v) and refresh failed: %w", err, refreshErr)
	}
	return c.doUpload(info, key, mimeType, data, sha1Hex)
}

func (c *Client) doUpload(info *uploadURLInfo, key, mimeType string, data []byte, sha1Hex string) error {
	req, err := http.NewRequest("POST", info.UploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Authorization", info.UploadToken)
	req.Header.Set("X-Bz-File-Name", percentEncodeKey(key))
	if mimeType == "" {
		mimeType = "b2/x-auto"
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("X-Bz-Content-Sha1", sha1Hex)
	req.ContentLength = int64(len(data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute upload: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload failed: status %d, body: %s", resp.StatusCode, string(body))
	}
	return nil
}

// percentEncodeKey percent-encodes each path segment while preserving '/'.
func percentEncodeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// DownloadURL returns the origin URL for a stored key.
func (c *Client) DownloadURL(key string) (string, string, error) {
	auth, err := c.Authorize()
	if err != nil {
		metrics.ObjectStoreOperationsTotal.WithLabelValues("download", "error").Inc()
		return "", "", err
	}
	metrics.ObjectStoreOperationsTotal.WithLabelValues("download", "success").Inc()
	return strings.TrimSuffix(auth.DownloadURL, "/") + "/file/" + c.bucketName + "/" + percentEncodeKey(key), auth.AuthToken, nil
}

// Preflight exercises authorize, bucket resolution, and upload-url
// acquisition in sequence, for /__b2check.
func (c *Client) Preflight() error {
	if _, err := c.Authorize(); err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	if _, err := c.ResolveBucketID(); err != nil {
		return fmt.Errorf("resolve bucket: %w", err)
	}
	if _, err := c.getUploadURL(false); err != nil {
		return fmt.Errorf("get upload url: %w", err)
	}
	return nil
}

// DecodeImagePayload strips an optional data: URL prefix and base64-decodes
// the remainder.
func DecodeImagePayload(raw string) ([]byte, error) {
	if idx := strings.Index(raw, ","); idx != -1 && strings.HasPrefix(raw, "data:") {
		raw = raw[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 payload: %w", err)
	}
	return data, nil
}

// ExtForMime derives a stored-object extension from a MIME type.
func ExtForMime(mime string) string {
	switch {
	case strings.Contains(mime, "png"):
		return "png"
	case strings.Contains(mime, "jpeg"), strings.Contains(mime, "jpg"):
		return "jpg"
	case strings.Contains(mime, "webp"):
		return "webp"
	default:
		return "bin"
	}
}

// BuildKey assembles a stored-object key of the form
// <prefix>YYYY/MM/DD/<uuid>.<ext>. prefix must already end in "/".
func BuildKey(prefix string, when time.Time, id string, ext string) string {
	return fmt.Sprintf("%s%04d/%02d/%02d/%s.%s", prefix, when.Year(), when.Month(), when.Day(), id, ext)
}
