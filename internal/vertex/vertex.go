// Package vertex talks to the upstream generative-model API: service
// account OAuth, project round-robin, and the raw generateContent call.
// No SDK -- same hand-rolled net/http idiom as internal/objectstore.
package vertex

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const oauthScope = "https://www.googleapis.com/auth/cloud-platform"

// ErrNonJSON marks a 2xx generateContent response whose body could not be
// decoded as JSON, distinct from a non-2xx status.
var ErrNonJSON = errors.New("vertex: response body is not valid json")

// ServiceAccount holds the credential used to mint OAuth tokens.
type ServiceAccount struct {
	ClientEmail string
	PrivateKey  string
	TokenURI    string
}

// ParseServiceAccountJSON decodes a single JSON-blob credential.
func ParseServiceAccountJSON(raw string) (*ServiceAccount, error) {
	var doc struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
		TokenURI    string `json:"token_uri"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse service account json: %w", err)
	}
	return &ServiceAccount{ClientEmail: doc.ClientEmail, PrivateKey: doc.PrivateKey, TokenURI: doc.TokenURI}, nil
}

type Client struct {
	sa         *ServiceAccount
	projectIDs []string
	rotation   atomic.Uint64
	location   string
	model      string
	endpoint   string
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
	tokenExpiry time.Time
}

func New(sa *ServiceAccount, projectIDs []string, location, model, endpointMode string) *Client {
	return &Client{
		sa:         sa,
		projectIDs: projectIDs,
		location:   location,
		model:      model,
		endpoint:   endpointMode,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// NextProject round-robins across the configured projects; lost updates
// under concurrent access are tolerated.
func (c *Client) NextProject() string {
	if len(c.projectIDs) == 0 {
		return ""
	}
	i := c.rotation.Add(1) - 1
	return c.projectIDs[int(i%uint64(len(c.projectIDs)))]
}

// Token mints or returns a cached OAuth access token, refreshing 60s
// before expiry.
func (c *Client) Token() (string, error) {
	c.mu.RLock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		t := c.accessToken
		c.mu.RUnlock()
		return t, nil
	}
	c.mu.RUnlock()

	assertion, err := c.signAssertion()
	if err != nil {
		return "", fmt.Errorf("oauth_token_failed: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", assertion)

	req, err := http.NewRequest("POST", c.sa.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("oauth_token_failed: failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("oauth_token_failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("oauth_token_failed: failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oauth_token_failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("oauth_token_failed: failed to decode response: %w", err)
	}

	c.mu.Lock()
	c.accessToken = tr.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - 60*time.Second)
	c.mu.Unlock()

	return tr.AccessToken, nil
}

func (c *Client) signAssertion() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(c.sa.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   c.sa.ClientEmail,
		"scope": oauthScope,
		"aud":   c.sa.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(key)
}

func (c *Client) endpointHost(projectID string) string {
	if c.endpoint == "global" || c.location == "global" {
		return "https://aiplatform.googleapis.com"
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com", c.location)
}

// InlinePart is one piece of a generateContent request/response payload.
type InlinePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateContentRequest struct {
	Contents []struct {
		Role  string       `json:"role"`
		Parts []InlinePart `json:"parts"`
	} `json:"contents"`
	GenerationConfig map[string]any `json:"generationConfig,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []InlinePart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate issues one generateContent call against a rotated project and
// returns every inlineData part found across all candidates.
func (c *Client) Generate(prompt string, refParts []InlinePart, genConfig map[string]any) ([]InlineData, error) {
	projectID := c.NextProject()
	if projectID == "" {
		return nil, fmt.Errorf("no vertex project configured")
	}

	token, err := c.Token()
	if err != nil {
		return nil, err
	}

	parts := append([]InlinePart{{Text: prompt}}, refParts...)
	reqBody := generateContentRequest{
		GenerationConfig: genConfig,
	}
	reqBody.Contents = []struct {
		Role  string       `json:"role"`
		Parts []InlinePart `json:"parts"`
	}{{Role: "user", Parts: parts}}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generate request: %w", err)
	}

	endpointURL := fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
		c.endpointHost(projectID), projectID, c.location, c.model)

	req, err := http.NewRequest("POST", endpointURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build generate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute generate request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read generate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generate request failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var gr generateContentResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNonJSON, err)
	}

	var images []InlineData
	for _, cand := range gr.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				images = append(images, *p.InlineData)
			}
		}
	}
	return images, nil
}

// Preflight mints an OAuth token to verify credentials, for /__vertexcheck.
func (c *Client) Preflight() error {
	_, err := c.Token()
	return err
}
