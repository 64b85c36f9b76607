// Package config loads gateway configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Shared
	JWTSecret       string
	TokenTTLSeconds int64
	Port            string
	Environment     string
	LogLevel        string
	MetricsEnabled  bool

	// Relational store
	DatabaseURL string

	// KV store
	RedisURL string

	// Object store (B2-like)
	B2KeyID       string
	B2AppKey      string
	B2BucketName  string
	ImgReturnBase string
	KeyPrefix     string

	// Upstream generative model
	VertexProjectIDs     []string
	VertexLocation       string
	VertexModel          string
	VertexEndpointMode   string
	MaxImagesPerResponse int

	// Service account credential for upstream OAuth
	GCPServiceAccountJSON string
	GCPSAClientEmail      string
	GCPSAPrivateKey       string
	GCPTokenURI           string

	// Reference-image fetch policy
	AllowRefImageHosts []string
	AllowRefImageHTTP  bool
	MaxRefImageBytes   int64
}

func Load() (*Config, error) {
	cfg := &Config{
		JWTSecret:       getEnv("JWT_SECRET", ""),
		TokenTTLSeconds: getEnvInt64("TOKEN_TTL_SECONDS", 86400),
		Port:            getEnv("PORT", "8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		B2KeyID:       getEnv("B2_KEY_ID", ""),
		B2AppKey:      getEnv("B2_APP_KEY", ""),
		B2BucketName:  getEnv("B2_BUCKET_NAME", ""),
		ImgReturnBase: normalizeBaseURL(getEnv("IMG_RETURN_BASE", "")),
		KeyPrefix:     getEnv("KEY_PREFIX", "gemini/"),

		VertexLocation:       getEnv("VERTEX_LOCATION", "global"),
		VertexModel:          getEnv("VERTEX_MODEL", ""),
		VertexEndpointMode:   getEnv("VERTEX_ENDPOINT_MODE", ""),
		MaxImagesPerResponse: int(getEnvInt64("MAX_IMAGES_PER_RESPONSE", 1)),

		GCPServiceAccountJSON: getEnv("GCP_SERVICE_ACCOUNT_JSON", ""),
		GCPSAClientEmail:      getEnv("GCP_SA_CLIENT_EMAIL", ""),
		GCPSAPrivateKey:       getEnv("GCP_SA_PRIVATE_KEY", ""),
		GCPTokenURI:           getEnv("GCP_TOKEN_URI", ""),

		AllowRefImageHTTP: getEnv("ALLOW_REF_IMAGE_HTTP", "") == "1",
		MaxRefImageBytes:  getEnvInt64("MAX_REF_IMAGE_BYTES", 10<<20),
	}

	if raw := getEnv("VERTEX_PROJECT_IDS", ""); raw != "" {
		cfg.VertexProjectIDs = splitNonEmpty(raw, "|")
	}
	if raw := getEnv("ALLOW_REF_IMAGE_HOSTS", ""); raw != "" {
		cfg.AllowRefImageHosts = splitNonEmpty(raw, "|")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

func splitNonEmpty(raw, sep string) []string {
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBaseURL forces https:// and strips trailing slashes.
func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	} else if strings.HasPrefix(raw, "http://") {
		raw = "https://" + strings.TrimPrefix(raw, "http://")
	}
	return strings.TrimRight(raw, "/")
}
