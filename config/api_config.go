package config

import (
	"strings"
	"time"
)

// APIConfig holds HTTP server settings
type APIConfig struct {
	Version        string
	Host           string
	Port           string
	AllowedOrigins []string
	APIKey         string
	RateLimit      float64 // requests per second per client
	RequestTimeout time.Duration
	MaxWorkers     int
}

// LoadAPIConfig returns the API configuration from the environment
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Version:        "v1",
		Host:           getEnv("HOST", "0.0.0.0"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		APIKey:         getEnv("API_KEY", ""),
		RateLimit:      getEnvFloat("API_RATE_LIMIT", 5),
		RequestTimeout: getEnvDuration("API_REQUEST_TIMEOUT", 2*time.Minute),
		MaxWorkers:     getEnvInt("TASK_MAX_WORKERS", 1),
	}
}

// Addr is the listen address
func (c APIConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// RequireAPIKey reports whether requests must carry the configured key
func (c APIConfig) RequireAPIKey() bool {
	return strings.TrimSpace(c.APIKey) != ""
}
