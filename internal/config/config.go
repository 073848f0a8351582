// Package config loads agent configuration from environment variables.
//
// Configuration-file parsing is out of scope; every setting is
// environment-driven.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds agent-wide configuration.
type Config struct {
	DataDir       string // root of /data/workspace, /data/output, /data/cache, /data/easycicd
	HTTPAddr      string // API listen address
	ProxyAddr     string // reverse proxy listen address
	LogLevel      string
	CORSOrigins   []string
	WebhookSecret string // HMAC secret for x-hub-signature-256 verification
	BaseDomain    string // proxy base domain, e.g. "apps.example.com"
	GitHubToken   string // personal access token used to call the GitHub API for recipe detection

	AppPortRangeStart       int // application port range, inclusive
	AppPortRangeEnd         int
	ContainerPortRangeStart int // container (standalone) port range, inclusive
	ContainerPortRangeEnd   int

	BuildTimeout      int // seconds; loaded from the environment, but no build applies it
	HealthGateRetries int
	HealthGateDelay   int // seconds between health gate attempts
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		DataDir:                 getEnv("DATA_DIR", "/data"),
		HTTPAddr:                getEnv("HTTP_ADDR", ":8090"),
		ProxyAddr:               getEnv("PROXY_ADDR", ":8080"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		CORSOrigins:             parseList(getEnv("CORS_ORIGINS", "")),
		WebhookSecret:           getEnv("WEBHOOK_SECRET", ""),
		BaseDomain:              getEnv("BASE_DOMAIN", ""),
		GitHubToken:             getEnv("GITHUB_TOKEN", ""),
		AppPortRangeStart:       getIntEnv("APP_PORT_RANGE_START", 10000),
		AppPortRangeEnd:         getIntEnv("APP_PORT_RANGE_END", 14999),
		ContainerPortRangeStart: getIntEnv("CONTAINER_PORT_RANGE_START", 15000),
		ContainerPortRangeEnd:   getIntEnv("CONTAINER_PORT_RANGE_END", 19999),
		BuildTimeout:            getIntEnv("BUILD_TIMEOUT_SECONDS", 0),
		HealthGateRetries:       getIntEnv("HEALTH_GATE_RETRIES", 10),
		HealthGateDelay:         getIntEnv("HEALTH_GATE_DELAY_SECONDS", 2),
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func parseList(v string) []string {
	if v == "" {
		return []string{}
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
