// Package config loads runtime configuration from a file (yaml, json or
// toml by extension) with an environment-variable overlay.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr     string `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`

	// Primary proxy backend (OpenAI-compatible, cost-tracking).
	ProxyBaseURL string `json:"proxy_base_url" yaml:"proxy_base_url" toml:"proxy_base_url"`
	ProxyAPIKey  string `json:"proxy_api_key" yaml:"proxy_api_key" toml:"proxy_api_key"`

	// Direct vendor keys (fallback path).
	OpenAIAPIKey string `json:"openai_api_key" yaml:"openai_api_key" toml:"openai_api_key"`
	GeminiAPIKey string `json:"gemini_api_key" yaml:"gemini_api_key" toml:"gemini_api_key"`

	DefaultModel       string `json:"default_model" yaml:"default_model" toml:"default_model"`
	RegistryTTLSeconds int    `json:"registry_ttl_seconds" yaml:"registry_ttl_seconds" toml:"registry_ttl_seconds"`
	DirectFallback     *bool  `json:"direct_fallback" yaml:"direct_fallback" toml:"direct_fallback"`

	// Storage of generated images.
	StoragePath  string `json:"storage_path" yaml:"storage_path" toml:"storage_path"`
	BaseURL      string `json:"base_url" yaml:"base_url" toml:"base_url"`
	SaveLocally  *bool  `json:"save_images_locally" yaml:"save_images_locally" toml:"save_images_locally"`
	InlineImages bool   `json:"inline_images" yaml:"inline_images" toml:"inline_images"`

	// Optional shared secret for inbound requests.
	BearerToken string `json:"bearer_token" yaml:"bearer_token" toml:"bearer_token"`

	RequestTimeoutSeconds int `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`

	CORSEnabled bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// FromEnv overlays IMAGEGEN_* environment variables onto cfg. Set
// variables win over file values.
func FromEnv(cfg Config) Config {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr(&cfg.Addr, "IMAGEGEN_ADDR")
	setStr(&cfg.LogLevel, "IMAGEGEN_LOG_LEVEL")
	setStr(&cfg.ProxyBaseURL, "IMAGEGEN_PROXY_BASE_URL")
	setStr(&cfg.ProxyAPIKey, "IMAGEGEN_PROXY_API_KEY")
	setStr(&cfg.OpenAIAPIKey, "IMAGEGEN_OPENAI_API_KEY")
	setStr(&cfg.GeminiAPIKey, "IMAGEGEN_GEMINI_API_KEY")
	setStr(&cfg.DefaultModel, "IMAGEGEN_DEFAULT_MODEL")
	setStr(&cfg.StoragePath, "IMAGEGEN_STORAGE_PATH")
	setStr(&cfg.BaseURL, "IMAGEGEN_BASE_URL")
	setStr(&cfg.BearerToken, "IMAGEGEN_BEARER_TOKEN")

	if v := os.Getenv("IMAGEGEN_REGISTRY_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RegistryTTLSeconds = n
		}
	}
	if v := os.Getenv("IMAGEGEN_REQUEST_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RequestTimeoutSeconds = n
		}
	}
	if v := os.Getenv("IMAGEGEN_DIRECT_FALLBACK"); v != "" {
		b := parseBool(v)
		cfg.DirectFallback = &b
	}
	if v := os.Getenv("IMAGEGEN_SAVE_IMAGES_LOCALLY"); v != "" {
		b := parseBool(v)
		cfg.SaveLocally = &b
	}
	return cfg
}

// ApplyDefaults fills unset fields with the documented defaults.
func ApplyDefaults(cfg Config) Config {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RegistryTTLSeconds <= 0 {
		cfg.RegistryTTLSeconds = 3600
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		cfg.RequestTimeoutSeconds = 120
	}
	if cfg.StoragePath == "" {
		cfg.StoragePath = "./generated_images"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.DirectFallback == nil {
		b := true
		cfg.DirectFallback = &b
	}
	if cfg.SaveLocally == nil {
		b := true
		cfg.SaveLocally = &b
	}
	return cfg
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
