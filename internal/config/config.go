// Package config reads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Provider selection values.
const (
	ProviderOllama = "ollama"
	ProviderONNX   = "onnx"
)

// Session store selection values.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds the service configuration.
type Config struct {
	ListenAddr string

	Provider    string
	OllamaURL   string
	OllamaModel string
	OnnxModel   string
	OnnxMeta    string
	TopK        int

	SpoolDir string

	SessionStore  string
	RedisAddr     string
	SessionTTL    time.Duration
	SessionSecret string
	SecureCookies bool
}

// FromEnv builds the configuration from environment variables with local
// development defaults.
func FromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		Provider:      getEnv("MODEL_PROVIDER", ProviderOllama),
		OllamaURL:     getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llava"),
		OnnxModel:     getEnv("ONNX_MODEL_PATH", "model.onnx"),
		OnnxMeta:      getEnv("ONNX_METADATA_PATH", "metadata.json"),
		SpoolDir:      os.Getenv("SPOOL_DIR"),
		SessionStore:  getEnv("SESSION_STORE", StoreMemory),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		SessionSecret: getEnv("SESSION_SECRET", "dev-secret"),
	}

	topK, err := getEnvInt("TOP_K", 5)
	if err != nil {
		return nil, err
	}
	cfg.TopK = topK

	ttl, err := getEnvDuration("SESSION_TTL", 30*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.SessionTTL = ttl

	secure, err := getEnvBool("SECURE_COOKIES", false)
	if err != nil {
		return nil, err
	}
	cfg.SecureCookies = secure

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Provider != ProviderOllama && c.Provider != ProviderONNX {
		return fmt.Errorf("MODEL_PROVIDER must be %q or %q, got %q", ProviderOllama, ProviderONNX, c.Provider)
	}
	if c.SessionStore != StoreMemory && c.SessionStore != StoreRedis {
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", StoreMemory, StoreRedis, c.SessionStore)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("TOP_K must be positive, got %d", c.TopK)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return parsed, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, value)
	}
	return parsed, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, value)
	}
	return parsed, nil
}
