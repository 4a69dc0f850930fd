// Package config loads Conduit's process configuration from environment
// variables, with an optional YAML file overlay, following the teacher's
// getEnvOrDefault-plus-flags pattern (cmd/root.go) generalized past a single
// CLI into two long-running binaries.
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every environment option named in spec §6.
type Config struct {
	RedisURL              string `yaml:"redisUrl"`
	DatabaseURL           string `yaml:"databaseUrl"`
	APIKeyEncryptionKey   string `yaml:"apiKeyEncryptionKey"`
	InternalServiceSecret string `yaml:"internalServiceSecret"`
	CORSOrigins           string `yaml:"corsOrigins"`
	PublicGatewayURL      string `yaml:"publicGatewayUrl"`
	GatewayURL            string `yaml:"gatewayUrl"`
	NodeEnv               string `yaml:"nodeEnv"`
	AvatarDir             string `yaml:"avatarDir"`
	TempAttachmentDir     string `yaml:"tempAttachmentDir"`
	MilvusAddr            string `yaml:"milvusAddr"`
	HTTPAddr              string `yaml:"httpAddr"`
	WorkerConcurrency     int    `yaml:"workerConcurrency"`

	// LLMProviderBaseURL is the endpoint of the
	// internal/llm.OpenAICompatibleProvider the worker sends every
	// generation to. LLMProviderAPIKey is loaded but not read by any
	// component, so guest-mode calls (no BYOK credential) carry no API key.
	LLMProviderBaseURL string `yaml:"llmProviderBaseUrl"`
	LLMProviderAPIKey  string `yaml:"llmProviderApiKey"`

	AudioTranscriptionEndpoint string `yaml:"audioTranscriptionEndpoint"`
	AudioTranscriptionAPIKey   string `yaml:"audioTranscriptionApiKey"`
	ImageDescriptionEndpoint   string `yaml:"imageDescriptionEndpoint"`
	ImageDescriptionAPIKey     string `yaml:"imageDescriptionApiKey"`
}

// getEnvOrDefault mirrors the teacher's cmd/root.go helper: read an env var,
// fall back to a default when unset or empty.
func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Load builds a Config from the environment, optionally overlaid with a
// YAML file at yamlPath (ignored if empty or missing). Required variables
// (REDIS_URL, DATABASE_URL) produce an error when absent from both sources.
func Load(yamlPath string) (*Config, error) {
	cfg := &Config{
		RedisURL:              os.Getenv("REDIS_URL"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		APIKeyEncryptionKey:   os.Getenv("API_KEY_ENCRYPTION_KEY"),
		InternalServiceSecret: os.Getenv("INTERNAL_SERVICE_SECRET"),
		CORSOrigins:           getEnvOrDefault("CORS_ORIGINS", "*"),
		PublicGatewayURL:      os.Getenv("PUBLIC_GATEWAY_URL"),
		GatewayURL:            os.Getenv("GATEWAY_URL"),
		NodeEnv:               getEnvOrDefault("NODE_ENV", "production"),
		AvatarDir:             getEnvOrDefault("AVATAR_DIR", "/data/avatars"),
		TempAttachmentDir:     getEnvOrDefault("TEMP_ATTACHMENT_DIR", "/data/temp-attachments"),
		MilvusAddr:            getEnvOrDefault("MILVUS_ADDR", "localhost:19530"),
		HTTPAddr:              getEnvOrDefault("HTTP_ADDR", ":8080"),
		WorkerConcurrency:     getEnvIntOrDefault("WORKER_CONCURRENCY", 4),

		LLMProviderBaseURL:         getEnvOrDefault("LLM_PROVIDER_BASE_URL", "https://openrouter.ai/api/v1"),
		LLMProviderAPIKey:          os.Getenv("LLM_PROVIDER_API_KEY"),
		AudioTranscriptionEndpoint: os.Getenv("AUDIO_TRANSCRIPTION_ENDPOINT"),
		AudioTranscriptionAPIKey:   os.Getenv("AUDIO_TRANSCRIPTION_API_KEY"),
		ImageDescriptionEndpoint:   os.Getenv("IMAGE_DESCRIPTION_ENDPOINT"),
		ImageDescriptionAPIKey:     os.Getenv("IMAGE_DESCRIPTION_API_KEY"),
	}

	if yamlPath != "" {
		if err := cfg.overlayYAML(yamlPath); err != nil {
			return nil, err
		}
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("config: REDIS_URL is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.PublicGatewayURL == "" {
		cfg.PublicGatewayURL = cfg.GatewayURL
	}
	if cfg.APIKeyEncryptionKey != "" {
		if len(cfg.APIKeyEncryptionKey) != 64 {
			return nil, fmt.Errorf("config: API_KEY_ENCRYPTION_KEY must be exactly 64 hex characters, got %d", len(cfg.APIKeyEncryptionKey))
		}
		if _, err := hex.DecodeString(cfg.APIKeyEncryptionKey); err != nil {
			return nil, fmt.Errorf("config: API_KEY_ENCRYPTION_KEY is not valid hex: %w", err)
		}
	}

	return cfg, nil
}

// overlayYAML reads yamlPath and overwrites any field it sets. A missing
// file is not an error — the YAML overlay is optional sugar over env vars.
func (c *Config) overlayYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	overlay := *c
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	*c = overlay
	return nil
}

// IsDevelopment reports whether verbose prompt-assembly logging is enabled.
func (c *Config) IsDevelopment() bool {
	return c.NodeEnv == "development"
}

// NewLogger builds the process-wide structured logger, raised to Debug in
// development per spec §6.
func (c *Config) NewLogger() *slog.Logger {
	level := slog.LevelInfo
	if c.IsDevelopment() {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)

	if c.InternalServiceSecret == "" {
		logger.Warn("INTERNAL_SERVICE_SECRET not set; service-to-service auth disabled")
	}
	if c.APIKeyEncryptionKey == "" {
		logger.Info("API_KEY_ENCRYPTION_KEY not set; BYOK credential encryption disabled")
	}

	return logger
}
