package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration for the Empath service.
// It is loaded from ~/.empath/config.yaml and can be overridden by
// environment variables with the EMPATH_ prefix.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Analysis  AnalysisConfig  `mapstructure:"analysis" yaml:"analysis"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Synthesis SynthesisConfig `mapstructure:"synthesis" yaml:"synthesis"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig contains the HTTP listener settings.
type ServerConfig struct {
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// AnalysisConfig selects the emotion-analysis backend topology.
// Mode "combined" posts the recording to a single endpoint; "split"
// fans out to separate audio and video endpoints.
type AnalysisConfig struct {
	Mode        string        `mapstructure:"mode" yaml:"mode"`
	CombinedURL string        `mapstructure:"combined_url" yaml:"combined_url,omitempty"`
	AudioURL    string        `mapstructure:"audio_url" yaml:"audio_url,omitempty"`
	VideoURL    string        `mapstructure:"video_url" yaml:"video_url,omitempty"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LLMConfig contains the generative backend settings. Mode "prompt"
// uses the single-prompt endpoint with a context vector; "chat" sends
// the full message list.
type LLMConfig struct {
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	Model       string        `mapstructure:"model" yaml:"model"`
	Mode        string        `mapstructure:"mode" yaml:"mode"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float64       `mapstructure:"top_p" yaml:"top_p"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SynthesisConfig contains the speech-synthesis backend settings.
type SynthesisConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// Voice-shaping parameters passed through on every request.
	Exaggeration float64 `mapstructure:"exaggeration" yaml:"exaggeration"`
	Temperature  float64 `mapstructure:"temperature" yaml:"temperature"`
	Seed         int     `mapstructure:"seed" yaml:"seed"`
	CFGWeight    float64 `mapstructure:"cfg_weight" yaml:"cfg_weight"`
	VADTrim      bool    `mapstructure:"vad_trim" yaml:"vad_trim"`

	// VoicePromptPath names a backend-side reference recording for
	// voice cloning. Empty uses the backend's default voice.
	VoicePromptPath string `mapstructure:"voice_prompt_path" yaml:"voice_prompt_path,omitempty"`
}

// StoreConfig selects the conversation persistence backend.
type StoreConfig struct {
	Backend   string        `mapstructure:"backend" yaml:"backend"`
	Dir       string        `mapstructure:"dir" yaml:"dir"`
	RedisAddr string        `mapstructure:"redis_addr" yaml:"redis_addr,omitempty"`
	RedisTTL  time.Duration `mapstructure:"redis_ttl" yaml:"redis_ttl,omitempty"`

	// MaxLen bounds the persisted conversation: message count in chat
	// mode, context-vector length in prompt mode.
	MaxLen int `mapstructure:"max_len" yaml:"max_len"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level sets the minimum log level: debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// File is the log output path; empty logs to stderr only
	File string `mapstructure:"file" yaml:"file,omitempty"`
}

// Default returns a configuration with sensible defaults for a local
// single-host deployment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		Analysis: AnalysisConfig{
			Mode:     "split",
			AudioURL: "http://localhost:8001/analyze/audio",
			VideoURL: "http://localhost:8002/analyze/video",
			Timeout:  60 * time.Second,
		},
		LLM: LLMConfig{
			Endpoint:    "http://localhost:11434",
			Model:       "mistral",
			Mode:        "prompt",
			MaxTokens:   200,
			Temperature: 0.8,
			TopP:        0.5,
			Timeout:     2 * time.Minute,
		},
		Synthesis: SynthesisConfig{
			Enabled:      false,
			BaseURL:      "http://localhost:7860",
			Timeout:      60 * time.Second,
			Exaggeration: 0.5,
			Temperature:  0.8,
			Seed:         0,
			CFGWeight:    0.5,
			VADTrim:      false,
		},
		Store: StoreConfig{
			Backend:  "file",
			Dir:      "~/.empath/conversations",
			RedisTTL: 24 * time.Hour,
			MaxLen:   20,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "~/.empath/logs/empath.log",
		},
	}
}

// Load reads configuration from ~/.empath/config.yaml and merges with
// environment variables. If no config file exists, it creates one with
// default values.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".empath", "config.yaml")
	return LoadFromPath(configPath)
}

// LoadFromPath reads configuration from a specific file path and merges
// with environment variables. If the file doesn't exist, it creates one
// with default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := writeConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example: EMPATH_LLM_ENDPOINT, EMPATH_STORE_REDIS_ADDR
	v.SetEnvPrefix("EMPATH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Store.Dir = expandPath(cfg.Store.Dir)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	return &cfg, nil
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return writeConfigFile(path, c)
}

// ListenAddr returns the host:port pair the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks the configuration for common errors and inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	switch c.Analysis.Mode {
	case "combined":
		if c.Analysis.CombinedURL == "" {
			return fmt.Errorf("analysis.combined_url is required in combined mode")
		}
	case "split":
		if c.Analysis.AudioURL == "" || c.Analysis.VideoURL == "" {
			return fmt.Errorf("analysis.audio_url and analysis.video_url are required in split mode")
		}
	default:
		return fmt.Errorf("invalid analysis mode '%s', must be 'combined' or 'split'", c.Analysis.Mode)
	}

	if c.LLM.Mode != "prompt" && c.LLM.Mode != "chat" {
		return fmt.Errorf("invalid llm mode '%s', must be 'prompt' or 'chat'", c.LLM.Mode)
	}
	if c.LLM.Endpoint == "" {
		return fmt.Errorf("llm.endpoint cannot be empty")
	}

	switch c.Store.Backend {
	case "file":
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir is required for the file backend")
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("store.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid store backend '%s', must be 'file' or 'redis'", c.Store.Backend)
	}
	if c.Store.MaxLen < 1 {
		return fmt.Errorf("store.max_len must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// writeConfigFile writes a Config struct to a YAML file.
// Uses gopkg.in/yaml.v3 directly to ensure proper tag-based serialization.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
