package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel            = "deepseek-ai/DeepSeek-R1"
	DefaultBaseURL          = "https://api.siliconflow.cn/v1"
	DefaultMaxTokens        = 512
	DefaultTemperature      = 0.7
	DefaultTopP             = 0.7
	DefaultTopK             = 50
	DefaultMinP             = 0.05
	DefaultFrequencyPenalty = 0.5
	DefaultHost             = "0.0.0.0"
	DefaultPort             = 5000
	DefaultBufSize          = 100
	DefaultRetentionDays    = 0 // 0 disables the sweeper
	DefaultSweepSpec        = "0 0 3 * * *"
)

type Config struct {
	DataDir   string          `json:"dataDir"`
	Provider  ProviderConfig  `json:"provider"`
	Model     ModelConfig     `json:"model"`
	Channels  ChannelsConfig  `json:"channels"`
	Gateway   GatewayConfig   `json:"gateway"`
	Retention RetentionConfig `json:"retention"`
}

type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// ModelConfig carries the fixed sampling parameters sent with every
// chat-completion request.
type ModelConfig struct {
	Name             string  `json:"name"`
	MaxTokens        int     `json:"maxTokens"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"topP"`
	TopK             int     `json:"topK"`
	MinP             float64 `json:"minP"`
	FrequencyPenalty float64 `json:"frequencyPenalty"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	Proxy   string `json:"proxy,omitempty"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// RetentionConfig controls the scheduled cleanup of read notifications.
// Days <= 0 disables it.
type RetentionConfig struct {
	Days      int    `json:"days"`
	SweepSpec string `json:"sweepSpec,omitempty"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir: filepath.Join(home, ".groupwatch", "data"),
		Provider: ProviderConfig{
			BaseURL: DefaultBaseURL,
		},
		Model: ModelConfig{
			Name:             DefaultModel,
			MaxTokens:        DefaultMaxTokens,
			Temperature:      DefaultTemperature,
			TopP:             DefaultTopP,
			TopK:             DefaultTopK,
			MinP:             DefaultMinP,
			FrequencyPenalty: DefaultFrequencyPenalty,
		},
		Channels: ChannelsConfig{},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Retention: RetentionConfig{
			Days:      DefaultRetentionDays,
			SweepSpec: DefaultSweepSpec,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".groupwatch")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("GROUPWATCH_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("GROUPWATCH_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("GROUPWATCH_MODEL"); model != "" {
		cfg.Model.Name = model
	}
	if token := os.Getenv("GROUPWATCH_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if dir := os.Getenv("GROUPWATCH_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if port := os.Getenv("GROUPWATCH_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Gateway.Port = parsed
		}
	}
	if days := os.Getenv("GROUPWATCH_RETENTION_DAYS"); days != "" {
		if parsed, err := strconv.Atoi(days); err == nil {
			cfg.Retention.Days = parsed
		}
	}

	if cfg.DataDir == "" {
		cfg.DataDir = DefaultConfig().DataDir
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = DefaultBaseURL
	}
	if cfg.Model.Name == "" {
		cfg.Model.Name = DefaultModel
	}
	if cfg.Model.MaxTokens <= 0 {
		cfg.Model.MaxTokens = DefaultMaxTokens
	}
	if cfg.Retention.SweepSpec == "" {
		cfg.Retention.SweepSpec = DefaultSweepSpec
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
