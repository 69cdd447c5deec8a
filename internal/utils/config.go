package utils

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Application ApplicationConfig `yaml:"application"`
	Watch       WatchConfig       `yaml:"watch"`
	Detection   DetectionConfig   `yaml:"detection"`
	Auth        AuthConfig        `yaml:"auth"`
	Retention   RetentionConfig   `yaml:"retention"`
	Alerting    AlertingConfig    `yaml:"alerting"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ApplicationConfig struct {
	APIPort      string `yaml:"api_port"`
	MetricsPort  string `yaml:"metrics_port"`
	DatabasePath string `yaml:"database_path"`
	AutoStart    bool   `yaml:"auto_start"`
}

type WatchConfig struct {
	Paths               []string `yaml:"paths"`
	PollIntervalSeconds int      `yaml:"poll_interval_seconds"`
	StopTimeoutSeconds  int      `yaml:"stop_timeout_seconds"`
}

type DetectionConfig struct {
	WindowSeconds       int     `yaml:"window_seconds"`
	BurstMultiplier     float64 `yaml:"burst_multiplier"`
	SampleSize          int     `yaml:"sample_size"`
	HighEntropy         float64 `yaml:"high_entropy"`
	MediumEntropy       float64 `yaml:"medium_entropy"`
	RapidEntropy        float64 `yaml:"rapid_entropy"`
	RaaSEntropy         float64 `yaml:"raas_entropy"`
	RaaSRecentPaths     int     `yaml:"raas_recent_paths"`
	RaaSMinHighEntropy  int     `yaml:"raas_min_high_entropy"`
	SuspiciousExtensions []string `yaml:"suspicious_extensions"`
}

type AuthConfig struct {
	JWTSecret          string `yaml:"jwt_secret"`
	TokenExpiryMinutes int    `yaml:"token_expiry_minutes"`
}

type RetentionConfig struct {
	FileEventDays       int `yaml:"file_event_days"`
	AlertDays           int `yaml:"alert_days"`
	CriticalAlertDays   int `yaml:"critical_alert_days"`
	SweepIntervalHours  int `yaml:"sweep_interval_hours"`
}

type AlertingConfig struct {
	Enabled  bool                 `yaml:"enabled"`
	Channels AlertChannelsConfig  `yaml:"channels"`
	Telegram TelegramConfig       `yaml:"telegram"`
}

type AlertChannelsConfig struct {
	Log      bool `yaml:"log"`
	Telegram bool `yaml:"telegram"`
}

type TelegramConfig struct {
	BotToken        string `yaml:"bot_token"`
	ChatID          string `yaml:"chat_id"`
	ParseMode       string `yaml:"parse_mode"`
	Enabled         bool   `yaml:"enabled"`
	MessageTemplate string `yaml:"message_template,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig reads the YAML config file and fills in defaults for anything
// left unset.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		filename = "configs/ransomguard.yaml"
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %v", filename, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file %s: %v", filename, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %v", err)
	}

	return &config, nil
}

// Validate fills in defaults instead of failing wherever a safe default exists.
func (c *Config) Validate() error {
	if c.Application.APIPort == "" {
		c.Application.APIPort = "8000"
	}
	if c.Application.MetricsPort == "" {
		c.Application.MetricsPort = "9090"
	}
	if c.Application.DatabasePath == "" {
		c.Application.DatabasePath = "data/ransomguard.db"
	}

	if len(c.Watch.Paths) == 0 {
		c.Watch.Paths = []string{"/tmp/ransomguard"}
	}
	if c.Watch.PollIntervalSeconds <= 0 {
		c.Watch.PollIntervalSeconds = 5
	}
	if c.Watch.StopTimeoutSeconds <= 0 {
		c.Watch.StopTimeoutSeconds = 10
	}

	if c.Detection.WindowSeconds <= 0 {
		c.Detection.WindowSeconds = 60
	}
	if c.Detection.BurstMultiplier <= 0 {
		c.Detection.BurstMultiplier = 3.0
	}
	if c.Detection.SampleSize <= 0 {
		c.Detection.SampleSize = 8192
	}
	if c.Detection.HighEntropy <= 0 {
		c.Detection.HighEntropy = 7.5
	}
	if c.Detection.MediumEntropy <= 0 {
		c.Detection.MediumEntropy = 6.0
	}
	if c.Detection.RapidEntropy <= 0 {
		c.Detection.RapidEntropy = 6.5
	}
	if c.Detection.RaaSEntropy <= 0 {
		c.Detection.RaaSEntropy = 7.0
	}
	if c.Detection.RaaSRecentPaths <= 0 {
		c.Detection.RaaSRecentPaths = 10
	}
	if c.Detection.RaaSMinHighEntropy <= 0 {
		c.Detection.RaaSMinHighEntropy = 5
	}
	if len(c.Detection.SuspiciousExtensions) == 0 {
		c.Detection.SuspiciousExtensions = []string{".enc", ".locked", ".crypted", ".crypto", ".ransom"}
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret cannot be empty")
	}
	if c.Auth.TokenExpiryMinutes <= 0 {
		c.Auth.TokenExpiryMinutes = 30
	}

	if c.Retention.FileEventDays <= 0 {
		c.Retention.FileEventDays = 7
	}
	if c.Retention.AlertDays <= 0 {
		c.Retention.AlertDays = 30
	}
	if c.Retention.CriticalAlertDays <= 0 {
		c.Retention.CriticalAlertDays = 90
	}
	if c.Retention.SweepIntervalHours <= 0 {
		c.Retention.SweepIntervalHours = 6
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	return nil
}

// GetDefaultConfig returns the configuration used when no config file is
// present. The JWT secret is intentionally a development-only value.
func GetDefaultConfig() *Config {
	config := &Config{
		Auth: AuthConfig{
			JWTSecret: "dev-secret-change-me",
		},
		Alerting: AlertingConfig{
			Enabled: true,
			Channels: AlertChannelsConfig{
				Log: true,
			},
		},
	}
	_ = config.Validate()
	return config
}
