package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	CalNet  CalNetConfig  `toml:"calnet"`
	Zoom    ZoomConfig    `toml:"zoom"`
	Login   LoginConfig   `toml:"login"`
	Browser BrowserConfig `toml:"browser"`
	Logging LoggingConfig `toml:"logging"`
	Storage StorageConfig `toml:"storage"`
	Session SessionConfig `toml:"session"`
}

// CalNetConfig holds the SSO credentials and second-factor settings
type CalNetConfig struct {
	Username string    `toml:"username"`
	Password string    `toml:"password"`
	Duo      DuoConfig `toml:"duo"`
}

// DuoConfig selects how the Duo challenge is answered. With OTPURI set
// the named device receives a generated passcode; otherwise the prompt
// must be approved manually.
type DuoConfig struct {
	DeviceName string `toml:"device_name"`
	OTPURI     string `toml:"otp_uri"`
	Manual     bool   `toml:"manual"`
}

type ZoomConfig struct {
	Origin       string        `toml:"origin" validate:"required,url"`
	PageInterval time.Duration `toml:"page_interval"`
}

// LoginConfig tunes the login flow itself
type LoginConfig struct {
	Retries  int      `toml:"retries" validate:"min=0"`
	SkipURLs []string `toml:"skip_urls" validate:"dive,url"`
}

type BrowserConfig struct {
	Headless  bool   `toml:"headless"`
	UserAgent string `toml:"user_agent"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

type StorageConfig struct {
	Path string `toml:"path"` // Database directory path
}

type SessionConfig struct {
	CachePath string `toml:"cache_path"` // Cookie cache file path
}

// NewDefaultConfig returns the baseline configuration
func NewDefaultConfig() *Config {
	return &Config{
		Zoom: ZoomConfig{
			Origin:       "https://berkeley.zoom.us",
			PageInterval: 2 * time.Second,
		},
		Login: LoginConfig{
			Retries: 3,
		},
		Browser: BrowserConfig{
			Headless: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		Storage: StorageConfig{
			Path: "./data/okzoomer.db",
		},
		Session: SessionConfig{
			CachePath: "./cookies.json",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier
// files; environment variables override everything.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration against its struct constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Save writes the configuration to path as TOML
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("OKZOOMER_CALNET_USERNAME"); v != "" {
		config.CalNet.Username = v
	}
	if v := os.Getenv("OKZOOMER_CALNET_PASSWORD"); v != "" {
		config.CalNet.Password = v
	}
	if v := os.Getenv("OKZOOMER_DUO_DEVICE_NAME"); v != "" {
		config.CalNet.Duo.DeviceName = v
	}
	if v := os.Getenv("OKZOOMER_DUO_OTP_URI"); v != "" {
		config.CalNet.Duo.OTPURI = v
	}
	if v := os.Getenv("OKZOOMER_ZOOM_ORIGIN"); v != "" {
		config.Zoom.Origin = v
	}
	if v := os.Getenv("OKZOOMER_LOGIN_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Login.Retries = n
		}
	}
	if v := os.Getenv("OKZOOMER_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("OKZOOMER_LOG_OUTPUT"); v != "" {
		config.Logging.Output = strings.Split(v, ",")
	}
	if v := os.Getenv("OKZOOMER_BROWSER_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Browser.Headless = b
		}
	}
	if v := os.Getenv("OKZOOMER_STORAGE_PATH"); v != "" {
		config.Storage.Path = v
	}
	if v := os.Getenv("OKZOOMER_SESSION_CACHE_PATH"); v != "" {
		config.Session.CachePath = v
	}
}
