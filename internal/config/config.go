package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	API      APIConfig
	Database DatabaseConfig
	Log      LogConfig
	Editor   EditorConfig
}

// APIConfig holds backend settings.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Token   string        `mapstructure:"token"`
}

// DatabaseConfig holds the session store location.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logging settings. An empty File logs to stderr.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// EditorConfig holds editor behaviour.
type EditorConfig struct {
	ImageRetry      int           `mapstructure:"image_retry"`
	ImageRetryDelay time.Duration `mapstructure:"image_retry_delay"`
}

// Dir returns the directory for travelog files under the user config dir.
func Dir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("user config dir: %w", err)
	}
	return filepath.Join(dir, "travelog"), nil
}

// Load reads configuration from file and env. Env var overrides use prefix
// TRAVELOG_, e.g. TRAVELOG_API_BASE_URL. path overrides the config file location.
func Load(path string) (Config, error) {
	v := viper.New()

	dir, err := Dir()
	if err != nil {
		dir = "."
	}

	setDefaults(v, dir)

	v.SetConfigType("toml")
	if path == "" {
		path = os.Getenv("TRAVELOG_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("TRAVELOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.BaseURL == "" {
		return Config{}, fmt.Errorf("api.base_url is required")
	}
	if c.Editor.ImageRetry < 0 {
		c.Editor.ImageRetry = 0
	}
	return c, nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.token", "")
	v.SetDefault("database.path", filepath.Join(dir, "session.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("editor.image_retry", 2)
	v.SetDefault("editor.image_retry_delay", 300*time.Millisecond)
}

// Defaults returns the built-in configuration, ignoring files and env.
func Defaults() Config {
	dir, err := Dir()
	if err != nil {
		dir = "."
	}
	v := viper.New()
	setDefaults(v, dir)
	var c Config
	_ = v.Unmarshal(&c)
	return c
}

// Save writes the non-secret settings to path, creating its directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("api.base_url", cfg.API.BaseURL)
	v.Set("api.timeout", cfg.API.Timeout.String())
	v.Set("database.path", cfg.Database.Path)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.file", cfg.Log.File)
	v.Set("editor.image_retry", cfg.Editor.ImageRetry)
	v.Set("editor.image_retry_delay", cfg.Editor.ImageRetryDelay.String())

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
