// Package config loads uchat settings from defaults, an optional YAML file and
// the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"uchat/internal/validation"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

var DefaultConfigPaths = []string{
	"uchat.yaml",
	"/etc/uchat/uchat.yaml",
}

type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Server   ServerConfig   `koanf:"server"`
	Session  SessionConfig  `koanf:"session"`
	Images   ImagesConfig   `koanf:"images"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type DatabaseConfig struct {
	URL      string `koanf:"url" validate:"required"`
	MaxConns int32  `koanf:"max_conns" validate:"min=1"`
}

type ServerConfig struct {
	Bind   string `koanf:"bind" validate:"required,hostname_port"`
	APIURL string `koanf:"api_url" validate:"required,url"`
	// CORSOrigins are the front-end origins allowed to send credentialed requests.
	CORSOrigins     []string      `koanf:"cors_origins"`
	LoginRateLimit  int           `koanf:"login_rate_limit" validate:"min=1"`
	// TrustProxy reads the client address from X-Forwarded-For. Leave it off
	// unless a proxy in front of uchat overwrites that header.
	TrustProxy      bool          `koanf:"trust_proxy"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=0"`
}

type SessionConfig struct {
	// PrivateKey is the base64 Ed25519 seed written by "uchat gen-key".
	PrivateKey   string        `koanf:"private_key"`
	Duration     time.Duration `koanf:"duration" validate:"min=1m"`
	CookieSecure bool          `koanf:"cookie_secure"`
	ReapInterval time.Duration `koanf:"reap_interval" validate:"min=1s"`
}

type ImagesConfig struct {
	Dir      string `koanf:"dir" validate:"required"`
	MaxBytes int64  `koanf:"max_bytes" validate:"min=1"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxConns: 50,
		},
		Server: ServerConfig{
			Bind:            "127.0.0.1:8070",
			APIURL:          "http://127.0.0.1:8070",
			CORSOrigins:     []string{"http://127.0.0.1:8080", "http://localhost:8080"},
			LoginRateLimit:  20,
			ShutdownTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			Duration:     3 * 7 * 24 * time.Hour,
			ReapInterval: time.Hour,
		},
		Images: ImagesConfig{
			Dir:      "usercontent",
			MaxBytes: 5 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads .env if present, then layers defaults, the config file and the
// environment. Overrides, such as command line flags, are applied last and
// the result is validated.
func Load(overrides ...func(*Config)) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := splitCommaList(k, "server.cors_origins"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	return validation.Struct(c)
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// splitCommaList turns a comma separated env value into a slice. Values from
// YAML are already slices and are left alone.
func splitCommaList(k *koanf.Koanf, path string) error {
	s, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if err := k.Set(path, out); err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	return nil
}

var envMappings = map[string]string{
	"api_database_url":     "database.url",
	"api_db_max_conns":     "database.max_conns",
	"api_bind":             "server.bind",
	"api_url":              "server.api_url",
	"api_cors_origins":     "server.cors_origins",
	"api_login_rate_limit": "server.login_rate_limit",
	"api_trust_proxy":      "server.trust_proxy",
	"api_shutdown_timeout": "server.shutdown_timeout",
	"api_private_key":      "session.private_key",
	"api_session_duration": "session.duration",
	"api_cookie_secure":    "session.cookie_secure",
	"api_reap_interval":    "session.reap_interval",
	"api_image_dir":        "images.dir",
	"api_image_max_bytes":  "images.max_bytes",
	"log_level":            "logging.level",
	"log_format":           "logging.format",
}

// envTransformFunc maps known variables to config paths and drops the rest.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
