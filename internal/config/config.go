package config

import (
	"fmt"
	"time"
)

// Duration decodes yaml values like "30s" or "5m" via time.ParseDuration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the web gateway configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	API     APIConfig     `yaml:"api"`
	Session SessionConfig `yaml:"session"`
	Tokens  TokensConfig  `yaml:"tokens"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the gateway's own listen configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// APIConfig holds the upstream Quizlane API configuration
type APIConfig struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// SessionConfig holds cookie-session configuration
type SessionConfig struct {
	Secret string `yaml:"secret"` // 32 bytes, base64

	// Mirror cookie lifetimes. The access mirror is short-lived; the
	// refresh mirror spans the refresh credential's validity.
	AccessCookieMaxAge  int `yaml:"access_cookie_max_age"`
	RefreshCookieMaxAge int `yaml:"refresh_cookie_max_age"`
}

// TokensConfig holds token lifecycle configuration
type TokensConfig struct {
	// RefreshThreshold is the proactive-refresh horizon before expiry.
	RefreshThreshold Duration `yaml:"refresh_threshold"`

	// LoginPath is where expired sessions are redirected.
	LoginPath string `yaml:"login_path"`

	// PublicPaths never trigger the redirect, matched by prefix.
	PublicPaths []string `yaml:"public_paths"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}
