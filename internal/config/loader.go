package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// expandEnvVars expands environment variables in the format ${VAR} or $VAR
// Uses Go's built-in os.ExpandEnv which is the idiomatic way to handle this
func expandEnvVars(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}

// DefaultConfigPaths defines the default locations to search for configuration files
var DefaultConfigPaths = []string{
	"./config.yaml",
	"./config.yml",
	"./configs/config.yaml",
	"./configs/config.yml",
	"./configs/development.yaml",
	"/etc/quizlane/config.yaml",
	"/etc/quizlane/config.yml",
}

// Load loads the configuration from the specified file or default locations
func Load(configPath string) (*Config, error) {
	// Set default values
	config := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		API: APIConfig{
			BaseURL: "http://localhost:4000",
			Timeout: Duration(30 * time.Second),
		},
		Session: SessionConfig{
			AccessCookieMaxAge:  1800,   // ~30 minutes
			RefreshCookieMaxAge: 604800, // ~7 days
		},
		Tokens: TokensConfig{
			RefreshThreshold: Duration(5 * time.Minute),
			LoginPath:        "/login",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}

	// If no config path is provided, search in default locations
	if configPath == "" {
		configPath = findConfigFile()
	}

	// Load configuration from file if it exists
	if configPath != "" && fileExists(configPath) {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the config
		data = expandEnvVars(data)

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Validate configuration
	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// findConfigFile searches for a configuration file in default locations
func findConfigFile() string {
	for _, path := range DefaultConfigPaths {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// fileExists checks if a file exists and is not a directory. Any stat
// failure, not just NotExist, counts as absent.
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	return err == nil && !info.IsDir()
}

// validate performs basic validation on the configuration
func validate(config *Config) error {
	if config.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if config.Session.AccessCookieMaxAge <= 0 {
		return fmt.Errorf("session.access_cookie_max_age must be positive")
	}
	if config.Session.RefreshCookieMaxAge <= 0 {
		return fmt.Errorf("session.refresh_cookie_max_age must be positive")
	}
	if config.Tokens.RefreshThreshold < 0 {
		return fmt.Errorf("tokens.refresh_threshold cannot be negative")
	}
	return nil
}
