package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/quizlane/quizlane/internal/tokens"
)

// Credentials is the on-disk session state: the credential pair plus the
// auxiliary flags written at login, one file per context.
type Credentials struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	User         json.RawMessage `json:"user,omitempty"`
	IsLoggedIn   bool            `json:"isLoggedIn"`
	IsAdmin      bool            `json:"isAdmin"`
	IsSuperAdmin bool            `json:"isSuperAdmin"`
	IsModerator  bool            `json:"isModerator"`
	IsInstructor bool            `json:"isInstructor"`
}

// Flags returns the auxiliary flags portion of the credentials.
func (c *Credentials) Flags() tokens.Flags {
	return tokens.Flags{
		User:         c.User,
		IsLoggedIn:   c.IsLoggedIn,
		IsAdmin:      c.IsAdmin,
		IsSuperAdmin: c.IsSuperAdmin,
		IsModerator:  c.IsModerator,
		IsInstructor: c.IsInstructor,
	}
}

func (c *Credentials) setFlags(flags tokens.Flags) {
	c.User = flags.User
	c.IsLoggedIn = flags.IsLoggedIn
	c.IsAdmin = flags.IsAdmin
	c.IsSuperAdmin = flags.IsSuperAdmin
	c.IsModerator = flags.IsModerator
	c.IsInstructor = flags.IsInstructor
}

// NewFileStore creates a file-backed token store for the current context.
func NewFileStore() tokens.Store {
	return &FileStore{}
}

// FileStore implements tokens.Store over the per-context credentials file.
// Every read hits the disk so concurrent CLI invocations observe each
// other's rotations.
type FileStore struct{}

func (f *FileStore) AccessToken(ctx context.Context) (string, error) {
	creds, err := loadOrEmpty()
	if err != nil {
		return "", err
	}
	return creds.AccessToken, nil
}

func (f *FileStore) RefreshToken(ctx context.Context) (string, error) {
	creds, err := loadOrEmpty()
	if err != nil {
		return "", err
	}
	return creds.RefreshToken, nil
}

func (f *FileStore) SetTokens(ctx context.Context, access, refresh string) error {
	creds, err := loadOrEmpty()
	if err != nil {
		return err
	}
	creds.AccessToken = access
	creds.RefreshToken = refresh
	return SaveCredentials(creds)
}

func (f *FileStore) SetFlags(ctx context.Context, flags tokens.Flags) error {
	creds, err := loadOrEmpty()
	if err != nil {
		return err
	}
	creds.setFlags(flags)
	return SaveCredentials(creds)
}

func (f *FileStore) Clear(ctx context.Context) error {
	return RemoveCredentials()
}

// loadOrEmpty loads the credentials file, treating a missing file as an
// empty session rather than an error.
func loadOrEmpty() (*Credentials, error) {
	creds, err := LoadCredentials()
	if err != nil {
		if os.IsNotExist(err) {
			return &Credentials{}, nil
		}
		return nil, err
	}
	return creds, nil
}

// credentialsPath returns the path to the credentials file for the current context
func credentialsPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	config, err := LoadConfig()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}

	// Use context-specific credentials file
	configDir := filepath.Join(homeDir, ".config", "quizlane")
	filename := fmt.Sprintf("credentials-%s.json", config.CurrentContext)
	return filepath.Join(configDir, filename), nil
}

// SaveCredentials saves credentials to disk
func SaveCredentials(creds *Credentials) error {
	path, err := credentialsPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	// Restricted permissions, the file holds live credentials
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}

	return nil
}

// LoadCredentials loads credentials from disk. A missing file surfaces as an
// os.IsNotExist error so callers can distinguish "not logged in".
func LoadCredentials() (*Credentials, error) {
	path, err := credentialsPath()
	if err != nil {
		return nil, err
	}
	slog.Debug("loading credentials from file",
		slog.String("component", "cli-creds"),
		slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	return &creds, nil
}

// RemoveCredentials removes the credentials file
func RemoveCredentials() error {
	path, err := credentialsPath()
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}

	return nil
}
