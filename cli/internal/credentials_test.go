package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/quizlane/quizlane/internal/tokens"
)

// tempHome points the CLI's config and credentials lookups at a scratch
// directory for the duration of the test.
func tempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

// storedCredentialsPath is where the default "dev" context keeps its session.
func storedCredentialsPath(home string) string {
	return filepath.Join(home, ".config", "quizlane", "credentials-dev.json")
}

func TestFileStore_MissingFileIsEmptySession(t *testing.T) {
	tempHome(t)
	store := NewFileStore()
	ctx := context.Background()

	if got, err := store.AccessToken(ctx); err != nil || got != "" {
		t.Errorf("AccessToken = %q, %v; want empty session", got, err)
	}
	if got, err := store.RefreshToken(ctx); err != nil || got != "" {
		t.Errorf("RefreshToken = %q, %v; want empty session", got, err)
	}
}

func TestFileStore_TokensSurviveReload(t *testing.T) {
	tempHome(t)
	ctx := context.Background()

	if err := NewFileStore().SetTokens(ctx, "access-1", "refresh-1"); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}

	// A fresh store stands in for the next CLI invocation.
	reloaded := NewFileStore()
	if got, err := reloaded.AccessToken(ctx); err != nil || got != "access-1" {
		t.Errorf("AccessToken after reload = %q, %v", got, err)
	}
	if got, err := reloaded.RefreshToken(ctx); err != nil || got != "refresh-1" {
		t.Errorf("RefreshToken after reload = %q, %v", got, err)
	}
}

func TestFileStore_FlagsSurviveReloadAndKeepTokens(t *testing.T) {
	tempHome(t)
	ctx := context.Background()
	store := NewFileStore()

	if err := store.SetTokens(ctx, "access-1", "refresh-1"); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	err := store.SetFlags(ctx, tokens.Flags{
		User:         json.RawMessage(`{"name":"Ada"}`),
		IsLoggedIn:   true,
		IsInstructor: true,
	})
	if err != nil {
		t.Fatalf("SetFlags: %v", err)
	}

	creds, err := LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	flags := creds.Flags()
	if !flags.IsLoggedIn || !flags.IsInstructor || flags.IsAdmin {
		t.Errorf("unexpected flags after reload: %+v", flags)
	}
	if string(flags.User) != `{"name":"Ada"}` {
		t.Errorf("User = %s", flags.User)
	}
	if creds.AccessToken != "access-1" || creds.RefreshToken != "refresh-1" {
		t.Error("expected the flag write to preserve the token pair")
	}
}

func TestFileStore_RestrictedPermissions(t *testing.T) {
	home := tempHome(t)
	if err := NewFileStore().SetTokens(context.Background(), "access-1", "refresh-1"); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}

	info, err := os.Stat(storedCredentialsPath(home))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("credentials file mode = %o, want 600", perm)
	}
}

func TestFileStore_ClearRemovesFile(t *testing.T) {
	home := tempHome(t)
	ctx := context.Background()
	store := NewFileStore()

	if err := store.SetTokens(ctx, "access-1", "refresh-1"); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if _, err := os.Stat(storedCredentialsPath(home)); !os.IsNotExist(err) {
		t.Errorf("expected credentials file to be gone, got %v", err)
	}
	if got, err := store.AccessToken(ctx); err != nil || got != "" {
		t.Errorf("AccessToken after clear = %q, %v", got, err)
	}

	// Clearing an already-empty session is a no-op.
	if err := store.Clear(ctx); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}
