package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/quizlane/quizlane/internal/apiclient"
	"github.com/quizlane/quizlane/internal/tokens"
)

// formatDuration formats a duration in a human-friendly way (e.g., "2 days, 3 hours and 45 minutes")
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string
	if days > 0 {
		if days == 1 {
			parts = append(parts, "1 day")
		} else {
			parts = append(parts, fmt.Sprintf("%d days", days))
		}
	}
	if hours > 0 {
		if hours == 1 {
			parts = append(parts, "1 hour")
		} else {
			parts = append(parts, fmt.Sprintf("%d hours", hours))
		}
	}
	if minutes > 0 {
		if minutes == 1 {
			parts = append(parts, "1 minute")
		} else {
			parts = append(parts, fmt.Sprintf("%d minutes", minutes))
		}
	}
	if len(parts) == 0 && seconds > 0 {
		if seconds == 1 {
			parts = append(parts, "1 second")
		} else {
			parts = append(parts, fmt.Sprintf("%d seconds", seconds))
		}
	}
	if len(parts) == 0 {
		return "0 seconds"
	}

	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	result := ""
	for i := 0; i < len(parts)-1; i++ {
		if i > 0 {
			result += ", "
		}
		result += parts[i]
	}
	result += " and " + parts[len(parts)-1]
	return result
}

func newAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication commands",
		Long:  `Manage authentication for the Quizlane CLI`,
	}

	cmd.AddCommand(newAuthLoginCommand())
	cmd.AddCommand(newAuthLogoutCommand())
	cmd.AddCommand(newAuthStatusCommand())
	cmd.AddCommand(newAuthTokenCommand())

	return cmd
}

// loginUser is the profile block the login endpoint returns inside the
// envelope, decoded only as far as the CLI needs it.
type loginUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type loginData struct {
	Token        string          `json:"token"`
	RefreshToken string          `json:"refreshToken"`
	User         json.RawMessage `json:"user"`
}

func newAuthLoginCommand() *cobra.Command {
	var (
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to the Quizlane API",
		Long: `Authenticate with the Quizlane API using email and password.

Credentials are stored per context under ~/.config/quizlane/.

Examples:
  # Login interactively
  quizlane auth login

  # Login with email (prompts for password)
  quizlane auth login --email user@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			cc.Logger.Debug("starting login", "email", email)

			var err error
			if email == "" || password == "" {
				email, password, err = promptCredentials(email)
				if err != nil {
					return err
				}
			}

			resp, err := cc.Client.Post(cmd.Context(), "/api/users/login", map[string]string{
				"email":    email,
				"password": password,
			})
			if err != nil {
				return fmt.Errorf("login request failed: %w", err)
			}

			var data loginData
			env, err := apiclient.DecodeEnvelope(resp, &data)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if resp.StatusCode != http.StatusOK || !env.Success || data.Token == "" {
				if env.Message != "" {
					return fmt.Errorf("login failed: %s", env.Message)
				}
				return fmt.Errorf("login failed: server returned status %d", resp.StatusCode)
			}

			var user loginUser
			if err := json.Unmarshal(data.User, &user); err != nil {
				cc.Logger.Warn("could not decode user profile", "error", err)
			}

			manager := cc.Client.Tokens()
			ctx := cmd.Context()
			if err := manager.SetTokens(ctx, data.Token, data.RefreshToken); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}
			if err := manager.SetFlags(ctx, flagsForUser(data.User, user.Role)); err != nil {
				return fmt.Errorf("failed to save session flags: %w", err)
			}

			fmt.Printf("✓ Successfully logged in as %s\n", user.Email)
			if ti := manager.Info(data.Token); ti != nil {
				fmt.Printf("  Token expires: %s\n", ti.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address (if not provided, will prompt)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (if not provided, will prompt)")

	return cmd
}

// flagsForUser derives the auxiliary session flags from the profile and role
// the login endpoint returned.
func flagsForUser(user json.RawMessage, role string) tokens.Flags {
	return tokens.Flags{
		User:         user,
		IsLoggedIn:   true,
		IsAdmin:      role == "admin" || role == "superadmin",
		IsSuperAdmin: role == "superadmin",
		IsModerator:  role == "moderator",
		IsInstructor: role == "instructor",
	}
}

func newAuthLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Logout from the Quizlane API",
		Long:  `Invalidate the server-side session and remove stored credentials`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)

			if _, err := LoadCredentials(); err != nil {
				return fmt.Errorf("not logged in")
			}

			// Best effort: the local teardown happens regardless
			if resp, err := cc.Client.Post(cmd.Context(), "/api/users/logout", nil); err == nil {
				resp.Body.Close()
			} else {
				cc.Logger.Debug("server-side logout failed", "error", err)
			}

			if err := RemoveCredentials(); err != nil {
				return fmt.Errorf("failed to remove credentials: %w", err)
			}

			fmt.Println("✓ Successfully logged out")
			return nil
		},
	}
}

func newAuthStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)

			creds, err := LoadCredentials()
			if err != nil {
				fmt.Println("Not logged in")
				return nil
			}

			var user loginUser
			if len(creds.User) > 0 {
				_ = json.Unmarshal(creds.User, &user)
			}
			if user.Email != "" {
				fmt.Printf("Logged in as: %s\n", user.Email)
			}
			if user.Role != "" {
				fmt.Printf("Role: %s\n", user.Role)
			}
			fmt.Printf("Context: %s\n", cc.Config.CurrentContext)

			ti := cc.Client.Tokens().Info(creds.AccessToken)
			if ti == nil {
				fmt.Println("⚠  Stored access token is malformed - run 'quizlane auth login'")
				return nil
			}

			fmt.Printf("Token expires: %s\n", ti.ExpiresAt.Local().Format("2006-01-02 15:04:05 MST"))
			if ti.Expired {
				fmt.Printf("⚠  Token expired %s ago - automatic refresh will be attempted on next request\n",
					formatDuration(ti.TTL))
			} else {
				fmt.Printf("✓  Valid for %s\n", formatDuration(ti.TTL))
			}

			return nil
		},
	}
}

func newAuthTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Display the current access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := LoadCredentials()
			if err != nil {
				return fmt.Errorf("not logged in")
			}

			fmt.Println(creds.AccessToken)
			return nil
		},
	}
}

func promptCredentials(email string) (string, string, error) {
	if email == "" {
		fmt.Print("Email: ")
		if _, err := fmt.Scanln(&email); err != nil {
			return "", "", fmt.Errorf("failed to read email: %w", err)
		}
	}

	// Password is read with echo disabled
	fmt.Print("Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", "", fmt.Errorf("failed to read password: %w", err)
	}

	return email, string(passwordBytes), nil
}
