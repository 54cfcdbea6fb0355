package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

func newAPICommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Make authenticated API requests",
		Long: `Issue raw requests against the Quizlane API with the stored credentials.

Tokens are attached, refreshed, and rotated automatically; responses are
printed as formatted JSON.

Examples:
  quizlane api get /api/courses
  quizlane api post /api/quizzes '{"title":"Midterm review"}'
  quizlane api delete /api/quizzes/42`,
	}

	cmd.AddCommand(newAPIVerbCommand(http.MethodGet, false))
	cmd.AddCommand(newAPIVerbCommand(http.MethodDelete, false))
	cmd.AddCommand(newAPIVerbCommand(http.MethodPost, true))
	cmd.AddCommand(newAPIVerbCommand(http.MethodPut, true))
	cmd.AddCommand(newAPIVerbCommand(http.MethodPatch, true))

	return cmd
}

func newAPIVerbCommand(method string, hasBody bool) *cobra.Command {
	use := strings.ToLower(method) + " PATH"
	args := cobra.ExactArgs(1)
	if hasBody {
		use += " [JSON_BODY]"
		args = cobra.RangeArgs(1, 2)
	}

	return &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Issue an authenticated %s request", method),
		Args:  args,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			cc := getCliContext(cmd)
			path := cmdArgs[0]

			var body interface{}
			if hasBody && len(cmdArgs) == 2 {
				// Validate the body is JSON before sending it
				var raw json.RawMessage
				if err := json.Unmarshal([]byte(cmdArgs[1]), &raw); err != nil {
					return fmt.Errorf("request body is not valid JSON: %w", err)
				}
				body = raw
			}

			req, err := cc.Client.NewRequest(cmd.Context(), method, path, body)
			if err != nil {
				return err
			}

			resp, err := cc.Client.Do(req)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("failed to read response: %w", err)
			}

			if err := printResponse(cmd, data); err != nil {
				return err
			}

			if resp.StatusCode >= 400 {
				return fmt.Errorf("server returned %s", resp.Status)
			}
			return nil
		},
	}
}

// printResponse pretty-prints JSON bodies and passes everything else through.
func printResponse(cmd *cobra.Command, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
	return nil
}
