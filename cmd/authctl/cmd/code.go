package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var issueCodeCmd = &cobra.Command{
	Use:   "issue-code ACCESS_TOKEN REFRESH_TOKEN",
	Short: "Exchange a credential pair for a single-use session code",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := json.Marshal(map[string]string{
			"access_token":  args[0],
			"refresh_token": args[1],
		})
		if err != nil {
			return err
		}

		resp, err := httpClient().Post(serverAddr+"/v1/session-codes",
			"application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("issue request failed: %w", err)
		}
		defer resp.Body.Close()

		return printResponse(cmd, resp)
	},
}

var resolveCodeCmd = &cobra.Command{
	Use:   "resolve-code CODE",
	Short: "Resolve a session code back into its credential pair (consumes it)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := json.Marshal(map[string]string{"code": args[0]})
		if err != nil {
			return err
		}

		resp, err := httpClient().Post(serverAddr+"/v1/session-codes/resolve",
			"application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("resolve request failed: %w", err)
		}
		defer resp.Body.Close()

		return printResponse(cmd, resp)
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the host runtime's current auth state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := httpClient().Get(serverAddr + "/v1/state")
		if err != nil {
			return fmt.Errorf("state request failed: %w", err)
		}
		defer resp.Body.Close()

		return printResponse(cmd, resp)
	},
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func printResponse(cmd *cobra.Command, resp *http.Response) error {
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	logger.Debug().Int("status", resp.StatusCode).Msg("server replied")

	var pretty bytes.Buffer
	if json.Indent(&pretty, payload, "", "  ") == nil {
		payload = pretty.Bytes()
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(payload))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(issueCodeCmd)
	rootCmd.AddCommand(resolveCodeCmd)
	rootCmd.AddCommand(stateCmd)
}
