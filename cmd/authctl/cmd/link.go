package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"go.peddle.app/authcore/deeplink"
	"go.peddle.app/authcore/domain"
)

var parseLinkCmd = &cobra.Command{
	Use:   "parse-link URL",
	Short: "Classify a callback link locally without contacting any host",
	Long: `Runs the deep-link credential extraction on a URL and reports which
credential form it carries. Secrets are printed as fingerprints only.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := deeplink.Extract(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch c := creds.(type) {
		case domain.SessionCode:
			fmt.Fprintf(out, "session_code (fingerprint %s)\n", domain.Fingerprint(c.Code))
		case domain.DirectTokens:
			fmt.Fprintf(out, "direct_tokens (access %s, refresh %s)\n",
				domain.Fingerprint(c.AccessToken), domain.Fingerprint(c.RefreshToken))
		case domain.OtpHash:
			fmt.Fprintf(out, "otp_hash type=%s (fingerprint %s)\n", c.Type, domain.Fingerprint(c.TokenHash))
		case domain.NoCredentials:
			fmt.Fprintln(out, "no credentials")
		default:
			fmt.Fprintf(out, "unrecognized credential form %T\n", c)
		}
		return nil
	},
}

var handleLinkCmd = &cobra.Command{
	Use:   "handle-link URL",
	Short: "Feed a callback link through the host runtime's link router",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := json.Marshal(map[string]string{"url": args[0]})
		if err != nil {
			return err
		}

		resp, err := httpClient().Post(serverAddr+"/v1/links/handle",
			"application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("handle-link request failed: %w", err)
		}
		defer resp.Body.Close()

		return printResponse(cmd, resp)
	},
}

func init() {
	rootCmd.AddCommand(parseLinkCmd)
	rootCmd.AddCommand(handleLinkCmd)
}
