package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/coregate/iscsid/internal/cli/prompt"
	"github.com/coregate/iscsid/internal/iscsi/adminapi"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage admin API bearer tokens",
}

var (
	tokenSecret     string
	tokenTargetName string
	tokenTTL        time.Duration
	tokenYes        bool
)

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Mint a new admin API bearer token",
	Long: `Mint a bearer token for iscsid's admin API.

The admin API has no server-side mint endpoint: every token is an HMAC
signature over a TTL, produced locally from the same secret the daemon
was configured with (config.yaml's admin_api.jwt_secret, or
ISCSID_JWT_SECRET). Anyone who can run this command already has the
secret and could mint their own token by hand; this just does the
signing.

Examples:
  ISCSID_JWT_SECRET=... iscsictl token issue
  iscsictl token issue --secret ... --ttl 2h --target-name iqn.2026-01.com.example:t0`,
	RunE: runTokenIssue,
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenSecret, "secret", os.Getenv("ISCSID_JWT_SECRET"), "HMAC signing secret (default: $ISCSID_JWT_SECRET)")
	tokenIssueCmd.Flags().StringVar(&tokenTargetName, "target-name", "", "Target IQN to embed in the token, for operator bookkeeping")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "Token validity period")
	tokenIssueCmd.Flags().BoolVarP(&tokenYes, "yes", "y", false, "Skip the confirmation prompt")

	tokenCmd.AddCommand(tokenIssueCmd)
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	if tokenSecret == "" {
		return fmt.Errorf("no signing secret provided; pass --secret or set ISCSID_JWT_SECRET")
	}

	confirmed, err := prompt.ConfirmWithForce(
		fmt.Sprintf("Mint a token valid for %s?", tokenTTL), tokenYes)
	if err != nil {
		return err
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}

	issuer := adminapi.NewTokenIssuer([]byte(tokenSecret), tokenTargetName, tokenTTL)
	signed, err := issuer.Issue()
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	fmt.Println(signed)
	return nil
}
