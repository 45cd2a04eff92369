package cli

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hydrocred/hydrocred/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a development session token",
	Long: `Issue a session token for a wallet, signed with a private JWK generated by 'keygen session'.

The server accepts the token when the matching public key is in SESSION_KEYS_DIR and --issuer matches
SESSION_ISSUER. For development and testing only: in production sessions come from the wallet login service.

Example:
  hydrocredctl token --key ./keys/session.private.jwk --issuer https://login.hydrocred.test --wallet 0x00a1...`,
	RunE: runToken,
}

var (
	tokenKeyPath string
	tokenIssuer  string
	tokenWallet  string
	tokenTTL     time.Duration
)

func init() {
	tokenCmd.Flags().StringVarP(&tokenKeyPath, "key", "k", "", "Private session JWK (required)")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", "", "Token issuer (required)")
	tokenCmd.Flags().StringVarP(&tokenWallet, "wallet", "w", "", "Wallet address of the session (required)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")
	tokenCmd.MarkFlagRequired("key")
	tokenCmd.MarkFlagRequired("issuer")
	tokenCmd.MarkFlagRequired("wallet")
}

func runToken(cmd *cobra.Command, args []string) error {
	if !common.IsHexAddress(tokenWallet) {
		return fmt.Errorf("invalid wallet address %q", tokenWallet)
	}
	if tokenTTL <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	key, err := auth.LoadPrivateKey(tokenKeyPath)
	if err != nil {
		return err
	}
	token, err := auth.IssueToken(key, tokenIssuer, common.HexToAddress(tokenWallet), uuid.NewString(), time.Now(), tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
