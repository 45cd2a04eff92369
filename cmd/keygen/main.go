// keygen generates the keys a HydroCred deployment needs: certifier signing keys for the certifier keyring
// and Ed25519 session keys (JWK) for issuing and verifying session tokens in development.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/hydrocred/hydrocred/internal/auth"
	"github.com/hydrocred/hydrocred/internal/certification"
	"github.com/hydrocred/hydrocred/internal/version"
)

// file naming convention - name.public.jwk and name.private.jwk
const (
	publicKeyFileNameFormat  = "%s.public.jwk"
	privateKeyFileNameFormat = "%s.private.jwk"
)

var (
	outputDir string
	name      string
	count     int
)

func main() {
	rootCmd := &cobra.Command{
		Use:               "keygen",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		Short:             "Key generator for HydroCred deployments",
		Long:              "Generate certifier signing keys and session token keys for HydroCred development and manual key configuration",
	}

	v := version.Get()
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	certifierCmd := &cobra.Command{
		Use:   "certifier",
		Short: "Generate certifier signing keys",
		Long: `Generate secp256k1 certifier keys in the certifier keyring format (<address>.key).

Point CERTIFIER_KEYS_DIR at the output directory and onboard the printed addresses as certifying authorities.`,
		RunE: runCertifier,
	}
	certifierCmd.Flags().StringVarP(&outputDir, "outputdir", "o", "", "Output directory for generated keys [required]")
	certifierCmd.Flags().IntVarP(&count, "count", "n", 1, "Number of keys to generate")
	certifierCmd.MarkFlagRequired("outputdir")

	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Generate a session token key pair",
		Long: `Generate an Ed25519 key pair in JWK format.

Put the public key in SESSION_KEYS_DIR and use the private key with 'hydrocredctl token' to issue development sessions.`,
		RunE: runSession,
	}
	sessionCmd.Flags().StringVarP(&outputDir, "outputdir", "o", "", "Output directory for generated keys [required]")
	sessionCmd.Flags().StringVarP(&name, "name", "n", "session", "File name prefix")
	sessionCmd.MarkFlagRequired("outputdir")

	rootCmd.AddCommand(certifierCmd, sessionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCertifier(cmd *cobra.Command, args []string) error {
	if count < 1 {
		return fmt.Errorf("invalid count: %d", count)
	}
	for i := 0; i < count; i++ {
		key, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate certifier key: %w", err)
		}
		address, path, err := certification.SaveKey(outputDir, key)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Certifier %s: %s\n", address.Hex(), path)
	}
	return nil
}

func runSession(cmd *cobra.Command, args []string) error {
	private, public, err := auth.GenerateSessionKey()
	if err != nil {
		return err
	}
	kid, _ := public.KeyID()

	publicPath := filepath.Join(outputDir, fmt.Sprintf(publicKeyFileNameFormat, name))
	if err := auth.SaveKey(public, publicPath); err != nil {
		return fmt.Errorf("failed to save public key: %w", err)
	}
	fmt.Printf("✓ Public JWK:  %s (kid: %s)\n", publicPath, kid)

	privatePath := filepath.Join(outputDir, fmt.Sprintf(privateKeyFileNameFormat, name))
	if err := auth.SaveKey(private, privatePath); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}
	fmt.Printf("✓ Private JWK: %s (kid: %s)\n", privatePath, kid)

	return nil
}
