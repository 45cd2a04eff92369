package cli

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hydrocred/hydrocred/internal/evidence"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Compute the batch fingerprint of an evidence bundle",
	Long: `Validate an evidence bundle and print its fingerprint.

Two bundles with the same fingerprint describe the same production batch and only one of the requests
that carry them can be certified.

Example:
  hydrocredctl fingerprint --file evidence.json`,
	RunE: runFingerprint,
}

var bundleFile string

func init() {
	fingerprintCmd.Flags().StringVarP(&bundleFile, "file", "f", "", "Evidence bundle JSON file, - for stdin (required)")
	fingerprintCmd.MarkFlagRequired("file")
}

func fingerprintBundle(data []byte) (string, error) {
	var b evidence.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return "", fmt.Errorf("evidence bundle is not valid JSON: %w", err)
	}
	return evidence.Fingerprint(b)
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, bundleFile)
	if err != nil {
		return err
	}
	fp, err := fingerprintBundle(data)
	if err != nil {
		color.New(color.FgRed).Fprintf(cmd.OutOrStdout(), "✗ %v\n", err)
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), fp)
	return nil
}
