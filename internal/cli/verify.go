package cli

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hydrocred/hydrocred/internal/certification"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a signed certification",
	Long: `Verify the signature of a certification returned by the certify endpoint.

The input is the certify response JSON ({"domain": ..., "payload": ..., "signature": ...}).
The digest is recomputed from the domain and payload, the signer is recovered from the signature and
compared with the certifier named in the payload.

Example:
  hydrocredctl verify --file certification.json --certifier 0x9f2...`,
	RunE: runVerify,
}

var (
	certificationFile string
	expectedCertifier string
	expectedDomain    string
)

func init() {
	verifyCmd.Flags().StringVarP(&certificationFile, "file", "f", "", "Certification JSON file, - for stdin (required)")
	verifyCmd.Flags().StringVar(&expectedCertifier, "certifier", "", "Require the certification to be signed by this address")
	verifyCmd.Flags().StringVar(&expectedDomain, "domain", "", "Require the certification to be bound to this domain JSON file")
	verifyCmd.MarkFlagRequired("file")
}

// signedCertification is the subset of the certify response that carries the signature.
type signedCertification struct {
	Domain    certification.Domain  `json:"domain"`
	Payload   certification.Payload `json:"payload"`
	Signature string                `json:"signature"`
}

type verification struct {
	Digest common.Hash
	Signer common.Address
}

// verifyCertification checks data and returns the digest and the recovered signer.
func verifyCertification(data []byte, certifier *common.Address, domain *certification.Domain) (verification, error) {
	var signed signedCertification
	if err := json.Unmarshal(data, &signed); err != nil {
		return verification{}, fmt.Errorf("certification is not valid JSON: %w", err)
	}
	sig, err := certification.DecodeSignature(signed.Signature)
	if err != nil {
		return verification{}, err
	}
	if domain != nil && *domain != signed.Domain {
		return verification{}, fmt.Errorf("certification is bound to domain %s v%s (chain %d, contract %s), expected %s v%s (chain %d, contract %s)",
			signed.Domain.Name, signed.Domain.Version, signed.Domain.ChainID, signed.Domain.VerifyingContract.Hex(),
			domain.Name, domain.Version, domain.ChainID, domain.VerifyingContract.Hex())
	}

	codec := certification.NewEIP712Codec()
	encoded, err := codec.Encode(signed.Domain, signed.Payload)
	if err != nil {
		return verification{}, err
	}
	result := verification{Digest: crypto.Keccak256Hash(encoded)}

	if err := certification.Verify(codec, signed.Domain, signed.Payload, sig); err != nil {
		return result, err
	}
	result.Signer = signed.Payload.Certifier

	if certifier != nil && *certifier != result.Signer {
		return result, fmt.Errorf("certification was signed by %s, expected %s", result.Signer.Hex(), certifier.Hex())
	}
	return result, nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, certificationFile)
	if err != nil {
		return err
	}

	var certifier *common.Address
	if expectedCertifier != "" {
		if !common.IsHexAddress(expectedCertifier) {
			return fmt.Errorf("invalid certifier address %q", expectedCertifier)
		}
		a := common.HexToAddress(expectedCertifier)
		certifier = &a
	}

	var domain *certification.Domain
	if expectedDomain != "" {
		raw, err := readInput(cmd, expectedDomain)
		if err != nil {
			return err
		}
		var d certification.Domain
		if err := json.Unmarshal(raw, &d); err != nil {
			return fmt.Errorf("domain file is not valid JSON: %w", err)
		}
		domain = &d
	}

	result, err := verifyCertification(data, certifier, domain)
	if result.Digest != (common.Hash{}) {
		fmt.Fprintf(cmd.OutOrStdout(), "digest: %s\n", result.Digest.Hex())
	}
	if err != nil {
		color.New(color.FgRed).Fprintf(cmd.OutOrStdout(), "✗ %v\n", err)
		return err
	}
	color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ signed by %s\n", result.Signer.Hex())
	return nil
}
