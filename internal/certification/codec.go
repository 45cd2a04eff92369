package certification

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// SchemaVersion identifies the typed-data layout below. Changing the struct fields requires a new version.
const SchemaVersion = "Certification(address producer,uint256 amount,uint256 requestId,uint256 expiry,address certifier)"

const PrimaryType = "Certification"

// SignatureLength is the length of an r || s || v signature.
const SignatureLength = 65

var typedDataTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	PrimaryType: {
		{Name: "producer", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "requestId", Type: "uint256"},
		{Name: "expiry", Type: "uint256"},
		{Name: "certifier", Type: "address"},
	},
}

// Domain binds certifications to a deployment.
type Domain struct {
	Name              string         `json:"name"`
	Version           string         `json:"version"`
	ChainID           int64          `json:"chainId"`
	VerifyingContract common.Address `json:"verifyingContract"`
}

func (d Domain) validate() error {
	if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.Version) == "" {
		return NewValidationError("signing domain name and version are required")
	}
	if d.ChainID < 1 {
		return NewValidationError("signing domain chain id must be positive")
	}
	if d.VerifyingContract == (common.Address{}) {
		return NewValidationError("signing domain verifying contract is required")
	}
	return nil
}

// Payload is the signed certification tuple.
type Payload struct {
	Producer  common.Address `json:"producer"`
	Amount    int64          `json:"amount"`
	RequestID int64          `json:"requestId"`
	// Expiry is a unix timestamp in seconds.
	Expiry    int64          `json:"expiry"`
	Certifier common.Address `json:"certifier"`
}

func (p Payload) validate() error {
	if p.Producer == (common.Address{}) {
		return NewValidationError("payload producer is required")
	}
	if p.Certifier == (common.Address{}) {
		return NewValidationError("payload certifier is required")
	}
	if p.Amount <= 0 {
		return NewValidationError("payload amount must be positive")
	}
	if p.RequestID < 1 {
		return NewValidationError("payload request id must be positive")
	}
	if p.Expiry < 1 {
		return NewValidationError("payload expiry must be positive")
	}
	return nil
}

// Codec is the signature scheme used for certifications.
type Codec interface {
	// Encode returns the canonical bytes for the payload under the domain (the bytes that are hashed and signed).
	Encode(domain Domain, payload Payload) ([]byte, error)

	// Sign signs the payload with the signer's key.
	Sign(signer *Signer, domain Domain, payload Payload) ([]byte, error)

	// Recover returns the address that produced signature. It has no side effects.
	Recover(domain Domain, payload Payload, signature []byte) (common.Address, error)
}

// EIP712Codec implements Codec with EIP-712 typed structured data and secp256k1 recoverable signatures.
type EIP712Codec struct{}

func NewEIP712Codec() EIP712Codec {
	return EIP712Codec{}
}

// TypedData returns the EIP-712 typed data for the payload, suitable for wallets and external verifiers.
func TypedData(domain Domain, payload Payload) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       typedDataTypes,
		PrimaryType: PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           math.NewHexOrDecimal256(domain.ChainID),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"producer":  payload.Producer.Hex(),
			"amount":    strconv.FormatInt(payload.Amount, 10),
			"requestId": strconv.FormatInt(payload.RequestID, 10),
			"expiry":    strconv.FormatInt(payload.Expiry, 10),
			"certifier": payload.Certifier.Hex(),
		},
	}
}

// Encode returns "\x19\x01" || domainSeparator || hashStruct(payload).
func (EIP712Codec) Encode(domain Domain, payload Payload) ([]byte, error) {
	if err := domain.validate(); err != nil {
		return nil, err
	}
	if err := payload.validate(); err != nil {
		return nil, err
	}
	typedData := TypedData(domain, payload)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, WrapInternalError(err, "failed to hash signing domain")
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, WrapInternalError(err, "failed to hash certification payload")
	}

	encoded := make([]byte, 0, 2+len(domainSeparator)+len(messageHash))
	encoded = append(encoded, 0x19, 0x01)
	encoded = append(encoded, domainSeparator...)
	encoded = append(encoded, messageHash...)
	return encoded, nil
}

// Digest returns the keccak256 hash of the encoded payload.
func (c EIP712Codec) Digest(domain Domain, payload Payload) ([]byte, error) {
	encoded, err := c.Encode(domain, payload)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(encoded), nil
}

func (c EIP712Codec) Sign(signer *Signer, domain Domain, payload Payload) ([]byte, error) {
	if signer == nil || signer.key == nil {
		return nil, NewKeyManagementError("signer is not available")
	}
	if signer.address != payload.Certifier {
		return nil, NewValidationError(fmt.Sprintf("signer %s is not the payload certifier %s", signer.address.Hex(), payload.Certifier.Hex()))
	}
	digest, err := c.Digest(domain, payload)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, signer.key)
	if err != nil {
		return nil, WrapInternalError(err, "failed to sign certification")
	}
	// Ethereum convention: v is 27 or 28
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func (c EIP712Codec) Recover(domain Domain, payload Payload, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, NewSignatureError(fmt.Sprintf("signature must be %d bytes, got %d", SignatureLength, len(signature)))
	}
	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	// reject high-s signatures so each certification has a single valid encoding
	if !crypto.ValidateSignatureValues(sig[crypto.RecoveryIDOffset], r, s, true) {
		return common.Address{}, NewSignatureError("signature values are out of range")
	}

	digest, err := c.Digest(domain, payload)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, WrapSignatureError(err, "failed to recover signer")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify checks that signature was produced by the certifier named in the payload.
// A well-formed signature by any other key is rejected.
func Verify(codec Codec, domain Domain, payload Payload, signature []byte) error {
	signer, err := codec.Recover(domain, payload, signature)
	if err != nil {
		return err
	}
	if signer != payload.Certifier {
		return NewSignatureError(fmt.Sprintf("recovered signer %s does not match certifier %s", signer.Hex(), payload.Certifier.Hex()))
	}
	return nil
}

// EncodeSignature returns the 0x-prefixed hex form of a signature.
func EncodeSignature(signature []byte) string {
	return hexutil.Encode(signature)
}

// DecodeSignature parses a 0x-prefixed hex signature.
func DecodeSignature(s string) ([]byte, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return nil, WrapSignatureError(err, "signature is not valid 0x-prefixed hex")
	}
	if len(sig) != SignatureLength {
		return nil, NewSignatureError(fmt.Sprintf("signature must be %d bytes, got %d", SignatureLength, len(sig)))
	}
	return sig, nil
}
