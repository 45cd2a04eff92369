package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrocred/hydrocred/internal/auth"
	"github.com/hydrocred/hydrocred/internal/certification"
	"github.com/hydrocred/hydrocred/internal/requests"
)

var testDomain = certification.Domain{
	Name:              "HydroCred",
	Version:           "1",
	ChainID:           31337,
	VerifyingContract: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
}

// signedFixture returns a certify response body signed by a fresh certifier key.
func signedFixture(t *testing.T) ([]byte, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	certifier := crypto.PubkeyToAddress(key.PublicKey)

	payload := certification.Payload{
		Producer:  common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Amount:    500,
		RequestID: 42,
		Expiry:    1900000000,
		Certifier: certifier,
	}
	codec := certification.NewEIP712Codec()
	var sig []byte
	err = certification.NewKeyring(key).WithSigner(certifier, func(s *certification.Signer) error {
		var err error
		sig, err = codec.Sign(s, testDomain, payload)
		return err
	})
	require.NoError(t, err)

	data, err := json.Marshal(signedCertification{
		Domain:    testDomain,
		Payload:   payload,
		Signature: certification.EncodeSignature(sig),
	})
	require.NoError(t, err)
	return data, certifier
}

func TestVerifyCertification(t *testing.T) {
	data, certifier := signedFixture(t)
	other := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	otherDomain := testDomain
	otherDomain.ChainID = 1

	var tampered signedCertification
	require.NoError(t, json.Unmarshal(data, &tampered))
	tampered.Payload.Amount = 5000
	tamperedData, err := json.Marshal(tampered)
	require.NoError(t, err)

	tests := []struct {
		name      string
		data      []byte
		certifier *common.Address
		domain    *certification.Domain
		wantErr   string
	}{
		{name: "valid", data: data},
		{name: "expected certifier", data: data, certifier: &certifier},
		{name: "expected domain", data: data, domain: &testDomain},
		{name: "other certifier", data: data, certifier: &other, wantErr: "expected"},
		{name: "other domain", data: data, domain: &otherDomain, wantErr: "bound to domain"},
		{name: "tampered payload", data: tamperedData, wantErr: "does not match certifier"},
		{name: "not json", data: []byte("{"), wantErr: "not valid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := verifyCertification(tt.data, tt.certifier, tt.domain)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, certifier, result.Signer)
			assert.NotEqual(t, common.Hash{}, result.Digest)
		})
	}
}

func TestFingerprintBundle(t *testing.T) {
	a := `{"metadata":{"plantId":"GJ-KUTCH-07","batchId":"B1"},"documents":[
		{"name":"meter.csv","checksum":"aa00000000000000000000000000000000000000000000000000000000000001"},
		{"name":"lab.pdf","checksum":"bb00000000000000000000000000000000000000000000000000000000000002"}]}`
	// same batch: documents reordered, renamed, keys reordered
	b := `{"documents":[
		{"name":"lab-report.pdf","checksum":"BB00000000000000000000000000000000000000000000000000000000000002"},
		{"name":"meter.csv","checksum":"aa00000000000000000000000000000000000000000000000000000000000001"}],
		"metadata":{"batchId":"B1","plantId":"GJ-KUTCH-07"}}`

	fa, err := fingerprintBundle([]byte(a))
	require.NoError(t, err)
	fb, err := fingerprintBundle([]byte(b))
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)

	_, err = fingerprintBundle([]byte(`{"metadata":{},"documents":[]}`))
	assert.Error(t, err)
}

func TestFingerprintCommandReadsStdin(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(`{"metadata":{"batchId":"B1"},"documents":[{"name":"m","checksum":"aa00000000000000000000000000000000000000000000000000000000000001"}]}`))
	rootCmd.SetArgs([]string{"fingerprint", "--file", "-"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Len(t, strings.TrimSpace(out.String()), 64)
}

func TestTokenCommandIssuesVerifiableToken(t *testing.T) {
	private, public, err := auth.GenerateSessionKey()
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, auth.SaveKey(public, filepath.Join(dir, "session.public.jwk")))
	privatePath := filepath.Join(t.TempDir(), "session.private.jwk")
	require.NoError(t, auth.SaveKey(private, privatePath))

	wallet := "0x00000000000000000000000000000000000000A1"
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"token", "--key", privatePath, "--issuer", "https://login.hydrocred.test", "--wallet", wallet, "--ttl", "10m"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())

	v, err := auth.NewVerifier(context.Background(), auth.VerifierConfig{
		Issuer:       "https://login.hydrocred.test",
		KeysDir:      dir,
		SkipJWKCache: true,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	session, err := v.Verify(context.Background(), strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(wallet), session.Wallet)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), session.ExpiresAt, time.Minute)
}

func TestFetchRequest(t *testing.T) {
	mockedClient := &http.Client{}
	httpmock.ActivateNonDefault(mockedClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	client := newAPIClient("http://hydrocred.test", "session-token", mockedClient)

	httpmock.RegisterResponder("GET", "http://hydrocred.test/v1/requests/42",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer session-token", req.Header.Get("Authorization"))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
				"requestId":           42,
				"producer":            "0x00000000000000000000000000000000000000A1",
				"amount":              500,
				"status":              "CERTIFIED",
				"evidenceFingerprint": "ab",
			})
		})
	httpmock.RegisterResponder("GET", "http://hydrocred.test/v1/requests/7",
		func(req *http.Request) (*http.Response, error) {
			return httpmock.NewJsonResponse(http.StatusForbidden, map[string]interface{}{
				"statusCode": 403,
				"errors": []map[string]interface{}{{
					"errorCode":        8002,
					"errorCodeText":    "Forbidden",
					"errorCodeMessage": "request 7 is outside the viewer's jurisdiction",
				}},
			})
		})

	r, err := fetchRequest(client, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), r.RequestID)
	assert.Equal(t, requests.StatusCertified, r.Status)

	var out bytes.Buffer
	printRequest(&out, r)
	assert.Contains(t, out.String(), "CERTIFIED")

	_, err = fetchRequest(client, 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside the viewer's jurisdiction")
}
