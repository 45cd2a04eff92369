//go:build integration

package integration

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/hydrocred/hydrocred/internal/api"
	"github.com/hydrocred/hydrocred/internal/audit"
	"github.com/hydrocred/hydrocred/internal/auth"
	"github.com/hydrocred/hydrocred/internal/certification"
	"github.com/hydrocred/hydrocred/internal/database"
	"github.com/hydrocred/hydrocred/internal/evidence"
	"github.com/hydrocred/hydrocred/internal/identity"
	"github.com/hydrocred/hydrocred/internal/requests"
	"github.com/hydrocred/hydrocred/internal/requests/storetest"
	"github.com/hydrocred/hydrocred/internal/server/handlers"
)

var kutch = identity.Jurisdiction{Country: "IN", State: "Gujarat", City: "Kutch"}

func newWallet(t *testing.T) common.Address {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate wallet: %v", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey)
}

// call sends body as JSON and returns the status code and response body.
func (e *testEnv) call(t *testing.T, method, path, token string, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.baseURL+path, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return resp.StatusCode, data
}

func decodeInto(t *testing.T, data []byte, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, dst); err != nil {
		t.Fatalf("failed to decode response %s: %v", data, err)
	}
}

func (e *testEnv) onboard(t *testing.T, wallet common.Address, role identity.Role, j identity.Jurisdiction) {
	t.Helper()
	status, body := e.call(t, http.MethodPost, "/admin/identities", "", handlers.OnboardRequest{
		WalletAddress: wallet.Hex(),
		Role:          string(role),
		Jurisdiction:  j,
		Verified:      true,
	})
	if status != http.StatusCreated {
		t.Fatalf("onboard %s: expected 201, got %d: %s", wallet.Hex(), status, body)
	}
}

func bundle(batch string) evidence.Bundle {
	sum := sha256.Sum256([]byte("meter readings " + batch))
	meta, _ := json.Marshal(map[string]string{"plantId": "GJ-KUTCH-07", "batchId": batch})
	return evidence.Bundle{
		Metadata:  meta,
		Documents: []evidence.Document{{Name: "meter.csv", MediaType: "text/csv", Checksum: hex.EncodeToString(sum[:])}},
	}
}

func (e *testEnv) submit(t *testing.T, producer common.Address, batch string) handlers.RequestResponse {
	t.Helper()
	status, body := e.call(t, http.MethodPost, "/v1/requests", e.token(t, producer), handlers.SubmitRequest{Amount: 500, Evidence: bundle(batch)})
	if status != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d: %s", status, body)
	}
	var created handlers.RequestResponse
	decodeInto(t, body, &created)
	return created
}

func firstErrorCode(t *testing.T, body []byte) api.ErrorCode {
	t.Helper()
	var resp api.ErrorResponse
	decodeInto(t, body, &resp)
	if len(resp.Errors) == 0 {
		t.Fatalf("error response has no errors: %s", body)
	}
	return resp.Errors[0].ErrorCode
}

func TestPostgresStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) (requests.Store, func(*testing.T, identity.Identity)) {
		pool := setupTestDatabase(t)
		queries := database.New(pool)
		directory := identity.NewDatabaseDirectory(queries)
		register := func(t *testing.T, producer identity.Identity) {
			t.Helper()
			_, err := directory.Create(context.Background(), producer)
			if err != nil && identity.ErrorCodeOf(err) != identity.ErrCodeConflict {
				t.Fatalf("failed to register producer: %v", err)
			}
		}
		return requests.NewPostgresStore(queries), register
	})
}

func TestCertifyAndClaim(t *testing.T) {
	env := startInProcessServer(t, 1)
	defer env.shutdown()

	producer := newWallet(t)
	certifier := env.certifiers[0]
	env.onboard(t, producer, identity.RoleProducer, kutch)
	env.onboard(t, certifier, identity.RoleLocalAdmin, kutch)

	created := env.submit(t, producer, "B1")
	if created.Status != requests.StatusPending {
		t.Fatalf("expected PENDING, got %s", created.Status)
	}

	status, body := env.call(t, http.MethodPost, fmt.Sprintf("/v1/requests/%d/certify", created.RequestID), env.token(t, certifier), handlers.CertifyRequest{})
	if status != http.StatusOK {
		t.Fatalf("certify: expected 200, got %d: %s", status, body)
	}
	var cert handlers.CertifyResponse
	decodeInto(t, body, &cert)

	sig, err := certification.DecodeSignature(cert.Signature)
	if err != nil {
		t.Fatalf("invalid signature encoding: %v", err)
	}
	if err := certification.Verify(certification.NewEIP712Codec(), env.cfg.SigningDomain(), cert.Payload, sig); err != nil {
		t.Fatalf("certification does not verify against the server's domain: %v", err)
	}
	if cert.Payload.Producer != producer || cert.Payload.Amount != 500 || cert.Payload.RequestID != created.RequestID {
		t.Errorf("unexpected payload %+v", cert.Payload)
	}

	// the signature is persisted server side but never returned with the request
	row, err := env.queries.GetProductionRequest(context.Background(), created.RequestID)
	if err != nil {
		t.Fatalf("failed to read request row: %v", err)
	}
	if !bytes.Equal(row.CertificationSignature, sig) {
		t.Errorf("stored signature differs from the returned signature")
	}

	status, body = env.call(t, http.MethodPost, fmt.Sprintf("/v1/requests/%d/claim", created.RequestID), env.token(t, producer), nil)
	if status != http.StatusOK {
		t.Fatalf("claim: expected 200, got %d: %s", status, body)
	}
	var claim handlers.ClaimResponse
	decodeInto(t, body, &claim)
	if claim.Request.Status != requests.StatusMinted || claim.SettlementRef == "" {
		t.Errorf("unexpected claim response %+v", claim)
	}

	status, body = env.call(t, http.MethodGet, fmt.Sprintf("/v1/requests/%d/events", created.RequestID), env.token(t, certifier), nil)
	if status != http.StatusOK {
		t.Fatalf("events: expected 200, got %d: %s", status, body)
	}
	var events []audit.Event
	decodeInto(t, body, &events)
	want := []audit.Action{audit.ActionSubmit, audit.ActionCertify, audit.ActionClaimMint}
	if len(events) != len(want) {
		t.Fatalf("expected %d audit events, got %d: %s", len(want), len(events), body)
	}
	for i, e := range events {
		if e.Action != want[i] || e.Outcome != audit.OutcomeSuccess {
			t.Errorf("event %d: expected %s/success, got %s/%s", i, want[i], e.Action, e.Outcome)
		}
	}
}

func TestDuplicateBatch(t *testing.T) {
	env := startInProcessServer(t, 1)
	defer env.shutdown()

	producer := newWallet(t)
	other := newWallet(t)
	certifier := env.certifiers[0]
	env.onboard(t, producer, identity.RoleProducer, kutch)
	env.onboard(t, other, identity.RoleProducer, kutch)
	env.onboard(t, certifier, identity.RoleLocalAdmin, kutch)

	first := env.submit(t, producer, "B1")
	second := env.submit(t, other, "B1")
	if first.EvidenceFingerprint != second.EvidenceFingerprint {
		t.Fatalf("same batch produced different fingerprints")
	}

	token := env.token(t, certifier)
	status, body := env.call(t, http.MethodPost, fmt.Sprintf("/v1/requests/%d/certify", first.RequestID), token, nil)
	if status != http.StatusOK {
		t.Fatalf("certify first: expected 200, got %d: %s", status, body)
	}

	status, body = env.call(t, http.MethodPost, fmt.Sprintf("/v1/requests/%d/certify", second.RequestID), token, nil)
	if status != http.StatusConflict {
		t.Fatalf("certify second: expected 409, got %d: %s", status, body)
	}
	if code := firstErrorCode(t, body); code != api.ErrCodeDuplicateBatch {
		t.Errorf("expected error code %d, got %d", api.ErrCodeDuplicateBatch, code)
	}

	row, err := env.queries.GetProductionRequest(context.Background(), second.RequestID)
	if err != nil {
		t.Fatalf("failed to read request row: %v", err)
	}
	if row.Status != string(requests.StatusPending) {
		t.Errorf("expected the losing request to stay PENDING, got %s", row.Status)
	}
}

func TestForeignAuthority(t *testing.T) {
	env := startInProcessServer(t, 1)
	defer env.shutdown()

	producer := newWallet(t)
	certifier := env.certifiers[0]
	env.onboard(t, producer, identity.RoleProducer, kutch)
	env.onboard(t, certifier, identity.RoleLocalAdmin, identity.Jurisdiction{Country: "IN", State: "Gujarat", City: "Surat"})

	created := env.submit(t, producer, "B1")
	status, body := env.call(t, http.MethodPost, fmt.Sprintf("/v1/requests/%d/certify", created.RequestID), env.token(t, certifier), nil)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", status, body)
	}
}

func TestSessionRequired(t *testing.T) {
	env := startInProcessServer(t, 1)
	defer env.shutdown()

	producer := newWallet(t)
	env.onboard(t, producer, identity.RoleProducer, kutch)

	// a token signed with a key the server does not know
	foreignKey, _, err := auth.GenerateSessionKey()
	if err != nil {
		t.Fatal(err)
	}
	foreignToken, err := auth.IssueToken(foreignKey, sessionIssuer, producer, uuid.NewString(), time.Now(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"unknown key", foreignToken},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.call(t, http.MethodGet, "/v1/requests", tt.token, nil)
			if status != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d: %s", status, body)
			}
		})
	}

	status, body := env.call(t, http.MethodGet, "/v1/requests", env.token(t, producer), nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 with a valid session, got %d: %s", status, body)
	}
}
