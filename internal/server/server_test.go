package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrocred/hydrocred/internal/api"
	"github.com/hydrocred/hydrocred/internal/audit"
	"github.com/hydrocred/hydrocred/internal/auth"
	"github.com/hydrocred/hydrocred/internal/certification"
	"github.com/hydrocred/hydrocred/internal/config"
	"github.com/hydrocred/hydrocred/internal/evidence"
	"github.com/hydrocred/hydrocred/internal/identity"
	"github.com/hydrocred/hydrocred/internal/ledger"
	"github.com/hydrocred/hydrocred/internal/metrics"
	"github.com/hydrocred/hydrocred/internal/requests"
	"github.com/hydrocred/hydrocred/internal/server/handlers"
	"github.com/hydrocred/hydrocred/internal/services"
	"github.com/hydrocred/hydrocred/internal/workflow"
)

var (
	kutch = identity.Jurisdiction{Country: "IN", State: "Gujarat", City: "Kutch"}
	surat = identity.Jurisdiction{Country: "IN", State: "Gujarat", City: "Surat"}
)

// walletTokens accepts any wallet address as a bearer token.
type walletTokens struct{}

func (walletTokens) Verify(_ context.Context, token string) (auth.Session, error) {
	if !common.IsHexAddress(token) {
		return auth.Session{}, errors.New("not a wallet")
	}
	return auth.Session{Wallet: common.HexToAddress(token), ExpiresAt: time.Now().Add(time.Hour)}, nil
}

// memoryAuditLog serves the events of a MemorySink by request id.
type memoryAuditLog struct {
	*audit.MemorySink
}

func (m memoryAuditLog) ListByRequest(_ context.Context, requestID int64) ([]audit.Event, error) {
	var out []audit.Event
	for _, e := range m.Events() {
		if e.RequestID != nil && *e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

type readiness struct{ err error }

func (r readiness) IsDatabaseRunning(context.Context) (bool, error) { return r.err == nil, r.err }

type testServer struct {
	server *Server
	sim    *ledger.Simulator

	producer   common.Address
	localAdmin common.Address
	otherAdmin common.Address
	auditor    common.Address
	newcomer   common.Address
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func newTestServer(t *testing.T, adminAPI bool) *testServer {
	t.Helper()

	cfg := &config.ServerEnvironment{
		Environment:             "dev",
		MaxRequestSize:          1 << 20,
		SigningDomainName:       "HydroCred",
		SigningDomainVersion:    "1",
		ChainID:                 31337,
		VerifyingContract:       "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		DefaultCertificationTTL: time.Hour,
		MaxCertificationTTL:     24 * time.Hour,
		SettlementTimeout:       50 * time.Millisecond,
		EnableAdminAPI:          adminAPI,
	}

	localKey, localAdmin := newKey(t)
	otherKey, otherAdmin := newKey(t)
	_, producer := newKey(t)
	_, auditor := newKey(t)
	_, newcomer := newKey(t)

	directory := identity.NewMemoryDirectory(
		identity.Identity{Address: producer, Role: identity.RoleProducer, Jurisdiction: kutch, Verified: true},
		identity.Identity{Address: localAdmin, Role: identity.RoleLocalAdmin, Jurisdiction: kutch, Verified: true},
		identity.Identity{Address: otherAdmin, Role: identity.RoleLocalAdmin, Jurisdiction: surat, Verified: true},
		identity.Identity{Address: auditor, Role: identity.RoleAuditor, Jurisdiction: identity.Jurisdiction{Country: "IN"}, Verified: true},
		identity.Identity{Address: newcomer, Role: identity.RoleProducer, Jurisdiction: kutch},
	)

	codec := certification.NewEIP712Codec()
	domain := cfg.SigningDomain()
	keyring := certification.NewKeyring(localKey, otherKey)
	sim := ledger.NewSimulator(codec, domain, keyring.Addresses()...)
	sink := &audit.MemorySink{}
	recorder := audit.NewRecorder(sink)
	m := metrics.New()

	ctl, err := workflow.NewController(workflow.Dependencies{
		Directory: directory,
		Store:     requests.NewMemoryStore(),
		Codec:     codec,
		Keyring:   keyring,
		Settler:   sim,
		Recorder:  recorder,
		Metrics:   m,
	}, workflow.Config{
		Domain:            domain,
		DefaultTTL:        cfg.DefaultCertificationTTL,
		MaxTTL:            cfg.MaxCertificationTTL,
		SettlementTimeout: cfg.SettlementTimeout,
	})
	require.NoError(t, err)

	s := &Server{
		config: cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		router: chi.NewRouter(),
		services: &services.Services{
			Workflow:   ctl,
			Identities: identity.NewService(directory, directory, recorder),
			Settler:    sim,
			Metrics:    m,
			Certifiers: keyring.Addresses(),
		},
		verifier:    walletTokens{},
		metrics:     m,
		readiness:   readiness{},
		auditReader: memoryAuditLog{sink},
	}
	s.setupMiddleware()
	s.registerRoutes()

	return &testServer{
		server:     s,
		sim:        sim,
		producer:   producer,
		localAdmin: localAdmin,
		otherAdmin: otherAdmin,
		auditor:    auditor,
		newcomer:   newcomer,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, caller common.Address, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != (common.Address{}) {
		req.Header.Set("Authorization", "Bearer "+caller.Hex())
	}
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) api.ErrorCode {
	t.Helper()
	resp := decode[api.ErrorResponse](t, rec)
	require.NotEmpty(t, resp.Errors)
	return resp.Errors[0].ErrorCode
}

func submission(batch string) handlers.SubmitRequest {
	sum := sha256.Sum256([]byte("meter readings " + batch))
	meta, _ := json.Marshal(map[string]string{"plantId": "GJ-KUTCH-07", "batchId": batch})
	return handlers.SubmitRequest{
		Amount: 500,
		Evidence: evidence.Bundle{
			Metadata:  meta,
			Documents: []evidence.Document{{Name: "meter.csv", MediaType: "text/csv", Checksum: hex.EncodeToString(sum[:])}},
		},
	}
}

func (ts *testServer) submit(t *testing.T, batch string) int64 {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/requests", ts.producer, submission(batch))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[handlers.RequestResponse](t, rec)
	assert.Equal(t, fmt.Sprintf("/v1/requests/%d", created.RequestID), rec.Header().Get("Location"))
	return created.RequestID
}

func TestCertifyAndClaimOverHTTP(t *testing.T) {
	ts := newTestServer(t, false)
	id := ts.submit(t, "B1")

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/v1/requests/%d/certify", id), ts.localAdmin, handlers.CertifyRequest{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cert := decode[handlers.CertifyResponse](t, rec)
	assert.Equal(t, requests.StatusCertified, cert.Request.Status)
	assert.Equal(t, ts.localAdmin, cert.Payload.Certifier)
	assert.Equal(t, id, cert.Payload.RequestID)

	// the returned signature verifies against the published domain
	sig, err := certification.DecodeSignature(cert.Signature)
	require.NoError(t, err)
	require.NoError(t, certification.Verify(certification.NewEIP712Codec(), cert.Domain, cert.Payload, sig))

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/requests/%d/claim", id), ts.producer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	claim := decode[handlers.ClaimResponse](t, rec)
	assert.Equal(t, requests.StatusMinted, claim.Request.Status)
	assert.NotEmpty(t, claim.SettlementRef)
	assert.False(t, claim.Reconciled)

	// a second claim finds the request already minted
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/requests/%d/claim", id), ts.producer, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, api.ErrCodeInvalidState, errorCode(t, rec))

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/requests/%d/events", id), ts.auditor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	events := decode[[]audit.Event](t, rec)
	var actions []audit.Action
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []audit.Action{audit.ActionSubmit, audit.ActionCertify, audit.ActionClaimMint, audit.ActionClaimMint}, actions)
}

func TestForeignAuthorityCannotCertify(t *testing.T) {
	ts := newTestServer(t, false)
	id := ts.submit(t, "B1")

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/v1/requests/%d/certify", id), ts.otherAdmin, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, api.ErrCodeForbidden, errorCode(t, rec))

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/requests/%d", id), ts.producer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, requests.StatusPending, decode[handlers.RequestResponse](t, rec).Status)
}

func TestDuplicateBatchOverHTTP(t *testing.T) {
	ts := newTestServer(t, false)
	first := ts.submit(t, "B1")
	second := ts.submit(t, "B1")

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/v1/requests/%d/certify", first), ts.localAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/requests/%d/certify", second), ts.localAdmin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, api.ErrCodeDuplicateBatch, errorCode(t, rec))
}

func TestClaimTimeoutThenReconcile(t *testing.T) {
	ts := newTestServer(t, false)
	id := ts.submit(t, "B1")
	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/v1/requests/%d/certify", id), ts.localAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ts.sim.SetLatency(500 * time.Millisecond)
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/requests/%d/claim", id), ts.producer, nil)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code, rec.Body.String())
	resp := decode[api.ErrorResponse](t, rec)
	require.NotEmpty(t, resp.Errors)
	assert.Equal(t, api.ErrCodeSettlementUnknown, resp.Errors[0].ErrorCode)
	assert.True(t, resp.Errors[0].Retryable)

	ts.sim.SetLatency(0)
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/requests/%d/claim", id), ts.producer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	claim := decode[handlers.ClaimResponse](t, rec)
	assert.True(t, claim.Reconciled)
	assert.Equal(t, requests.StatusMinted, claim.Request.Status)
}

func TestRejectOverHTTP(t *testing.T) {
	ts := newTestServer(t, false)
	id := ts.submit(t, "B1")

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/v1/requests/%d/reject", id), ts.localAdmin, handlers.RejectRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/requests/%d/reject", id), ts.localAdmin, handlers.RejectRequest{Reason: "meter gap"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rejected := decode[handlers.RequestResponse](t, rec)
	assert.Equal(t, requests.StatusRejected, rejected.Status)
	assert.Equal(t, "meter gap", rejected.RejectionReason)

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/requests/%d/certify", id), ts.localAdmin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRequestErrors(t *testing.T) {
	ts := newTestServer(t, false)
	id := ts.submit(t, "B1")

	tests := []struct {
		name       string
		method     string
		path       string
		caller     common.Address
		body       interface{}
		wantStatus int
		wantCode   api.ErrorCode
	}{
		{"no session", http.MethodGet, "/v1/requests", common.Address{}, nil, http.StatusUnauthorized, api.ErrCodeUnauthorized},
		{"unknown request", http.MethodGet, "/v1/requests/999", ts.producer, nil, http.StatusNotFound, api.ErrCodeNotFound},
		{"malformed id", http.MethodGet, "/v1/requests/abc", ts.producer, nil, http.StatusBadRequest, api.ErrCodeMalformedRequest},
		{"foreign viewer", http.MethodGet, fmt.Sprintf("/v1/requests/%d", id), ts.otherAdmin, nil, http.StatusForbidden, api.ErrCodeForbidden},
		{"zero amount", http.MethodPost, "/v1/requests", ts.producer, handlers.SubmitRequest{Amount: 0, Evidence: submission("B2").Evidence}, http.StatusBadRequest, api.ErrCodeInvalidAmount},
		{"unverified producer", http.MethodPost, "/v1/requests", ts.newcomer, submission("B3"), http.StatusForbidden, api.ErrCodeForbidden},
		{"unknown field", http.MethodPost, "/v1/requests", ts.producer, map[string]interface{}{"amount": 5, "colour": "green"}, http.StatusBadRequest, api.ErrCodeMalformedRequest},
		{"claim by authority", http.MethodPost, fmt.Sprintf("/v1/requests/%d/claim", id), ts.localAdmin, nil, http.StatusForbidden, api.ErrCodeForbidden},
		{"claim before certification", http.MethodPost, fmt.Sprintf("/v1/requests/%d/claim", id), ts.producer, nil, http.StatusConflict, api.ErrCodeInvalidState},
		{"bad status filter", http.MethodGet, "/v1/requests?status=DONE", ts.producer, nil, http.StatusBadRequest, api.ErrCodeValidation},
		{"negative ttl", http.MethodPost, fmt.Sprintf("/v1/requests/%d/certify", id), ts.localAdmin, map[string]int64{"ttlSeconds": -1}, http.StatusBadRequest, api.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.caller, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}

func TestCertifyRejectsOutOfRangeTTL(t *testing.T) {
	ts := newTestServer(t, false)
	id := ts.submit(t, "B1")

	tests := []struct {
		name       string
		ttlSeconds int64
	}{
		{"overflows a duration", 36028797018967568},
		{"largest int64", math.MaxInt64},
		{"above configured maximum", int64((24*time.Hour + time.Second) / time.Second)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, fmt.Sprintf("/v1/requests/%d/certify", id), ts.localAdmin, map[string]int64{"ttlSeconds": tt.ttlSeconds})
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, api.ErrCodeValidation, errorCode(t, rec))
		})
	}

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/v1/requests/%d", id), ts.localAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, requests.StatusPending, decode[handlers.RequestResponse](t, rec).Status)
}

func TestListRequestsOverHTTP(t *testing.T) {
	ts := newTestServer(t, false)
	for _, batch := range []string{"B1", "B2", "B3"} {
		ts.submit(t, batch)
	}

	rec := ts.do(t, http.MethodGet, "/v1/requests?limit=2", ts.localAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[handlers.ListResponse](t, rec)
	require.Len(t, page.Requests, 2)
	require.NotNil(t, page.NextAfter)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/requests?limit=2&after=%d", *page.NextAfter), ts.localAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page = decode[handlers.ListResponse](t, rec)
	assert.Len(t, page.Requests, 1)
	assert.Nil(t, page.NextAfter)

	rec = ts.do(t, http.MethodGet, "/v1/requests?city=Kutch&state=Gujarat&country=IN", ts.otherAdmin, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/requests?status=pending", ts.auditor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[handlers.ListResponse](t, rec).Requests, 3)
}

func TestIdentityRoutes(t *testing.T) {
	ts := newTestServer(t, false)
	path := "/v1/identities/" + ts.newcomer.Hex()

	rec := ts.do(t, http.MethodGet, path, ts.newcomer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[handlers.IdentityResponse](t, rec).Verified)

	verified := true
	rec = ts.do(t, http.MethodPut, path+"/verification", ts.otherAdmin, handlers.VerificationRequest{Verified: &verified})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPut, path+"/verification", ts.localAdmin, handlers.VerificationRequest{Verified: &verified})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[handlers.IdentityResponse](t, rec).Verified)

	// once verified the producer may submit
	rec = ts.do(t, http.MethodPost, "/v1/requests", ts.newcomer, submission("N1"))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestAdminRoutes(t *testing.T) {
	_, wallet := newKey(t)
	onboard := handlers.OnboardRequest{
		WalletAddress: wallet.Hex(),
		Role:          string(identity.RoleProducer),
		Jurisdiction:  kutch,
	}

	disabled := newTestServer(t, false)
	rec := disabled.do(t, http.MethodPost, "/admin/identities", common.Address{}, onboard)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	enabled := newTestServer(t, true)
	rec = enabled.do(t, http.MethodPost, "/admin/identities", common.Address{}, onboard)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = enabled.do(t, http.MethodPost, "/admin/identities", common.Address{}, onboard)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPublicRoutes(t *testing.T) {
	ts := newTestServer(t, false)

	tests := []struct {
		path        string
		wantStatus  int
		wantContain string
	}{
		{"/health/live", http.StatusOK, "OK"},
		{"/health/ready", http.StatusOK, "ready"},
		{"/version", http.StatusOK, "hydrocred-server"},
		{"/metrics", http.StatusOK, "go_goroutines"},
		{"/.well-known/certification-domain.json", http.StatusOK, ts.localAdmin.Hex()},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, tt.path, common.Address{}, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantContain)
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		})
	}

	t.Run("not ready", func(t *testing.T) {
		ts.server.readiness = readiness{err: errors.New("connection refused")}
		ts.server.router = chi.NewRouter()
		ts.server.setupMiddleware()
		ts.server.registerRoutes()

		rec := ts.do(t, http.MethodGet, "/health/ready", common.Address{}, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
