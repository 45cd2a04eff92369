package workflow

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hydrocred/hydrocred/internal/audit"
	"github.com/hydrocred/hydrocred/internal/certification"
	"github.com/hydrocred/hydrocred/internal/evidence"
	"github.com/hydrocred/hydrocred/internal/identity"
	"github.com/hydrocred/hydrocred/internal/ledger"
	"github.com/hydrocred/hydrocred/internal/metrics"
	"github.com/hydrocred/hydrocred/internal/requests"
	"github.com/stretchr/testify/require"
)

var (
	kutch = identity.Jurisdiction{Country: "IN", State: "Gujarat", City: "Kutch"}
	surat = identity.Jurisdiction{Country: "IN", State: "Gujarat", City: "Surat"}

	testDomain = certification.Domain{
		Name:              "HydroCred",
		Version:           "1",
		ChainID:           31337,
		VerifyingContract: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
	}
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// countingSettler counts calls through to the wrapped settler.
type countingSettler struct {
	ledger.Settler
	mu      sync.Mutex
	settles int
}

func (s *countingSettler) Settle(ctx context.Context, p certification.Payload, sig []byte) (ledger.Receipt, error) {
	s.mu.Lock()
	s.settles++
	s.mu.Unlock()
	return s.Settler.Settle(ctx, p, sig)
}

func (s *countingSettler) Settles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settles
}

type fixture struct {
	ctl       *Controller
	store     *requests.MemoryStore
	directory *identity.MemoryDirectory
	sim       *ledger.Simulator
	settler   *countingSettler
	sink      *audit.MemorySink
	metrics   *metrics.Metrics
	clock     *fakeClock
	codec     certification.EIP712Codec

	producer     common.Address // verified producer in Kutch
	producer2    common.Address // verified producer in Kutch
	localAdmin   common.Address // verified local admin in Kutch, key held
	otherAdmin   common.Address // verified local admin in Surat, key held
	keylessAdmin common.Address // verified local admin in Kutch, no key held
	regional     common.Address // verified regional admin for Gujarat
	auditor      common.Address // verified auditor for IN
	buyer        common.Address
}

type fixtureOption func(*Config)

func withRejectDuplicates() fixtureOption {
	return func(c *Config) { c.RejectDuplicateBatches = true }
}

func withSettlementTimeout(d time.Duration) fixtureOption {
	return func(c *Config) { c.SettlementTimeout = d }
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	localKey, localAdmin := newKey(t)
	otherKey, otherAdmin := newKey(t)
	_, keylessAdmin := newKey(t)
	_, producer := newKey(t)
	_, producer2 := newKey(t)
	_, regional := newKey(t)
	_, auditor := newKey(t)
	_, buyer := newKey(t)

	directory := identity.NewMemoryDirectory(
		identity.Identity{Address: producer, Role: identity.RoleProducer, Jurisdiction: kutch, Verified: true},
		identity.Identity{Address: producer2, Role: identity.RoleProducer, Jurisdiction: kutch, Verified: true},
		identity.Identity{Address: localAdmin, Role: identity.RoleLocalAdmin, Jurisdiction: kutch, Verified: true},
		identity.Identity{Address: otherAdmin, Role: identity.RoleLocalAdmin, Jurisdiction: surat, Verified: true},
		identity.Identity{Address: keylessAdmin, Role: identity.RoleLocalAdmin, Jurisdiction: kutch, Verified: true},
		identity.Identity{Address: regional, Role: identity.RoleRegionalAdmin, Jurisdiction: identity.Jurisdiction{Country: "IN", State: "Gujarat"}, Verified: true},
		identity.Identity{Address: auditor, Role: identity.RoleAuditor, Jurisdiction: identity.Jurisdiction{Country: "IN"}, Verified: true},
		identity.Identity{Address: buyer, Role: identity.RoleBuyer, Jurisdiction: identity.Jurisdiction{Country: "IN"}, Verified: true},
	)

	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec := certification.NewEIP712Codec()
	sim := ledger.NewSimulator(codec, testDomain, localAdmin, otherAdmin)
	sim.SetClock(clock.Now)
	settler := &countingSettler{Settler: sim}

	store := requests.NewMemoryStore()
	sink := &audit.MemorySink{}
	m := metrics.New()

	cfg := Config{
		Domain:            testDomain,
		DefaultTTL:        time.Hour,
		MaxTTL:            24 * time.Hour,
		SettlementTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctl, err := NewController(Dependencies{
		Directory: directory,
		Store:     store,
		Codec:     codec,
		Keyring:   certification.NewKeyring(localKey, otherKey),
		Settler:   settler,
		Recorder:  audit.NewRecorder(sink),
		Metrics:   m,
	}, cfg)
	require.NoError(t, err)
	ctl.now = clock.Now

	return &fixture{
		ctl:          ctl,
		store:        store,
		directory:    directory,
		sim:          sim,
		settler:      settler,
		sink:         sink,
		metrics:      m,
		clock:        clock,
		codec:        codec,
		producer:     producer,
		producer2:    producer2,
		localAdmin:   localAdmin,
		otherAdmin:   otherAdmin,
		keylessAdmin: keylessAdmin,
		regional:     regional,
		auditor:      auditor,
		buyer:        buyer,
	}
}

func checksum(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// bundle returns evidence for a production batch; equal batch names give equal fingerprints.
func bundle(batch string) evidence.Bundle {
	meta, _ := json.Marshal(map[string]interface{}{"plantId": "GJ-KUTCH-07", "batchId": batch, "kg": 500})
	return evidence.Bundle{
		Metadata: meta,
		Documents: []evidence.Document{
			{Name: "meter.csv", MediaType: "text/csv", Checksum: checksum("meter readings " + batch)},
			{Name: "lab.pdf", MediaType: "application/pdf", Checksum: checksum("lab report " + batch)},
		},
	}
}

func (f *fixture) submit(t *testing.T, producer common.Address, batch string) requests.ProductionRequest {
	t.Helper()
	r, err := f.ctl.Submit(context.Background(), producer, 500, bundle(batch))
	require.NoError(t, err)
	return r
}

func (f *fixture) certified(t *testing.T, batch string, ttl time.Duration) requests.ProductionRequest {
	t.Helper()
	r := f.submit(t, f.producer, batch)
	res, err := f.ctl.Certify(context.Background(), r.ID, f.localAdmin, ttl)
	require.NoError(t, err)
	return res.Request
}

func (f *fixture) status(t *testing.T, id int64) requests.Status {
	t.Helper()
	r, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return r.Status
}

// lastEvent returns the most recent audit event.
func (f *fixture) lastEvent(t *testing.T) audit.Event {
	t.Helper()
	events := f.sink.Events()
	require.NotEmpty(t, events)
	return events[len(events)-1]
}

// metricsText returns the prometheus exposition of the controller's metrics.
func (f *fixture) metricsText(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
