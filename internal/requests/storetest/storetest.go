// Package storetest holds the behavioural tests every requests.Store implementation must pass.
// It is used by the in-memory store's unit tests and by the Postgres integration tests.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hydrocred/hydrocred/internal/evidence"
	"github.com/hydrocred/hydrocred/internal/identity"
	"github.com/hydrocred/hydrocred/internal/requests"
)

// Factory returns a fresh, empty store and a function that registers a producer identity
// (stores with referential integrity need the producer to exist).
type Factory func(t *testing.T) (requests.Store, func(t *testing.T, producer identity.Identity))

var (
	home = identity.Jurisdiction{Country: "IN", State: "Gujarat", City: "Kutch"}

	producerA = identity.Identity{Address: common.HexToAddress("0x00000000000000000000000000000000000000a1"), Role: identity.RoleProducer, Jurisdiction: home, Verified: true}
	producerB = identity.Identity{Address: common.HexToAddress("0x00000000000000000000000000000000000000b2"), Role: identity.RoleProducer, Jurisdiction: home, Verified: true}
	certifier = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func fingerprint(n int) string {
	return fmt.Sprintf("%064x", n)
}

func newRequest(producer identity.Identity, amount int64, fp string) requests.NewRequest {
	return requests.NewRequest{
		Producer:             producer.Address,
		ProducerJurisdiction: producer.Jurisdiction,
		Amount:               amount,
		EvidenceFingerprint:  fp,
		Evidence: evidence.Bundle{
			Metadata:  json.RawMessage(`{"batchId":"test"}`),
			Documents: []evidence.Document{{Name: "meter.csv", Checksum: fp}},
		},
	}
}

func certification(expiry time.Time) requests.Certification {
	return requests.Certification{
		Certifier: certifier,
		Signature: []byte("signature-bytes"),
		Expiry:    expiry,
	}
}

func wantCode(t *testing.T, err error, code requests.ErrorCode) {
	t.Helper()
	if got := requests.ErrorCodeOf(err); got != code {
		t.Fatalf("expected error code %q, got %q (%v)", code, got, err)
	}
}

func setup(t *testing.T, factory Factory) requests.Store {
	t.Helper()
	store, register := factory(t)
	register(t, producerA)
	register(t, producerB)
	return store
}

// Run executes the store behaviour tests against stores produced by factory.
func Run(t *testing.T, factory Factory) {
	t.Run("create assigns increasing ids", func(t *testing.T) { testCreate(t, setup(t, factory)) })
	t.Run("create rejects non positive amounts", func(t *testing.T) { testInvalidAmount(t, setup(t, factory)) })
	t.Run("get missing request", func(t *testing.T) {
		_, err := setup(t, factory).Get(context.Background(), 999999)
		wantCode(t, err, requests.ErrCodeNotFound)
	})
	t.Run("state machine", func(t *testing.T) { testStateMachine(t, factory) })
	t.Run("duplicate batch", func(t *testing.T) { testDuplicateBatch(t, setup(t, factory)) })
	t.Run("concurrent certification of one fingerprint", func(t *testing.T) { testConcurrentCertify(t, setup(t, factory)) })
	t.Run("mint expiry", func(t *testing.T) { testMintExpiry(t, setup(t, factory)) })
	t.Run("reject", func(t *testing.T) { testReject(t, setup(t, factory)) })
	t.Run("list", func(t *testing.T) { testList(t, setup(t, factory)) })
	t.Run("evidence is not shared with callers", func(t *testing.T) { testEvidenceIsolation(t, setup(t, factory)) })
}

func testEvidenceIsolation(t *testing.T, store requests.Store) {
	ctx := context.Background()

	in := newRequest(producerA, 500, fingerprint(40))
	created, err := store.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	scribble := func(b evidence.Bundle) {
		for i := range b.Metadata {
			b.Metadata[i] = 'X'
		}
		for i := range b.Documents {
			b.Documents[i].Name = "tampered.csv"
		}
	}
	scribble(in.Evidence)
	scribble(created.Evidence)

	fetched, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	scribble(fetched.Evidence)

	stored, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	var meta map[string]string
	if err := json.Unmarshal(stored.Evidence.Metadata, &meta); err != nil {
		t.Fatalf("stored metadata is no longer valid JSON: %v (%s)", err, stored.Evidence.Metadata)
	}
	if meta["batchId"] != "test" {
		t.Errorf("expected stored metadata batchId test, got %+v", meta)
	}
	if len(stored.Evidence.Documents) != 1 || stored.Evidence.Documents[0].Name != "meter.csv" {
		t.Errorf("expected the stored document list to be unchanged, got %+v", stored.Evidence.Documents)
	}
}

func testCreate(t *testing.T, store requests.Store) {
	ctx := context.Background()

	first, err := store.Create(ctx, newRequest(producerA, 500, fingerprint(1)))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if first.Status != requests.StatusPending {
		t.Errorf("expected PENDING, got %s", first.Status)
	}
	if first.CertificationSignature != nil {
		t.Error("a pending request must not carry a signature")
	}
	if first.ProducerJurisdiction != home {
		t.Errorf("expected the producer jurisdiction to be recorded, got %+v", first.ProducerJurisdiction)
	}

	if _, err := store.TransitionToRejected(ctx, first.ID, "incomplete evidence"); err != nil {
		t.Fatalf("TransitionToRejected() error = %v", err)
	}

	second, err := store.Create(ctx, newRequest(producerA, 500, fingerprint(1)))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if second.ID <= first.ID {
		t.Errorf("expected ids to increase and never be reused: %d then %d", first.ID, second.ID)
	}

	got, err := store.Get(ctx, second.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Amount != 500 || got.Producer != producerA.Address || got.EvidenceFingerprint != fingerprint(1) {
		t.Errorf("unexpected stored request: %+v", got)
	}
}

func testInvalidAmount(t *testing.T, store requests.Store) {
	for _, amount := range []int64{0, -1, -500} {
		_, err := store.Create(context.Background(), newRequest(producerA, amount, fingerprint(2)))
		wantCode(t, err, requests.ErrCodeInvalidAmount)
	}
}

// testStateMachine attempts every transition from every status.
func testStateMachine(t *testing.T, factory Factory) {
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	// drive a fresh request into the given status
	reach := func(t *testing.T, store requests.Store, status requests.Status, n int) int64 {
		r, err := store.Create(ctx, newRequest(producerA, 100, fingerprint(100+n)))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		switch status {
		case requests.StatusCertified:
			_, err = store.TransitionToCertified(ctx, r.ID, certification(future))
		case requests.StatusMinted:
			if _, err = store.TransitionToCertified(ctx, r.ID, certification(future)); err == nil {
				_, err = store.TransitionToMinted(ctx, r.ID, requests.Settlement{Ref: "settlement-1"}, time.Now())
			}
		case requests.StatusRejected:
			_, err = store.TransitionToRejected(ctx, r.ID, "bad evidence")
		}
		if err != nil {
			t.Fatalf("failed to reach %s: %v", status, err)
		}
		return r.ID
	}

	attempt := func(store requests.Store, id int64, to requests.Status) (requests.ProductionRequest, error) {
		switch to {
		case requests.StatusCertified:
			return store.TransitionToCertified(ctx, id, certification(future))
		case requests.StatusMinted:
			return store.TransitionToMinted(ctx, id, requests.Settlement{Ref: "settlement-2"}, time.Now())
		case requests.StatusRejected:
			return store.TransitionToRejected(ctx, id, "policy")
		}
		return requests.ProductionRequest{}, fmt.Errorf("unsupported target %s", to)
	}

	all := []requests.Status{requests.StatusPending, requests.StatusCertified, requests.StatusMinted, requests.StatusRejected}
	targets := []requests.Status{requests.StatusCertified, requests.StatusMinted, requests.StatusRejected}

	n := 0
	for _, from := range all {
		for _, to := range targets {
			n++
			from, to, n := from, to, n
			t.Run(fmt.Sprintf("%s to %s", from, to), func(t *testing.T) {
				store := setup(t, factory)
				id := reach(t, store, from, n)

				updated, err := attempt(store, id, to)
				if requests.CanTransition(from, to) {
					if err != nil {
						t.Fatalf("expected %s -> %s to succeed, got %v", from, to, err)
					}
					if updated.Status != to {
						t.Errorf("expected status %s, got %s", to, updated.Status)
					}
					if (updated.CertificationSignature != nil) != to.HoldsCertification() {
						t.Errorf("signature presence does not match status %s", to)
					}
					return
				}
				wantCode(t, err, requests.ErrCodeInvalidState)

				unchanged, err := store.Get(ctx, id)
				if err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				if unchanged.Status != from {
					t.Errorf("failed transition changed status from %s to %s", from, unchanged.Status)
				}
			})
		}
	}
}

func testDuplicateBatch(t *testing.T, store requests.Store) {
	ctx := context.Background()
	future := time.Now().Add(time.Hour)
	fp := fingerprint(3)

	r1, err := store.Create(ctx, newRequest(producerA, 500, fp))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	r2, err := store.Create(ctx, newRequest(producerB, 500, fp))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if conflict, err := store.HasConflict(ctx, fp, r2.ID); err != nil || conflict {
		t.Fatalf("HasConflict() before certification = %v, %v", conflict, err)
	}

	if _, err := store.TransitionToCertified(ctx, r1.ID, certification(future)); err != nil {
		t.Fatalf("TransitionToCertified(r1) error = %v", err)
	}

	if conflict, err := store.HasConflict(ctx, fp, r2.ID); err != nil || !conflict {
		t.Fatalf("HasConflict() after certification = %v, %v", conflict, err)
	}
	if conflict, _ := store.HasConflict(ctx, fp, r1.ID); conflict {
		t.Error("a request must not conflict with itself")
	}

	_, err = store.TransitionToCertified(ctx, r2.ID, certification(future))
	wantCode(t, err, requests.ErrCodeDuplicateBatch)

	got, err := store.Get(ctx, r2.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != requests.StatusPending || got.CertificationSignature != nil {
		t.Errorf("duplicate must remain PENDING without a signature, got %s", got.Status)
	}

	// still a duplicate after r1 is minted
	if _, err := store.TransitionToMinted(ctx, r1.ID, requests.Settlement{Ref: "s-1"}, time.Now()); err != nil {
		t.Fatalf("TransitionToMinted(r1) error = %v", err)
	}
	_, err = store.TransitionToCertified(ctx, r2.ID, certification(future))
	wantCode(t, err, requests.ErrCodeDuplicateBatch)
}

func testConcurrentCertify(t *testing.T, store requests.Store) {
	ctx := context.Background()
	future := time.Now().Add(time.Hour)
	fp := fingerprint(4)

	const n = 8
	ids := make([]int64, n)
	for i := range ids {
		producer := producerA
		if i%2 == 1 {
			producer = producerB
		}
		r, err := store.Create(ctx, newRequest(producer, 250, fp))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		ids[i] = r.ID
	}

	var (
		wg         sync.WaitGroup
		start      = make(chan struct{})
		mu         sync.Mutex
		successes  int
		duplicates int
		others     []error
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			<-start
			_, err := store.TransitionToCertified(ctx, id, certification(future))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case requests.ErrorCodeOf(err) == requests.ErrCodeDuplicateBatch:
				duplicates++
			default:
				others = append(others, err)
			}
		}(id)
	}
	close(start)
	wg.Wait()

	if len(others) > 0 {
		t.Fatalf("unexpected errors: %v", others)
	}
	if successes != 1 || duplicates != n-1 {
		t.Fatalf("expected exactly 1 certification and %d duplicates, got %d and %d", n-1, successes, duplicates)
	}

	certified, err := store.List(ctx, requests.Filter{Status: requests.StatusCertified})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	count := 0
	for _, r := range certified {
		if r.EvidenceFingerprint == fp {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected one CERTIFIED request for the fingerprint, found %d", count)
	}
}

func testMintExpiry(t *testing.T, store requests.Store) {
	ctx := context.Background()
	certifiedAt := time.Now()
	expiry := certifiedAt.Add(time.Second)

	r, err := store.Create(ctx, newRequest(producerA, 500, fingerprint(5)))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	certified, err := store.TransitionToCertified(ctx, r.ID, certification(expiry))
	if err != nil {
		t.Fatalf("TransitionToCertified() error = %v", err)
	}
	if !certified.Expiry.Equal(expiry.Truncate(time.Second)) {
		t.Errorf("expected expiry %s, got %s", expiry.Truncate(time.Second), certified.Expiry)
	}
	if certified.Payload().Expiry != expiry.Unix() {
		t.Errorf("payload expiry %d does not match %d", certified.Payload().Expiry, expiry.Unix())
	}

	_, err = store.TransitionToMinted(ctx, r.ID, requests.Settlement{Ref: "s-late"}, expiry.Add(2*time.Second))
	wantCode(t, err, requests.ErrCodeExpired)

	got, _ := store.Get(ctx, r.ID)
	if got.Status != requests.StatusCertified {
		t.Fatalf("expired request must stay CERTIFIED, got %s", got.Status)
	}

	minted, err := store.TransitionToMinted(ctx, r.ID, requests.Settlement{Ref: "s-ok", TransactionHash: "0xabc", BlockNumber: 42}, certified.Expiry)
	if err != nil {
		t.Fatalf("TransitionToMinted() at expiry error = %v", err)
	}
	if minted.Status != requests.StatusMinted || minted.Settlement == nil || minted.Settlement.Ref != "s-ok" || minted.Settlement.BlockNumber != 42 {
		t.Errorf("unexpected minted request: %+v", minted)
	}
	if minted.CertificationSignature == nil {
		t.Error("a minted request keeps its certification signature")
	}
}

func testReject(t *testing.T, store requests.Store) {
	ctx := context.Background()
	r, err := store.Create(ctx, newRequest(producerA, 500, fingerprint(6)))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, err = store.TransitionToRejected(ctx, r.ID, "   ")
	wantCode(t, err, requests.ErrCodeValidation)

	rejected, err := store.TransitionToRejected(ctx, r.ID, "meter readings missing")
	if err != nil {
		t.Fatalf("TransitionToRejected() error = %v", err)
	}
	if rejected.Status != requests.StatusRejected || rejected.RejectionReason != "meter readings missing" {
		t.Errorf("unexpected rejected request: %+v", rejected)
	}

	_, err = store.TransitionToRejected(ctx, 999999, "missing")
	wantCode(t, err, requests.ErrCodeNotFound)
}

func testList(t *testing.T, store requests.Store) {
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	a1, _ := store.Create(ctx, newRequest(producerA, 10, fingerprint(7)))
	a2, _ := store.Create(ctx, newRequest(producerA, 20, fingerprint(8)))
	b1, _ := store.Create(ctx, newRequest(producerB, 30, fingerprint(9)))

	if _, err := store.TransitionToCertified(ctx, a1.ID, certification(past)); err != nil {
		t.Fatalf("TransitionToCertified() error = %v", err)
	}
	if _, err := store.TransitionToCertified(ctx, b1.ID, certification(future)); err != nil {
		t.Fatalf("TransitionToCertified() error = %v", err)
	}

	byProducer, err := store.List(ctx, requests.Filter{Producer: &producerA.Address})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(byProducer) != 2 || byProducer[0].ID != a1.ID || byProducer[1].ID != a2.ID {
		t.Errorf("unexpected producer listing: %v", ids(byProducer))
	}

	expired, err := store.List(ctx, requests.Filter{ExpiredAsOf: ptr(time.Now())})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(expired) != 1 || expired[0].ID != a1.ID {
		t.Errorf("expected only the expired certification, got %v", ids(expired))
	}

	inCity, _ := store.List(ctx, requests.Filter{Jurisdiction: identity.Jurisdiction{Country: "in", State: "gujarat"}})
	if len(inCity) != 3 {
		t.Errorf("expected 3 requests in the state, got %d", len(inCity))
	}
	elsewhere, _ := store.List(ctx, requests.Filter{Jurisdiction: identity.Jurisdiction{Country: "DE"}})
	if len(elsewhere) != 0 {
		t.Errorf("expected no requests in DE, got %d", len(elsewhere))
	}

	page, _ := store.List(ctx, requests.Filter{AfterID: a1.ID, Limit: 1})
	if len(page) != 1 || page[0].ID != a2.ID {
		t.Errorf("expected keyset page to return %d, got %v", a2.ID, ids(page))
	}
}

func ids(rs []requests.ProductionRequest) []int64 {
	out := make([]int64, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func ptr[T any](v T) *T { return &v }
