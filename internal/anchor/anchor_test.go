package anchor

import (
	"context"
	"testing"
	"time"
)

func TestFingerprintDeterministic(t *testing.T) {
	type subset struct {
		ID     string `json:"id"`
		Amount int64  `json:"amount"`
	}

	a, err := Fingerprint(subset{ID: "pay_1", Amount: 150000})
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	b, err := Fingerprint(subset{ID: "pay_1", Amount: 150000})
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if a != b {
		t.Fatalf("fingerprints differ: %s vs %s", a, b)
	}

	c, _ := Fingerprint(subset{ID: "pay_1", Amount: 150001})
	if a == c {
		t.Fatal("different content produced same fingerprint")
	}
	if len(a) != 64 {
		t.Fatalf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestSimAnchorIsStable(t *testing.T) {
	sim := NewSimClient()
	ctx := context.Background()

	p1, err := sim.AnchorHash(ctx, "abcd")
	if err != nil {
		t.Fatalf("AnchorHash failed: %v", err)
	}
	p2, err := sim.AnchorHash(ctx, "abcd")
	if err != nil {
		t.Fatalf("AnchorHash failed: %v", err)
	}
	if p1.TxID != p2.TxID {
		t.Fatal("re-anchoring same fingerprint changed tx id")
	}

	ok, err := sim.VerifyHash(ctx, "abcd", p1.TxID)
	if err != nil || !ok {
		t.Fatalf("VerifyHash = %v, %v; want true", ok, err)
	}
	ok, _ = sim.VerifyHash(ctx, "abcd", "0xwrong")
	if ok {
		t.Fatal("VerifyHash accepted wrong tx id")
	}
}

func TestSimHoldLifecycle(t *testing.T) {
	sim := NewSimClient()
	ctx := context.Background()

	landlord := "0x1111111111111111111111111111111111111111"
	tenant := "0x2222222222222222222222222222222222222222"

	hold, err := sim.CreateHold(ctx, landlord, tenant, 5000000, time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("CreateHold failed: %v", err)
	}

	if _, err := sim.ReleaseHold(ctx, hold.HoldRef, ReleaseToTenant); err != nil {
		t.Fatalf("ReleaseHold failed: %v", err)
	}

	// Second release must fail: release is one-way.
	if _, err := sim.ReleaseHold(ctx, hold.HoldRef, ReleaseToLandlord); err == nil {
		t.Fatal("double release succeeded")
	}
}

func TestCreateHoldRejectsBadAddress(t *testing.T) {
	sim := NewSimClient()
	_, err := sim.CreateHold(context.Background(), "not-an-address", "0x2222222222222222222222222222222222222222", 100, time.Now())
	if err == nil {
		t.Fatal("expected invalid address error")
	}
}
