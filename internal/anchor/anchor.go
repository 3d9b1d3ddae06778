// Package anchor registers content fingerprints with an external
// tamper-evident ledger.
//
// A fingerprint is a SHA-256 digest over the canonical JSON of a stable
// field subset of an entity (volatile timestamps excluded). Anchoring is
// best-effort and decoupled: callers record the authoritative local state
// first and treat anchor failures as a retryable background concern.
package anchor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnavailable indicates a transient ledger failure; retryable.
	ErrUnavailable = errors.New("anchor: ledger unavailable")

	// ErrInvalidAddress indicates a malformed wallet address.
	ErrInvalidAddress = errors.New("anchor: invalid address")
)

// Proof references an anchored fingerprint on the external ledger.
type Proof struct {
	Fingerprint string    `json:"fingerprint"`
	TxID        string    `json:"txId"`
	BlockRef    string    `json:"blockRef"`
	Timestamp   time.Time `json:"timestamp"`
}

// HoldResult describes a security-deposit hold created on the ledger.
type HoldResult struct {
	HoldRef string `json:"holdRef"`
	TxID    string `json:"txId"`
}

// ReleaseTarget selects who receives a released hold.
type ReleaseTarget string

const (
	ReleaseToTenant   ReleaseTarget = "tenant"
	ReleaseToLandlord ReleaseTarget = "landlord"
)

// Client is the narrow interface to the tamper-evidence ledger.
type Client interface {
	// AnchorHash records a fingerprint and returns its proof reference.
	AnchorHash(ctx context.Context, fingerprint string) (*Proof, error)

	// CreateHold locks a deposit amount between two wallets until release.
	CreateHold(ctx context.Context, landlordAddr, tenantAddr string, amount int64, releaseDate time.Time) (*HoldResult, error)

	// ReleaseHold releases a hold to the given target. One-way.
	ReleaseHold(ctx context.Context, holdRef string, target ReleaseTarget) (txID string, err error)

	// VerifyHash checks that a fingerprint was recorded under txID.
	VerifyHash(ctx context.Context, fingerprint, txID string) (bool, error)
}

// Fingerprint computes the hex SHA-256 digest of the canonical JSON
// encoding of v. Callers pass a struct holding only the stable subset of
// fields; struct field order fixes the encoding.
func Fingerprint(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("anchor: fingerprint encode: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
