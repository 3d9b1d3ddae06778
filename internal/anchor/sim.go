package anchor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SimClient is a deterministic in-process ledger for development and
// tests. Transaction ids and block references are derived from the input
// so repeated runs produce stable values.
type SimClient struct {
	mu       sync.Mutex
	anchored map[string]string // fingerprint -> txID
	holds    map[string]simHold
	block    uint64
}

type simHold struct {
	landlord string
	tenant   string
	amount   int64
	released bool
}

// NewSimClient creates a simulated ledger client.
func NewSimClient() *SimClient {
	return &SimClient{
		anchored: make(map[string]string),
		holds:    make(map[string]simHold),
		block:    1_000_000,
	}
}

// Compile-time interface check
var _ Client = (*SimClient)(nil)

func (s *SimClient) AnchorHash(ctx context.Context, fingerprint string) (*Proof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txID, ok := s.anchored[fingerprint]
	if !ok {
		txID = deriveTxID("anchor", fingerprint)
		s.anchored[fingerprint] = txID
		s.block++
	}

	return &Proof{
		Fingerprint: fingerprint,
		TxID:        txID,
		BlockRef:    strconv.FormatUint(s.block, 10),
		Timestamp:   time.Now().UTC(),
	}, nil
}

func (s *SimClient) CreateHold(ctx context.Context, landlordAddr, tenantAddr string, amount int64, releaseDate time.Time) (*HoldResult, error) {
	if !common.IsHexAddress(landlordAddr) {
		return nil, fmt.Errorf("%w: landlord %s", ErrInvalidAddress, landlordAddr)
	}
	if !common.IsHexAddress(tenantAddr) {
		return nil, fmt.Errorf("%w: tenant %s", ErrInvalidAddress, tenantAddr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.block++
	ref := deriveTxID("hold", landlordAddr+tenantAddr+strconv.FormatInt(amount, 10)+strconv.FormatUint(s.block, 10))
	s.holds[ref] = simHold{landlord: landlordAddr, tenant: tenantAddr, amount: amount}

	return &HoldResult{HoldRef: ref, TxID: ref}, nil
}

func (s *SimClient) ReleaseHold(ctx context.Context, holdRef string, target ReleaseTarget) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hold, ok := s.holds[holdRef]
	if !ok {
		return "", fmt.Errorf("anchor: unknown hold %q", holdRef)
	}
	if hold.released {
		return "", fmt.Errorf("anchor: hold %q already released", holdRef)
	}

	hold.released = true
	s.holds[holdRef] = hold
	s.block++

	return deriveTxID("release", holdRef+string(target)), nil
}

func (s *SimClient) VerifyHash(ctx context.Context, fingerprint, txID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anchored[fingerprint] == txID, nil
}

// deriveTxID produces a stable 32-byte hex id from kind and seed.
func deriveTxID(kind, seed string) string {
	sum := sha256.Sum256([]byte(kind + ":" + seed))
	return "0x" + hex.EncodeToString(sum[:])
}
