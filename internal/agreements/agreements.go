// Package agreements is the boundary to the rental-agreement collaborator.
//
// The reconciliation engine and the escrow coordinator consume exactly two
// facts from here: whether a party has an active agreement on a property,
// and when an agreement terminates. Anchoring of signed agreements also
// lives here because the proof is stored on the agreement itself.
package agreements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/rentrail/internal/anchor"
	"github.com/mbd888/rentrail/internal/idgen"
	"github.com/mbd888/rentrail/internal/syncutil"
	"github.com/mbd888/rentrail/internal/validation"
)

var (
	ErrAgreementNotFound = errors.New("agreement not found")
	ErrNotAuthorized     = errors.New("not authorized for this agreement")
	ErrInvalidStatus     = errors.New("invalid agreement status for this operation")
	ErrAlreadyAnchored   = errors.New("agreement already anchored")
)

// Status represents the lifecycle state of an agreement.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusActive     Status = "active"
	StatusTerminated Status = "terminated"
	StatusExpired    Status = "expired"
)

// AnchorInfo holds the tamper-evidence proof for a signed agreement.
type AnchorInfo struct {
	ContentHash string `json:"contentHash,omitempty"`
	TxID        string `json:"txId,omitempty"`
	BlockRef    string `json:"blockRef,omitempty"`
	Anchored    bool   `json:"anchored"`
}

// Agreement is a rental agreement between a landlord and a tenant.
type Agreement struct {
	ID              string     `json:"id"`
	AgreementNumber string     `json:"agreementNumber"`
	PropertyID      string     `json:"propertyId"`
	LandlordID      string     `json:"landlordId"`
	TenantID        string     `json:"tenantId"`
	Status          Status     `json:"status"`
	MonthlyRent     int64      `json:"monthlyRent"`     // minor units
	SecurityDeposit int64      `json:"securityDeposit"` // minor units
	StartDate       time.Time  `json:"startDate"`
	EndDate         time.Time  `json:"endDate"`
	TerminatedAt    *time.Time `json:"terminatedAt,omitempty"`
	TerminatedBy    string     `json:"terminatedBy,omitempty"`
	TerminationNote string     `json:"terminationNote,omitempty"`
	Anchor          AnchorInfo `json:"anchor"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Ended reports whether the agreement has left the active state for good.
func (a *Agreement) Ended() bool {
	return a.Status == StatusTerminated || a.Status == StatusExpired
}

// Store persists agreements.
type Store interface {
	Create(ctx context.Context, a *Agreement) error
	Get(ctx context.Context, id string) (*Agreement, error)
	Update(ctx context.Context, a *Agreement) error
	// GetActive returns the active agreement binding partyID (as landlord
	// or tenant) to propertyID, or ErrAgreementNotFound.
	GetActive(ctx context.Context, propertyID, partyID string) (*Agreement, error)
}

// CreateRequest contains the parameters for creating an agreement.
type CreateRequest struct {
	PropertyID      string    `json:"propertyId" binding:"required"`
	LandlordID      string    `json:"landlordId" binding:"required"`
	TenantID        string    `json:"tenantId" binding:"required"`
	MonthlyRent     int64     `json:"monthlyRent" binding:"required"`
	SecurityDeposit int64     `json:"securityDeposit"`
	StartDate       time.Time `json:"startDate" binding:"required"`
	EndDate         time.Time `json:"endDate" binding:"required"`
}

// Service implements agreement business logic.
type Service struct {
	store    Store
	anchorer anchor.Client
	locks    syncutil.ShardedMutex // per-agreement mutual exclusion
}

// NewService creates a new agreement service.
func NewService(store Store, anchorer anchor.Client) *Service {
	return &Service{store: store, anchorer: anchorer}
}

// Create records a new agreement in active status.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Agreement, error) {
	if req.MonthlyRent <= 0 {
		return nil, fmt.Errorf("%w: monthly rent must be positive", ErrInvalidStatus)
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, fmt.Errorf("%w: end date must follow start date", ErrInvalidStatus)
	}

	now := time.Now().UTC()
	a := &Agreement{
		ID:              idgen.WithPrefix("agr_"),
		AgreementNumber: fmt.Sprintf("AGR%d%s", now.Year(), idgen.UpperHex(4)),
		PropertyID:      req.PropertyID,
		LandlordID:      req.LandlordID,
		TenantID:        req.TenantID,
		Status:          StatusActive,
		MonthlyRent:     req.MonthlyRent,
		SecurityDeposit: req.SecurityDeposit,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create agreement: %w", err)
	}
	return a, nil
}

// Get returns an agreement by ID.
func (s *Service) Get(ctx context.Context, id string) (*Agreement, error) {
	return s.store.Get(ctx, id)
}

// GetActive returns the active agreement for a property and party.
func (s *Service) GetActive(ctx context.Context, propertyID, partyID string) (*Agreement, error) {
	return s.store.GetActive(ctx, propertyID, partyID)
}

// Terminate moves an active agreement to terminated. One-way.
func (s *Service) Terminate(ctx context.Context, id, callerID, note string) (*Agreement, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if callerID != a.LandlordID && callerID != a.TenantID {
		return nil, ErrNotAuthorized
	}
	if a.Status != StatusActive {
		return nil, fmt.Errorf("%w: only active agreements can be terminated", ErrInvalidStatus)
	}

	now := time.Now().UTC()
	a.Status = StatusTerminated
	a.TerminatedAt = &now
	a.TerminatedBy = callerID
	a.TerminationNote = validation.SanitizeNote(note, 500)
	a.UpdatedAt = now

	if err := s.store.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// fingerprintSubset is the stable field subset anchored for an agreement.
// Created/updated timestamps are excluded so re-serialization cannot
// change the hash.
type fingerprintSubset struct {
	AgreementNumber string    `json:"agreementNumber"`
	PropertyID      string    `json:"propertyId"`
	LandlordID      string    `json:"landlordId"`
	TenantID        string    `json:"tenantId"`
	MonthlyRent     int64     `json:"monthlyRent"`
	SecurityDeposit int64     `json:"securityDeposit"`
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
}

// AnchorAgreement fingerprints the agreement and records it on the
// external ledger. Landlord only; rejects re-anchoring. The lock makes
// the anchored check and the write one step, so racing calls cannot
// both record a proof.
func (s *Service) AnchorAgreement(ctx context.Context, id, callerID string) (*Agreement, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if callerID != a.LandlordID {
		return nil, ErrNotAuthorized
	}
	if a.Anchor.Anchored {
		return nil, ErrAlreadyAnchored
	}

	fp, err := anchor.Fingerprint(fingerprintSubset{
		AgreementNumber: a.AgreementNumber,
		PropertyID:      a.PropertyID,
		LandlordID:      a.LandlordID,
		TenantID:        a.TenantID,
		MonthlyRent:     a.MonthlyRent,
		SecurityDeposit: a.SecurityDeposit,
		StartDate:       a.StartDate,
		EndDate:         a.EndDate,
	})
	if err != nil {
		return nil, err
	}

	proof, err := s.anchorer.AnchorHash(ctx, fp)
	if err != nil {
		return nil, err
	}

	a.Anchor = AnchorInfo{
		ContentHash: fp,
		TxID:        proof.TxID,
		BlockRef:    proof.BlockRef,
		Anchored:    true,
	}
	a.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}
