// Package escrow coordinates security-deposit holds on the external
// ledger.
//
// A hold locks the deposit between the landlord's and tenant's wallets
// for the lifetime of the agreement. Release is one-way and gated on the
// agreement having ended; the direction (back to the tenant or to the
// landlord for damages) is the landlord's call.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/rentrail/internal/anchor"
	"github.com/mbd888/rentrail/internal/idgen"
	"github.com/mbd888/rentrail/internal/metrics"
	"github.com/mbd888/rentrail/internal/syncutil"
	"github.com/mbd888/rentrail/internal/validation"
)

var (
	ErrHoldNotFound    = errors.New("escrow hold not found")
	ErrDuplicateHold   = errors.New("agreement already has an active hold")
	ErrNotAuthorized   = errors.New("not authorized for this escrow operation")
	ErrInvalidWallet   = errors.New("invalid wallet address")
	ErrInvalidStatus   = errors.New("invalid hold status for this operation")
	ErrAgreementActive = errors.New("agreement has not ended")
	ErrAgreementEnded  = errors.New("agreement has ended")
)

// Status is the lifecycle state of a hold.
type Status string

const (
	StatusHeld               Status = "held"
	StatusReleasedToTenant   Status = "released_to_tenant"
	StatusReleasedToLandlord Status = "released_to_landlord"
)

// Hold is a ledger-backed security-deposit lock.
type Hold struct {
	ID             string     `json:"id"`
	AgreementID    string     `json:"agreementId"`
	PropertyID     string     `json:"propertyId"`
	LandlordID     string     `json:"landlordId"`
	TenantID       string     `json:"tenantId"`
	Amount         int64      `json:"amount"` // minor units
	LandlordWallet string     `json:"landlordWallet"`
	TenantWallet   string     `json:"tenantWallet"`
	Status         Status     `json:"status"`
	HoldRef        string     `json:"holdRef"`
	TxID           string     `json:"txId"` // hold-creation transaction
	ReleaseTxID    string     `json:"releaseTxId,omitempty"`
	ReleaseDate    time.Time  `json:"releaseDate"` // earliest expected release
	ReleasedAt     *time.Time `json:"releasedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Released reports whether the hold has been resolved.
func (h *Hold) Released() bool {
	return h.Status == StatusReleasedToTenant || h.Status == StatusReleasedToLandlord
}

// Store persists escrow holds.
type Store interface {
	Create(ctx context.Context, h *Hold) error
	Get(ctx context.Context, id string) (*Hold, error)
	Update(ctx context.Context, h *Hold) error
	// GetActiveByAgreement returns the unresolved hold for an agreement,
	// or ErrHoldNotFound.
	GetActiveByAgreement(ctx context.Context, agreementID string) (*Hold, error)
	ListByParty(ctx context.Context, partyID string) ([]*Hold, error)
}

// AgreementFacts is the slice of an agreement escrow decisions need.
type AgreementFacts struct {
	ID              string
	PropertyID      string
	LandlordID      string
	TenantID        string
	SecurityDeposit int64
	Ended           bool
}

// AgreementLookup resolves agreements so escrow doesn't import the
// agreements package.
type AgreementLookup interface {
	LookupAgreement(ctx context.Context, agreementID string) (*AgreementFacts, error)
}

// Service implements escrow business logic.
type Service struct {
	store      Store
	ledger     anchor.Client
	agreements AgreementLookup
	logger     *slog.Logger
	locks      syncutil.ShardedMutex // per-hold mutual exclusion
}

// NewService creates a new escrow service.
func NewService(store Store, ledger anchor.Client, agreements AgreementLookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		ledger:     ledger,
		agreements: agreements,
		logger:     logger,
	}
}

// CreateHoldRequest contains the parameters for creating a hold.
type CreateHoldRequest struct {
	CallerID       string `json:"-"`
	AgreementID    string `json:"agreementId" binding:"required"`
	Amount         int64  `json:"amount"` // defaults to the agreement's deposit
	LandlordWallet string `json:"landlordWallet" binding:"required"`
	TenantWallet   string `json:"tenantWallet" binding:"required"`
	ReleaseDate    string `json:"releaseDate" binding:"required"`
}

// CreateHold locks the security deposit on the ledger. Landlord only;
// at most one unresolved hold per agreement.
func (s *Service) CreateHold(ctx context.Context, req CreateHoldRequest) (*Hold, error) {
	landlordWallet := validation.SanitizeAddress(req.LandlordWallet)
	tenantWallet := validation.SanitizeAddress(req.TenantWallet)
	if !validation.IsValidEthAddress(landlordWallet) || !validation.IsValidEthAddress(tenantWallet) {
		return nil, ErrInvalidWallet
	}
	releaseDate, err := time.Parse(time.RFC3339, req.ReleaseDate)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed release date", ErrInvalidStatus)
	}

	agr, err := s.agreements.LookupAgreement(ctx, req.AgreementID)
	if err != nil {
		return nil, err
	}
	if req.CallerID != agr.LandlordID {
		return nil, ErrNotAuthorized
	}
	// Deposits lock only against a live tenancy.
	if agr.Ended {
		return nil, ErrAgreementEnded
	}

	amount := req.Amount
	if amount == 0 {
		amount = agr.SecurityDeposit
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: hold amount must be positive", ErrInvalidStatus)
	}

	// Serialize per agreement so two racing creates cannot both pass the
	// duplicate check.
	unlock := s.locks.Lock("agr:" + req.AgreementID)
	defer unlock()

	if _, err := s.store.GetActiveByAgreement(ctx, req.AgreementID); err == nil {
		return nil, ErrDuplicateHold
	} else if !errors.Is(err, ErrHoldNotFound) {
		return nil, err
	}

	result, err := s.ledger.CreateHold(ctx, landlordWallet, tenantWallet, amount, releaseDate)
	if err != nil {
		return nil, fmt.Errorf("ledger hold creation failed: %w", err)
	}

	now := time.Now().UTC()
	h := &Hold{
		ID:             idgen.WithPrefix("hold_"),
		AgreementID:    agr.ID,
		PropertyID:     agr.PropertyID,
		LandlordID:     agr.LandlordID,
		TenantID:       agr.TenantID,
		Amount:         amount,
		LandlordWallet: landlordWallet,
		TenantWallet:   tenantWallet,
		Status:         StatusHeld,
		HoldRef:        result.HoldRef,
		TxID:           result.TxID,
		ReleaseDate:    releaseDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.Create(ctx, h); err != nil {
		// The deposit is already locked on the ledger; without a local
		// record Release can never reach it. Compensate by sending it
		// back to the tenant.
		if _, relErr := s.ledger.ReleaseHold(ctx, result.HoldRef, anchor.ReleaseToTenant); relErr != nil {
			s.logger.Error("orphaned ledger hold: compensating release failed",
				"hold_ref", result.HoldRef, "tx", result.TxID, "error", relErr)
		}
		return nil, fmt.Errorf("failed to persist hold: %w", err)
	}

	metrics.EscrowHoldsTotal.WithLabelValues("created").Inc()
	return h, nil
}

// ReleaseRequest names the release direction.
type ReleaseRequest struct {
	HoldID   string `json:"-"`
	CallerID string `json:"-"`
	// Target is "tenant" (deposit returned) or "landlord" (damages).
	Target string `json:"target" binding:"required"`
	Note   string `json:"note,omitempty"`
}

// Release resolves a hold on the ledger. Landlord only, one-way, and
// only after the agreement has ended.
func (s *Service) Release(ctx context.Context, req ReleaseRequest) (*Hold, error) {
	var target anchor.ReleaseTarget
	switch req.Target {
	case "tenant":
		target = anchor.ReleaseToTenant
	case "landlord":
		target = anchor.ReleaseToLandlord
	default:
		return nil, fmt.Errorf("%w: target must be tenant or landlord", ErrInvalidStatus)
	}

	unlock := s.locks.Lock(req.HoldID)
	defer unlock()

	h, err := s.store.Get(ctx, req.HoldID)
	if err != nil {
		return nil, err
	}

	if req.CallerID != h.LandlordID {
		return nil, ErrNotAuthorized
	}
	if h.Released() {
		return nil, fmt.Errorf("%w: hold already released", ErrInvalidStatus)
	}

	agr, err := s.agreements.LookupAgreement(ctx, h.AgreementID)
	if err != nil {
		return nil, err
	}
	if !agr.Ended {
		return nil, ErrAgreementActive
	}

	txID, err := s.ledger.ReleaseHold(ctx, h.HoldRef, target)
	if err != nil {
		return nil, fmt.Errorf("ledger release failed: %w", err)
	}

	now := time.Now().UTC()
	if target == anchor.ReleaseToTenant {
		h.Status = StatusReleasedToTenant
	} else {
		h.Status = StatusReleasedToLandlord
	}
	h.ReleaseTxID = txID
	h.ReleasedAt = &now
	h.UpdatedAt = now

	if err := s.store.Update(ctx, h); err != nil {
		return nil, fmt.Errorf("failed to persist release: %w", err)
	}

	metrics.EscrowHoldsTotal.WithLabelValues("released").Inc()
	s.logger.Info("escrow hold released",
		"hold", h.ID, "agreement", h.AgreementID, "target", req.Target, "tx", txID)
	return h, nil
}

// Get returns a hold if the caller is a party to it.
func (s *Service) Get(ctx context.Context, id, callerID string) (*Hold, error) {
	h, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID != h.LandlordID && callerID != h.TenantID {
		return nil, ErrNotAuthorized
	}
	return h, nil
}

// ListByParty returns holds where partyID is landlord or tenant.
func (s *Service) ListByParty(ctx context.Context, partyID string) ([]*Hold, error) {
	return s.store.ListByParty(ctx, partyID)
}
