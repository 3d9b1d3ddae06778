// Package payments owns the payment reconciliation state machine.
//
// Settlement for one record can arrive over two racing channels: the
// client's synchronous verify call and the gateway's server-to-server
// webhook. Both funnel into a single completion transition guarded by a
// per-record lock, so duplicate or out-of-order delivery is safe:
// exactly one arrival performs the mutation, the other observes the
// already-completed record and exits.
//
// States: pending -> processing -> {completed | failed} -> {refunded}.
// Overdue is a read-time projection, never a stored status.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/rentrail/internal/anchor"
	"github.com/mbd888/rentrail/internal/gateway"
	"github.com/mbd888/rentrail/internal/idgen"
	"github.com/mbd888/rentrail/internal/metrics"
	"github.com/mbd888/rentrail/internal/retry"
	"github.com/mbd888/rentrail/internal/signing"
	"github.com/mbd888/rentrail/internal/syncutil"
	"github.com/mbd888/rentrail/internal/validation"
)

var (
	ErrRecordNotFound          = errors.New("payment record not found")
	ErrNotAuthorized           = errors.New("not authorized for this payment operation")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrSignatureMismatch       = errors.New("payment signature mismatch")
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")
	ErrInvalidStateTransition  = errors.New("invalid payment state transition")
	ErrAlreadyAnchored         = errors.New("payment already anchored")
)

// Kind classifies what a payment is for.
type Kind string

const (
	KindRent            Kind = "rent"
	KindSecurityDeposit Kind = "security_deposit"
	KindMaintenance     Kind = "maintenance"
	KindLateFee         Kind = "late_fee"
	KindPenalty         Kind = "penalty"
	KindRefund          Kind = "refund"
)

// ValidKind reports whether k is a known payment kind.
func ValidKind(k Kind) bool {
	switch k {
	case KindRent, KindSecurityDeposit, KindMaintenance, KindLateFee, KindPenalty, KindRefund:
		return true
	}
	return false
}

// Status is the stored state of a payment record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"

	// StatusOverdue is a display-only projection, never persisted.
	StatusOverdue Status = "overdue"
)

// Amount itemizes a payment in minor currency units. Total may exceed the
// component sum; the difference is unallocated (taxes charged on top).
type Amount struct {
	Total       int64 `json:"total"`
	Rent        int64 `json:"rent"`
	Maintenance int64 `json:"maintenance"`
	LateFee     int64 `json:"lateFee"`
	Penalty     int64 `json:"penalty"`
	Taxes       int64 `json:"taxes"`
}

// ComponentSum returns the sum of the itemized components.
func (a Amount) ComponentSum() int64 {
	return a.Rent + a.Maintenance + a.LateFee + a.Penalty + a.Taxes
}

// Period identifies the rent month a payment covers.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// GatewayInfo holds the external gateway's references for a record.
type GatewayInfo struct {
	Provider  string          `json:"provider"`
	OrderID   string          `json:"orderId,omitempty"`
	PaymentID string          `json:"paymentId,omitempty"`
	Signature string          `json:"signature,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
}

// Receipt tracks receipt issuance. The number is assigned once at
// creation; the generated flag flips when settlement completes.
type Receipt struct {
	Number      string     `json:"number"`
	Generated   bool       `json:"generated"`
	GeneratedAt *time.Time `json:"generatedAt,omitempty"`
}

// RefundInfo records the latest refund issued against a record.
type RefundInfo struct {
	Refunded bool       `json:"refunded"`
	Amount   int64      `json:"amount,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	TxID     string     `json:"txId,omitempty"`
}

// AnchorInfo holds the tamper-evidence proof for a completed record.
type AnchorInfo struct {
	ContentHash string `json:"contentHash,omitempty"`
	TxID        string `json:"txId,omitempty"`
	BlockRef    string `json:"blockRef,omitempty"`
	Anchored    bool   `json:"anchored"`
}

// Record is the durable representation of one money movement. Ownership
// fields are set at creation and never change; all other mutation goes
// through the service's transition functions.
type Record struct {
	ID        string `json:"id"`
	DisplayID string `json:"displayId"` // human-facing, not used for lookups

	PropertyID  string `json:"propertyId"`
	AgreementID string `json:"agreementId"`
	LandlordID  string `json:"landlordId"`
	TenantID    string `json:"tenantId"`

	Kind   Kind    `json:"kind"`
	Amount Amount  `json:"amount"`
	Period *Period `json:"period,omitempty"`

	DueDate  time.Time  `json:"dueDate"`
	PaidDate *time.Time `json:"paidDate,omitempty"`

	Status  Status      `json:"status"`
	Gateway GatewayInfo `json:"gateway"`
	Method  string      `json:"method,omitempty"` // unknown until settlement

	Receipt Receipt    `json:"receipt"`
	Refund  RefundInfo `json:"refund"`
	Anchor  AnchorInfo `json:"anchor"`

	// FailureDetail preserves the audit trail for signature mismatches
	// and gateway-reported failures.
	FailureDetail string `json:"failureDetail,omitempty"`

	Note string `json:"note,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// settleable reports whether the completion transition may run.
func (r *Record) settleable() bool {
	return r.Status == StatusPending || r.Status == StatusProcessing
}

// DisplayStatus returns the caller-facing status: overdue when a pending
// record's due date has passed. Equality is not overdue.
func DisplayStatus(r *Record, now time.Time) Status {
	if r.Status == StatusPending && now.After(r.DueDate) {
		return StatusOverdue
	}
	return r.Status
}

// DaysOverdue returns ceil(now - dueDate) in days for overdue records, 0
// otherwise.
func DaysOverdue(r *Record, now time.Time) int {
	if r.Status != StatusPending || !now.After(r.DueDate) {
		return 0
	}
	elapsed := now.Sub(r.DueDate)
	days := int(elapsed / (24 * time.Hour))
	if elapsed%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// Store persists payment records.
type Store interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, r *Record) error
	GetByGatewayOrderID(ctx context.Context, orderID string) (*Record, error)
	GetByGatewayPaymentID(ctx context.Context, paymentID string) (*Record, error)
	ListByParty(ctx context.Context, partyID string, limit int) ([]*Record, error)
}

// AgreementRef is the slice of an agreement the engine needs.
type AgreementRef struct {
	ID         string
	LandlordID string
	TenantID   string
}

// AgreementSource resolves active agreements so payments doesn't import
// the agreements package.
type AgreementSource interface {
	ActiveAgreement(ctx context.Context, propertyID, partyID string) (*AgreementRef, error)
}

// EventSink receives payment lifecycle events (realtime streaming).
type EventSink interface {
	PaymentEvent(event string, r *Record)
}

// Service implements the reconciliation engine.
type Service struct {
	store      Store
	gw         gateway.Client
	verifier   *signing.Verifier
	agreements AgreementSource
	anchorer   anchor.Client
	sink       EventSink
	logger     *slog.Logger
	currency   string
	provider   string
	locks      syncutil.ShardedMutex // per-record mutual exclusion
}

// NewService creates a new reconciliation engine.
func NewService(store Store, gw gateway.Client, verifier *signing.Verifier, agreements AgreementSource, logger *slog.Logger, currency string) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		gw:         gw,
		verifier:   verifier,
		agreements: agreements,
		logger:     logger,
		currency:   currency,
		provider:   "razorpay",
	}
}

// WithAnchorer enables best-effort anchoring of completed payments.
func (s *Service) WithAnchorer(a anchor.Client) *Service {
	s.anchorer = a
	return s
}

// WithEventSink adds a realtime event sink.
func (s *Service) WithEventSink(sink EventSink) *Service {
	s.sink = sink
	return s
}

// CreateOrderRequest contains the parameters for creating a payment order.
type CreateOrderRequest struct {
	CallerID   string  `json:"-"`
	PropertyID string  `json:"propertyId" binding:"required"`
	Kind       Kind    `json:"kind" binding:"required"`
	Amount     Amount  `json:"amount" binding:"required"`
	DueDate    string  `json:"dueDate"`
	Period     *Period `json:"period,omitempty"`
	Note       string  `json:"note,omitempty"`
}

// OrderResult is returned to the caller for the client-side checkout.
type OrderResult struct {
	OrderID       string `json:"orderId"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	LocalRecordID string `json:"localRecordId"`
}

// CreateOrder registers a gateway order and writes the pending record.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResult, *Record, error) {
	if err := validateAmount(req.Kind, req.Amount, req.Period); err != nil {
		return nil, nil, err
	}

	agr, err := s.agreements.ActiveAgreement(ctx, req.PropertyID, req.CallerID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: no active agreement on property", ErrNotAuthorized)
	}

	dueDate := time.Now().UTC()
	if req.DueDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.DueDate)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: malformed due date", ErrInvalidAmount)
		}
		dueDate = parsed
	}

	now := time.Now().UTC()
	rec := &Record{
		ID:          idgen.WithPrefix("pay_"),
		DisplayID:   fmt.Sprintf("PAY%d%02d%s", now.Year(), now.Month(), idgen.UpperHex(2)),
		PropertyID:  req.PropertyID,
		AgreementID: agr.ID,
		LandlordID:  agr.LandlordID,
		TenantID:    agr.TenantID,
		Kind:        req.Kind,
		Amount:      req.Amount,
		Period:      req.Period,
		DueDate:     dueDate,
		Status:      StatusPending,
		Gateway:     GatewayInfo{Provider: s.provider},
		Receipt:     Receipt{Number: receiptNumber(now)},
		Note:        validation.SanitizeNote(req.Note, 500),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	order, err := s.gw.CreateOrder(ctx, req.Amount.Total, s.currency, rec.Receipt.Number)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gateway order: %w", err)
	}
	rec.Gateway.OrderID = order.ID

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, nil, fmt.Errorf("failed to create payment record: %w", err)
	}

	metrics.PaymentsTotal.WithLabelValues(string(StatusPending)).Inc()

	return &OrderResult{
		OrderID:       order.ID,
		Amount:        order.Amount,
		Currency:      order.Currency,
		LocalRecordID: rec.ID,
	}, rec, nil
}

// ConfirmRequest is the client's verification call after checkout.
type ConfirmRequest struct {
	LocalRecordID    string `json:"localRecordId" binding:"required"`
	GatewayOrderID   string `json:"gatewayOrderId" binding:"required"`
	GatewayPaymentID string `json:"gatewayPaymentId" binding:"required"`
	GatewaySignature string `json:"gatewaySignature" binding:"required"`
}

// ConfirmPayment verifies the per-payment signature and applies the
// completion transition. Idempotent: confirming an already-completed
// record is a no-op success.
func (s *Service) ConfirmPayment(ctx context.Context, req ConfirmRequest) (*Record, error) {
	unlock := s.locks.Lock(req.LocalRecordID)
	defer unlock()

	rec, err := s.store.Get(ctx, req.LocalRecordID)
	if err != nil {
		return nil, err
	}

	if !s.verifier.VerifyPayment(rec.Gateway.OrderID, req.GatewayPaymentID, req.GatewaySignature) {
		// Definitive failure: audited, terminal. Only reachable from a
		// settleable state; a record the webhook already completed keeps
		// its status.
		if rec.settleable() {
			now := time.Now().UTC()
			rec.Status = StatusFailed
			rec.FailureDetail = fmt.Sprintf("signature mismatch for payment %s on order %s", req.GatewayPaymentID, rec.Gateway.OrderID)
			rec.UpdatedAt = now
			if err := s.store.Update(ctx, rec); err != nil {
				s.logger.Error("failed to persist signature-mismatch failure", "record", rec.ID, "error", err)
			}
			metrics.PaymentsTotal.WithLabelValues(string(StatusFailed)).Inc()
			s.emit("payment.failed", rec)
		}
		return nil, ErrSignatureMismatch
	}

	if rec.Status == StatusCompleted {
		return rec, nil
	}

	settle, err := s.gw.FetchPayment(ctx, req.GatewayPaymentID)
	if err != nil {
		// Transient: the record stays settleable for a retry or for the
		// webhook channel.
		return nil, fmt.Errorf("failed to fetch settlement details: %w", err)
	}

	return s.completeLocked(ctx, rec, settle, req.GatewaySignature)
}

// completeLocked applies the completion transition. Caller must hold the
// record lock. At-most-once effect: completed is a no-op success,
// failed/refunded reject.
func (s *Service) completeLocked(ctx context.Context, rec *Record, settle *gateway.Payment, signature string) (*Record, error) {
	if rec.Status == StatusCompleted {
		return rec, nil
	}
	if !rec.settleable() {
		return nil, fmt.Errorf("%w: cannot complete %s record", ErrInvalidStateTransition, rec.Status)
	}

	now := time.Now().UTC()
	paidAt := now
	if settle.CreatedAt > 0 {
		paidAt = time.Unix(settle.CreatedAt, 0).UTC()
	}

	rec.Status = StatusCompleted
	rec.PaidDate = &paidAt
	rec.Method = settle.Method
	rec.Gateway.PaymentID = settle.ID
	rec.Gateway.Signature = signature
	if payload, err := json.Marshal(settle); err == nil {
		rec.Gateway.Response = payload
	}
	rec.Receipt.Generated = true
	rec.Receipt.GeneratedAt = &now
	rec.UpdatedAt = now

	if err := s.store.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist completion: %w", err)
	}

	metrics.PaymentsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	s.emit("payment.completed", rec)
	s.anchorAsync(rec.ID)

	return rec, nil
}

// anchorAsync fingerprints and anchors a completed record in the
// background. Best-effort: failure never touches the record's status.
func (s *Service) anchorAsync(recordID string) {
	if s.anchorer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		err := retry.Do(ctx, 3, 2*time.Second, func() error {
			_, err := s.anchorRecord(ctx, recordID)
			if err != nil && !errors.Is(err, anchor.ErrUnavailable) {
				return retry.Permanent(err)
			}
			return err
		})
		if err != nil && !errors.Is(err, ErrAlreadyAnchored) {
			s.logger.Warn("background anchor failed", "record", recordID, "error", err)
		}
	}()
}

// AnchorPayment anchors a completed record on request. Rejects records
// that already carry a proof.
func (s *Service) AnchorPayment(ctx context.Context, recordID, callerID string) (*Record, error) {
	rec, err := s.store.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if callerID != rec.LandlordID && callerID != rec.TenantID {
		return nil, ErrNotAuthorized
	}
	return s.anchorRecord(ctx, recordID)
}

// paymentFingerprint is the stable subset hashed for anchoring. Created
// and updated timestamps are excluded; paidDate is part of the settled
// fact and is included on purpose.
type paymentFingerprint struct {
	DisplayID     string     `json:"displayId"`
	PropertyID    string     `json:"propertyId"`
	AgreementID   string     `json:"agreementId"`
	LandlordID    string     `json:"landlordId"`
	TenantID      string     `json:"tenantId"`
	Kind          Kind       `json:"kind"`
	Amount        Amount     `json:"amount"`
	Period        *Period    `json:"period,omitempty"`
	PaidDate      *time.Time `json:"paidDate"`
	ReceiptNumber string     `json:"receiptNumber"`
}

func (s *Service) anchorRecord(ctx context.Context, recordID string) (*Record, error) {
	if s.anchorer == nil {
		return nil, errors.New("anchoring not configured")
	}

	unlock := s.locks.Lock(recordID)
	defer unlock()

	rec, err := s.store.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: only completed payments can be anchored", ErrInvalidStateTransition)
	}
	if rec.Anchor.Anchored {
		return nil, ErrAlreadyAnchored
	}

	fp, err := anchor.Fingerprint(paymentFingerprint{
		DisplayID:     rec.DisplayID,
		PropertyID:    rec.PropertyID,
		AgreementID:   rec.AgreementID,
		LandlordID:    rec.LandlordID,
		TenantID:      rec.TenantID,
		Kind:          rec.Kind,
		Amount:        rec.Amount,
		Period:        rec.Period,
		PaidDate:      rec.PaidDate,
		ReceiptNumber: rec.Receipt.Number,
	})
	if err != nil {
		return nil, err
	}

	proof, err := s.anchorer.AnchorHash(ctx, fp)
	if err != nil {
		return nil, err
	}

	rec.Anchor = AnchorInfo{
		ContentHash: fp,
		TxID:        proof.TxID,
		BlockRef:    proof.BlockRef,
		Anchored:    true,
	}
	rec.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist anchor proof: %w", err)
	}

	metrics.AnchorsTotal.WithLabelValues("payment").Inc()
	return rec, nil
}

// RefundRequest issues a refund against a completed record.
type RefundRequest struct {
	RecordID string `json:"-"`
	CallerID string `json:"-"`
	Amount   int64  `json:"amount" binding:"required"`
	Reason   string `json:"reason" binding:"required"`
}

// IssueRefund calls the gateway's refund operation and records the
// result. A full refund moves the record to refunded; a partial refund
// leaves it completed with the refund block populated. Gateway failure
// leaves local state untouched.
func (s *Service) IssueRefund(ctx context.Context, req RefundRequest) (*Record, error) {
	unlock := s.locks.Lock(req.RecordID)
	defer unlock()

	rec, err := s.store.Get(ctx, req.RecordID)
	if err != nil {
		return nil, err
	}

	if req.CallerID != rec.LandlordID {
		return nil, ErrNotAuthorized
	}
	if rec.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: only completed payments can be refunded", ErrInvalidStateTransition)
	}
	if req.Amount <= 0 || req.Amount > rec.Amount.Total {
		return nil, fmt.Errorf("%w: refund must be positive and at most the total", ErrInvalidAmount)
	}

	refund, err := s.gw.CreateRefund(ctx, rec.Gateway.PaymentID, req.Amount)
	if err != nil {
		// No local mutation without a confirmed remote refund.
		return nil, fmt.Errorf("gateway refund failed: %w", err)
	}

	now := time.Now().UTC()
	rec.Refund = RefundInfo{
		Refunded: true,
		Amount:   req.Amount,
		Date:     &now,
		Reason:   validation.SanitizeNote(req.Reason, 500),
		TxID:     refund.ID,
	}
	if req.Amount == rec.Amount.Total {
		rec.Status = StatusRefunded
	}
	rec.UpdatedAt = now

	if err := s.store.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist refund: %w", err)
	}

	metrics.RefundsTotal.Inc()
	s.emit("payment.refunded", rec)

	return rec, nil
}

// ManualPaymentRequest records an out-of-band payment (cash, cheque).
type ManualPaymentRequest struct {
	CallerID   string  `json:"-"`
	TenantID   string  `json:"tenantId" binding:"required"`
	PropertyID string  `json:"propertyId" binding:"required"`
	Kind       Kind    `json:"kind" binding:"required"`
	Amount     Amount  `json:"amount" binding:"required"`
	Method     string  `json:"method" binding:"required"` // cash, cheque, bank_transfer
	PaidDate   string  `json:"paidDate" binding:"required"`
	Period     *Period `json:"period,omitempty"`
	Note       string  `json:"note,omitempty"`
}

// RecordManualPayment creates a record that is completed at creation.
// Landlord only; the tenant must be on the landlord's active agreement.
func (s *Service) RecordManualPayment(ctx context.Context, req ManualPaymentRequest) (*Record, error) {
	if err := validateAmount(req.Kind, req.Amount, req.Period); err != nil {
		return nil, err
	}
	switch req.Method {
	case "cash", "cheque", "bank_transfer":
	default:
		return nil, fmt.Errorf("%w: unsupported manual method %q", ErrInvalidAmount, req.Method)
	}

	paidDate, err := time.Parse(time.RFC3339, req.PaidDate)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed paid date", ErrInvalidAmount)
	}

	agr, err := s.agreements.ActiveAgreement(ctx, req.PropertyID, req.CallerID)
	if err != nil || agr.LandlordID != req.CallerID || agr.TenantID != req.TenantID {
		return nil, fmt.Errorf("%w: no active agreement for landlord and tenant", ErrNotAuthorized)
	}

	now := time.Now().UTC()
	paidUTC := paidDate.UTC()
	rec := &Record{
		ID:          idgen.WithPrefix("pay_"),
		DisplayID:   fmt.Sprintf("PAY%d%02d%s", now.Year(), now.Month(), idgen.UpperHex(2)),
		PropertyID:  req.PropertyID,
		AgreementID: agr.ID,
		LandlordID:  agr.LandlordID,
		TenantID:    agr.TenantID,
		Kind:        req.Kind,
		Amount:      req.Amount,
		Period:      req.Period,
		DueDate:     paidUTC,
		PaidDate:    &paidUTC,
		Status:      StatusCompleted,
		Gateway:     GatewayInfo{Provider: "manual"},
		Method:      req.Method,
		Receipt:     Receipt{Number: receiptNumber(now), Generated: true, GeneratedAt: &now},
		Note:        validation.SanitizeNote(req.Note, 500),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create manual payment record: %w", err)
	}

	metrics.PaymentsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	s.anchorAsync(rec.ID)

	return rec, nil
}

// Get returns a record if the caller is a party to it.
func (s *Service) Get(ctx context.Context, id, callerID string) (*Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID != rec.LandlordID && callerID != rec.TenantID {
		return nil, ErrNotAuthorized
	}
	return rec, nil
}

// ListByParty returns records where partyID is landlord or tenant.
func (s *Service) ListByParty(ctx context.Context, partyID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByParty(ctx, partyID, limit)
}

func (s *Service) emit(event string, rec *Record) {
	if s.sink != nil {
		s.sink.PaymentEvent(event, rec)
	}
}

func validateAmount(kind Kind, a Amount, period *Period) error {
	if !ValidKind(kind) {
		return fmt.Errorf("%w: unknown payment kind %q", ErrInvalidAmount, kind)
	}
	if a.Total <= 0 {
		return fmt.Errorf("%w: total must be positive", ErrInvalidAmount)
	}
	if a.Rent < 0 || a.Maintenance < 0 || a.LateFee < 0 || a.Penalty < 0 || a.Taxes < 0 {
		return fmt.Errorf("%w: components cannot be negative", ErrInvalidAmount)
	}
	// Components must not exceed the total; the remainder is unallocated.
	if a.ComponentSum() > a.Total {
		return fmt.Errorf("%w: components exceed total", ErrInvalidAmount)
	}
	if kind == KindRent && period == nil {
		return fmt.Errorf("%w: rent payments require a period", ErrInvalidAmount)
	}
	if period != nil && (period.Month < 1 || period.Month > 12) {
		return fmt.Errorf("%w: period month out of range", ErrInvalidAmount)
	}
	return nil
}

func receiptNumber(now time.Time) string {
	return fmt.Sprintf("RCP%d%s", now.Year(), idgen.UpperHex(3))
}
