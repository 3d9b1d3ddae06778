package payments

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// PostgresStore persists payment records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed payment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const paymentColumns = `id, display_id, property_id, agreement_id, landlord_id, tenant_id,
	       kind, amount_total, amount_rent, amount_maintenance, amount_late_fee, amount_penalty, amount_taxes,
	       period_month, period_year, due_date, paid_date, status,
	       gw_provider, gw_order_id, gw_payment_id, gw_signature, gw_response,
	       method, receipt_number, receipt_generated, receipt_generated_at,
	       refunded, refund_amount, refund_date, refund_reason, refund_tx_id,
	       anchor_hash, anchor_tx_id, anchor_block_ref, anchored,
	       failure_detail, note, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, r *Record) error {
	var periodMonth, periodYear sql.NullInt64
	if r.Period != nil {
		periodMonth = sql.NullInt64{Int64: int64(r.Period.Month), Valid: true}
		periodYear = sql.NullInt64{Int64: int64(r.Period.Year), Valid: true}
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payments (
			id, display_id, property_id, agreement_id, landlord_id, tenant_id,
			kind, amount_total, amount_rent, amount_maintenance, amount_late_fee, amount_penalty, amount_taxes,
			period_month, period_year, due_date, paid_date, status,
			gw_provider, gw_order_id, gw_payment_id, gw_signature, gw_response,
			method, receipt_number, receipt_generated, receipt_generated_at,
			refunded, refund_amount, refund_date, refund_reason, refund_tx_id,
			anchor_hash, anchor_tx_id, anchor_block_ref, anchored,
			failure_detail, note, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23,
			$24, $25, $26, $27,
			$28, $29, $30, $31, $32,
			$33, $34, $35, $36,
			$37, $38, $39, $40
		)`,
		r.ID, r.DisplayID, r.PropertyID, r.AgreementID, r.LandlordID, r.TenantID,
		string(r.Kind), r.Amount.Total, r.Amount.Rent, r.Amount.Maintenance, r.Amount.LateFee, r.Amount.Penalty, r.Amount.Taxes,
		periodMonth, periodYear, r.DueDate, nullTime(r.PaidDate), string(r.Status),
		r.Gateway.Provider, nullString(r.Gateway.OrderID), nullString(r.Gateway.PaymentID), nullString(r.Gateway.Signature), nullRaw(r.Gateway.Response),
		nullString(r.Method), r.Receipt.Number, r.Receipt.Generated, nullTime(r.Receipt.GeneratedAt),
		r.Refund.Refunded, r.Refund.Amount, nullTime(r.Refund.Date), nullString(r.Refund.Reason), nullString(r.Refund.TxID),
		nullString(r.Anchor.ContentHash), nullString(r.Anchor.TxID), nullString(r.Anchor.BlockRef), r.Anchor.Anchored,
		nullString(r.FailureDetail), nullString(r.Note), r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanRecordRow(row)
}

func (p *PostgresStore) Update(ctx context.Context, r *Record) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE payments SET
			status = $1, paid_date = $2, method = $3,
			gw_payment_id = $4, gw_signature = $5, gw_response = $6,
			receipt_generated = $7, receipt_generated_at = $8,
			refunded = $9, refund_amount = $10, refund_date = $11, refund_reason = $12, refund_tx_id = $13,
			anchor_hash = $14, anchor_tx_id = $15, anchor_block_ref = $16, anchored = $17,
			failure_detail = $18, updated_at = $19
		WHERE id = $20`,
		string(r.Status), nullTime(r.PaidDate), nullString(r.Method),
		nullString(r.Gateway.PaymentID), nullString(r.Gateway.Signature), nullRaw(r.Gateway.Response),
		r.Receipt.Generated, nullTime(r.Receipt.GeneratedAt),
		r.Refund.Refunded, r.Refund.Amount, nullTime(r.Refund.Date), nullString(r.Refund.Reason), nullString(r.Refund.TxID),
		nullString(r.Anchor.ContentHash), nullString(r.Anchor.TxID), nullString(r.Anchor.BlockRef), r.Anchor.Anchored,
		nullString(r.FailureDetail), r.UpdatedAt, r.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *PostgresStore) GetByGatewayOrderID(ctx context.Context, orderID string) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE gw_order_id = $1`, orderID)
	return scanRecordRow(row)
}

func (p *PostgresStore) GetByGatewayPaymentID(ctx context.Context, paymentID string) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE gw_payment_id = $1`, paymentID)
	return scanRecordRow(row)
}

func (p *PostgresStore) ListByParty(ctx context.Context, partyID string, limit int) ([]*Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE landlord_id = $1 OR tenant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, partyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecordRow(row *sql.Row) (*Record, error) {
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	return r, err
}

func scanRecord(s scanner) (*Record, error) {
	r := &Record{}
	var (
		kind, status       string
		periodMonth        sql.NullInt64
		periodYear         sql.NullInt64
		paidDate           sql.NullTime
		gwOrderID          sql.NullString
		gwPaymentID        sql.NullString
		gwSignature        sql.NullString
		gwResponse         []byte
		method             sql.NullString
		receiptGeneratedAt sql.NullTime
		refundDate         sql.NullTime
		refundReason       sql.NullString
		refundTxID         sql.NullString
		anchorHash         sql.NullString
		anchorTxID         sql.NullString
		anchorBlockRef     sql.NullString
		failureDetail      sql.NullString
		note               sql.NullString
	)

	err := s.Scan(
		&r.ID, &r.DisplayID, &r.PropertyID, &r.AgreementID, &r.LandlordID, &r.TenantID,
		&kind, &r.Amount.Total, &r.Amount.Rent, &r.Amount.Maintenance, &r.Amount.LateFee, &r.Amount.Penalty, &r.Amount.Taxes,
		&periodMonth, &periodYear, &r.DueDate, &paidDate, &status,
		&r.Gateway.Provider, &gwOrderID, &gwPaymentID, &gwSignature, &gwResponse,
		&method, &r.Receipt.Number, &r.Receipt.Generated, &receiptGeneratedAt,
		&r.Refund.Refunded, &r.Refund.Amount, &refundDate, &refundReason, &refundTxID,
		&anchorHash, &anchorTxID, &anchorBlockRef, &r.Anchor.Anchored,
		&failureDetail, &note, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Kind = Kind(kind)
	r.Status = Status(status)
	if periodMonth.Valid && periodYear.Valid {
		r.Period = &Period{Month: int(periodMonth.Int64), Year: int(periodYear.Int64)}
	}
	if paidDate.Valid {
		r.PaidDate = &paidDate.Time
	}
	r.Gateway.OrderID = gwOrderID.String
	r.Gateway.PaymentID = gwPaymentID.String
	r.Gateway.Signature = gwSignature.String
	if len(gwResponse) > 0 {
		r.Gateway.Response = json.RawMessage(gwResponse)
	}
	r.Method = method.String
	if receiptGeneratedAt.Valid {
		r.Receipt.GeneratedAt = &receiptGeneratedAt.Time
	}
	if refundDate.Valid {
		r.Refund.Date = &refundDate.Time
	}
	r.Refund.Reason = refundReason.String
	r.Refund.TxID = refundTxID.String
	r.Anchor.ContentHash = anchorHash.String
	r.Anchor.TxID = anchorTxID.String
	r.Anchor.BlockRef = anchorBlockRef.String
	r.FailureDetail = failureDetail.String
	r.Note = note.String

	return r, nil
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullRaw converts an empty payload to nil so the column stores NULL.
func nullRaw(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
