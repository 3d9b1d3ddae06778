package agreements

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists agreements in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed agreement store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const agreementColumns = `id, agreement_number, property_id, landlord_id, tenant_id,
	       status, monthly_rent, security_deposit, start_date, end_date,
	       terminated_at, terminated_by, termination_note,
	       anchor_hash, anchor_tx_id, anchor_block_ref, anchored,
	       created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, a *Agreement) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO agreements (
			id, agreement_number, property_id, landlord_id, tenant_id,
			status, monthly_rent, security_deposit, start_date, end_date,
			terminated_at, terminated_by, termination_note,
			anchor_hash, anchor_tx_id, anchor_block_ref, anchored,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16, $17,
			$18, $19
		)`,
		a.ID, a.AgreementNumber, a.PropertyID, a.LandlordID, a.TenantID,
		string(a.Status), a.MonthlyRent, a.SecurityDeposit, a.StartDate, a.EndDate,
		nullTime(a.TerminatedAt), nullString(a.TerminatedBy), nullString(a.TerminationNote),
		nullString(a.Anchor.ContentHash), nullString(a.Anchor.TxID), nullString(a.Anchor.BlockRef), a.Anchor.Anchored,
		a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Agreement, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+agreementColumns+` FROM agreements WHERE id = $1`, id)

	a, err := scanAgreement(row)
	if err == sql.ErrNoRows {
		return nil, ErrAgreementNotFound
	}
	return a, err
}

func (p *PostgresStore) Update(ctx context.Context, a *Agreement) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE agreements SET
			status = $1, terminated_at = $2, terminated_by = $3, termination_note = $4,
			anchor_hash = $5, anchor_tx_id = $6, anchor_block_ref = $7, anchored = $8,
			updated_at = $9
		WHERE id = $10`,
		string(a.Status), nullTime(a.TerminatedAt), nullString(a.TerminatedBy), nullString(a.TerminationNote),
		nullString(a.Anchor.ContentHash), nullString(a.Anchor.TxID), nullString(a.Anchor.BlockRef), a.Anchor.Anchored,
		a.UpdatedAt, a.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAgreementNotFound
	}
	return nil
}

func (p *PostgresStore) GetActive(ctx context.Context, propertyID, partyID string) (*Agreement, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+agreementColumns+`
		FROM agreements
		WHERE property_id = $1
		  AND status = 'active'
		  AND (landlord_id = $2 OR tenant_id = $2)
		LIMIT 1`, propertyID, partyID)

	a, err := scanAgreement(row)
	if err == sql.ErrNoRows {
		return nil, ErrAgreementNotFound
	}
	return a, err
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAgreement(s scanner) (*Agreement, error) {
	a := &Agreement{}
	var (
		status          string
		terminatedAt    sql.NullTime
		terminatedBy    sql.NullString
		terminationNote sql.NullString
		anchorHash      sql.NullString
		anchorTxID      sql.NullString
		anchorBlockRef  sql.NullString
	)

	err := s.Scan(
		&a.ID, &a.AgreementNumber, &a.PropertyID, &a.LandlordID, &a.TenantID,
		&status, &a.MonthlyRent, &a.SecurityDeposit, &a.StartDate, &a.EndDate,
		&terminatedAt, &terminatedBy, &terminationNote,
		&anchorHash, &anchorTxID, &anchorBlockRef, &a.Anchor.Anchored,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = Status(status)
	a.TerminatedBy = terminatedBy.String
	a.TerminationNote = terminationNote.String
	a.Anchor.ContentHash = anchorHash.String
	a.Anchor.TxID = anchorTxID.String
	a.Anchor.BlockRef = anchorBlockRef.String
	if terminatedAt.Valid {
		a.TerminatedAt = &terminatedAt.Time
	}

	return a, nil
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

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
