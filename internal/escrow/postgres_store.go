package escrow

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists escrow holds in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed hold store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const holdColumns = `id, agreement_id, property_id, landlord_id, tenant_id,
	       amount, landlord_wallet, tenant_wallet, status,
	       hold_ref, tx_id, release_tx_id, release_date, released_at,
	       created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, h *Hold) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO escrow_holds (
			id, agreement_id, property_id, landlord_id, tenant_id,
			amount, landlord_wallet, tenant_wallet, status,
			hold_ref, tx_id, release_tx_id, release_date, released_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16
		)`,
		h.ID, h.AgreementID, h.PropertyID, h.LandlordID, h.TenantID,
		h.Amount, h.LandlordWallet, h.TenantWallet, string(h.Status),
		h.HoldRef, h.TxID, nullString(h.ReleaseTxID), h.ReleaseDate, nullTime(h.ReleasedAt),
		h.CreatedAt, h.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Hold, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+holdColumns+` FROM escrow_holds WHERE id = $1`, id)

	h, err := scanHold(row)
	if err == sql.ErrNoRows {
		return nil, ErrHoldNotFound
	}
	return h, err
}

func (p *PostgresStore) Update(ctx context.Context, h *Hold) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE escrow_holds SET
			status = $1, release_tx_id = $2, released_at = $3, updated_at = $4
		WHERE id = $5`,
		string(h.Status), nullString(h.ReleaseTxID), nullTime(h.ReleasedAt), h.UpdatedAt, h.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrHoldNotFound
	}
	return nil
}

func (p *PostgresStore) GetActiveByAgreement(ctx context.Context, agreementID string) (*Hold, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+holdColumns+`
		FROM escrow_holds
		WHERE agreement_id = $1 AND status = 'held'
		LIMIT 1`, agreementID)

	h, err := scanHold(row)
	if err == sql.ErrNoRows {
		return nil, ErrHoldNotFound
	}
	return h, err
}

func (p *PostgresStore) ListByParty(ctx context.Context, partyID string) ([]*Hold, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+holdColumns+`
		FROM escrow_holds
		WHERE landlord_id = $1 OR tenant_id = $1
		ORDER BY created_at DESC, id DESC`, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanHold(s scanner) (*Hold, error) {
	h := &Hold{}
	var (
		status      string
		releaseTxID sql.NullString
		releasedAt  sql.NullTime
	)

	err := s.Scan(
		&h.ID, &h.AgreementID, &h.PropertyID, &h.LandlordID, &h.TenantID,
		&h.Amount, &h.LandlordWallet, &h.TenantWallet, &status,
		&h.HoldRef, &h.TxID, &releaseTxID, &h.ReleaseDate, &releasedAt,
		&h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	h.Status = Status(status)
	h.ReleaseTxID = releaseTxID.String
	if releasedAt.Valid {
		h.ReleasedAt = &releasedAt.Time
	}

	return h, nil
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
