package postgres

import (
	"context"
	"database/sql"

	"github.com/pefandor/pravda-market/pkg/core"
)

const depositColumns = `id, tx_hash, lt, sender_address, amount_nanoton,
	telegram_id, status, user_id, ledger_entry_id, created_at`

func scanDeposit(row interface{ Scan(...interface{}) error }) (*core.ChainDeposit, error) {
	var (
		d       core.ChainDeposit
		userID  sql.NullInt64
		entryID sql.NullInt64
	)
	err := row.Scan(&d.ID, &d.TxHash, &d.LT, &d.SenderAddress, &d.AmountNanoton,
		&d.TelegramID, &d.Status, &userID, &entryID, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		d.UserID = userID.Int64
	}
	if entryID.Valid {
		d.LedgerEntryID = entryID.Int64
	}
	return &d, nil
}

// CreateChainDeposit inserts the chain record. The unique tx_hash index is
// the exactly-once gate: a replayed transaction surfaces as Conflict.
func (q *queries) CreateChainDeposit(ctx context.Context, d *core.ChainDeposit) (*core.ChainDeposit, error) {
	row := q.ex.QueryRowContext(ctx, `
		INSERT INTO ton_transactions (tx_hash, lt, sender_address, amount_nanoton, telegram_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+depositColumns,
		d.TxHash, d.LT, d.SenderAddress, d.AmountNanoton, d.TelegramID, string(d.Status))

	created, err := scanDeposit(row)
	if err != nil {
		return nil, mapErr("create chain deposit", err)
	}
	return created, nil
}

func (q *queries) UpdateChainDeposit(ctx context.Context, id int64, status core.DepositStatus, userID, ledgerEntryID int64) error {
	var uid, lid interface{}
	if userID != 0 {
		uid = userID
	}
	if ledgerEntryID != 0 {
		lid = ledgerEntryID
	}
	res, err := q.ex.ExecContext(ctx, `
		UPDATE ton_transactions SET status = $2, user_id = $3, ledger_entry_id = $4
		WHERE id = $1`, id, string(status), uid, lid)
	if err != nil {
		return mapErr("update chain deposit", err)
	}
	return requireRow(res, "update chain deposit")
}

// LastProcessedLT returns the highest logical time seen, the indexer's
// resume cursor after restart.
func (q *queries) LastProcessedLT(ctx context.Context) (int64, error) {
	var lt int64
	err := q.ex.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(lt), 0) FROM ton_transactions`).Scan(&lt)
	if err != nil {
		return 0, mapErr("last processed lt", err)
	}
	return lt, nil
}
