package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pefandor/pravda-market/pkg/core"
)

const withdrawalColumns = `id, user_id, ton_address, amount_nanoton, status,
	tx_hash, ledger_entry_id, created_at, processed_at`

func scanWithdrawal(row interface{ Scan(...interface{}) error }) (*core.WithdrawalRequest, error) {
	var (
		w           core.WithdrawalRequest
		txHash      sql.NullString
		entryID     sql.NullInt64
		processedAt sql.NullTime
	)
	err := row.Scan(&w.ID, &w.UserID, &w.TonAddress, &w.AmountNanoton, &w.Status,
		&txHash, &entryID, &w.CreatedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	if txHash.Valid {
		w.TxHash = txHash.String
	}
	if entryID.Valid {
		w.LedgerEntryID = entryID.Int64
	}
	if processedAt.Valid {
		w.ProcessedAt = processedAt.Time
	}
	return &w, nil
}

func (q *queries) CreateWithdrawal(ctx context.Context, w *core.WithdrawalRequest) (*core.WithdrawalRequest, error) {
	var entryID interface{}
	if w.LedgerEntryID != 0 {
		entryID = w.LedgerEntryID
	}
	row := q.ex.QueryRowContext(ctx, `
		INSERT INTO withdrawal_requests (user_id, ton_address, amount_nanoton, status, ledger_entry_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+withdrawalColumns,
		w.UserID, w.TonAddress, w.AmountNanoton, string(w.Status), entryID)

	created, err := scanWithdrawal(row)
	if err != nil {
		return nil, mapErr("create withdrawal", err)
	}
	return created, nil
}

func (q *queries) WithdrawalByID(ctx context.Context, id int64) (*core.WithdrawalRequest, error) {
	row := q.ex.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id)
	w, err := scanWithdrawal(row)
	if err != nil {
		return nil, mapErr("get withdrawal", err)
	}
	return w, nil
}

func (q *queries) WithdrawalByIDForUpdate(ctx context.Context, id int64) (*core.WithdrawalRequest, error) {
	row := q.ex.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id)
	w, err := scanWithdrawal(row)
	if err != nil {
		return nil, mapErr("lock withdrawal", err)
	}
	return w, nil
}

func (q *queries) WithdrawalsByUser(ctx context.Context, userID int64) ([]*core.WithdrawalRequest, error) {
	rows, err := q.ex.QueryContext(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, mapErr("list withdrawals", err)
	}
	defer rows.Close()
	return collectWithdrawals(rows)
}

func (q *queries) WithdrawalsByStatus(ctx context.Context, status core.WithdrawalStatus) ([]*core.WithdrawalRequest, error) {
	rows, err := q.ex.QueryContext(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE status = $1 ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, mapErr("list withdrawals by status", err)
	}
	defer rows.Close()
	return collectWithdrawals(rows)
}

func collectWithdrawals(rows *sql.Rows) ([]*core.WithdrawalRequest, error) {
	var out []*core.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, mapErr("scan withdrawal", err)
		}
		out = append(out, w)
	}
	return out, mapErr("scan withdrawal", rows.Err())
}

func (q *queries) UpdateWithdrawalStatus(ctx context.Context, id int64, status core.WithdrawalStatus, txHash string, processedAt time.Time) error {
	var (
		hash interface{}
		at   interface{}
	)
	if txHash != "" {
		hash = txHash
	}
	if !processedAt.IsZero() {
		at = processedAt
	}
	res, err := q.ex.ExecContext(ctx, `
		UPDATE withdrawal_requests
		SET status = $2, tx_hash = COALESCE($3, tx_hash), processed_at = COALESCE($4, processed_at)
		WHERE id = $1`, id, string(status), hash, at)
	if err != nil {
		return mapErr("update withdrawal status", err)
	}
	return requireRow(res, "update withdrawal status")
}

func (q *queries) WithdrawalDailyTotal(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var sum int64
	err := q.ex.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_nanoton), 0) FROM withdrawal_requests
		WHERE user_id = $1 AND created_at >= $2
			AND status NOT IN ('cancelled', 'failed')`,
		userID, since).Scan(&sum)
	if err != nil {
		return 0, mapErr("withdrawal daily total", err)
	}
	return sum, nil
}
