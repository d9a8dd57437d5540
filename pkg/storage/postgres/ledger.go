package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/pefandor/pravda-market/pkg/core"
)

const ledgerColumns = `id, user_id, amount_kopecks, type, reference_id, created_at`

func scanLedgerEntry(row interface{ Scan(...interface{}) error }) (*core.LedgerEntry, error) {
	var (
		e   core.LedgerEntry
		ref sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.UserID, &e.AmountKopecks, &e.Type, &ref, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if ref.Valid {
		e.ReferenceID = ref.Int64
	}
	return &e, nil
}

func (q *queries) AppendLedger(ctx context.Context, e *core.LedgerEntry) (*core.LedgerEntry, error) {
	var ref interface{}
	if e.ReferenceID != 0 {
		ref = e.ReferenceID
	}
	row := q.ex.QueryRowContext(ctx, `
		INSERT INTO ledger (user_id, amount_kopecks, type, reference_id)
		VALUES ($1, $2, $3, $4)
		RETURNING `+ledgerColumns,
		e.UserID, e.AmountKopecks, string(e.Type), ref)

	created, err := scanLedgerEntry(row)
	if err != nil {
		return nil, mapErr("append ledger", err)
	}
	return created, nil
}

func (q *queries) LedgerSum(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := q.ex.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_kopecks), 0) FROM ledger WHERE user_id = $1`,
		userID).Scan(&sum)
	if err != nil {
		return 0, mapErr("ledger sum", err)
	}
	return sum, nil
}

// LedgerSumForUpdate sums while holding row locks on the user's entries,
// so two transactions cannot both pass the same balance check. The inner
// select carries the FOR UPDATE; aggregates cannot lock directly.
func (q *queries) LedgerSumForUpdate(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := q.ex.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_kopecks), 0) FROM (
			SELECT amount_kopecks FROM ledger WHERE user_id = $1 FOR UPDATE
		) locked`, userID).Scan(&sum)
	if err != nil {
		return 0, mapErr("ledger sum for update", err)
	}
	return sum, nil
}

// LockedFunds derives the locked readout from live positions rather than
// the lock-entry trail: unfilled remainders of resting orders plus the
// user's trade costs on markets that are not yet resolved.
func (q *queries) LockedFunds(ctx context.Context, userID int64) (int64, error) {
	var resting int64
	err := q.ex.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_kopecks - filled_kopecks), 0) FROM orders
		WHERE user_id = $1 AND status IN ('open', 'partial')`,
		userID).Scan(&resting)
	if err != nil {
		return 0, mapErr("locked funds", err)
	}

	var staked int64
	err = q.ex.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(
			CASE WHEN oy.user_id = $1 THEN t.yes_cost_kopecks ELSE 0 END +
			CASE WHEN ono.user_id = $1 THEN t.no_cost_kopecks ELSE 0 END), 0)
		FROM trades t
		JOIN markets m ON m.id = t.market_id AND m.resolved = FALSE
		JOIN orders oy ON oy.id = t.yes_order_id
		JOIN orders ono ON ono.id = t.no_order_id
		WHERE oy.user_id = $1 OR ono.user_id = $1`,
		userID).Scan(&staked)
	if err != nil {
		return 0, mapErr("locked funds", err)
	}
	return resting + staked, nil
}

func (q *queries) LedgerSumForTrades(ctx context.Context, types []core.EntryType, tradeIDs []int64) (int64, error) {
	if len(tradeIDs) == 0 {
		return 0, nil
	}
	var sum int64
	err := q.ex.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_kopecks), 0) FROM ledger
		WHERE type = ANY($1) AND reference_id = ANY($2)`,
		pq.Array(entryTypeStrings(types)), pq.Array(tradeIDs)).Scan(&sum)
	if err != nil {
		return 0, mapErr("ledger sum for trades", err)
	}
	return sum, nil
}

func (q *queries) LedgerEntries(ctx context.Context, userID int64, limit, offset int) ([]*core.LedgerEntry, error) {
	rows, err := q.ex.QueryContext(ctx, `
		SELECT `+ledgerColumns+` FROM ledger
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, mapErr("list ledger entries", err)
	}
	defer rows.Close()

	var out []*core.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, mapErr("list ledger entries", err)
		}
		out = append(out, e)
	}
	return out, mapErr("list ledger entries", rows.Err())
}

func (q *queries) LedgerEntryByID(ctx context.Context, id int64) (*core.LedgerEntry, error) {
	row := q.ex.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger WHERE id = $1`, id)
	e, err := scanLedgerEntry(row)
	if err != nil {
		return nil, mapErr("get ledger entry", err)
	}
	return e, nil
}

func (q *queries) SetLedgerReference(ctx context.Context, entryID, referenceID int64) error {
	res, err := q.ex.ExecContext(ctx,
		`UPDATE ledger SET reference_id = $2 WHERE id = $1`, entryID, referenceID)
	if err != nil {
		return mapErr("set ledger reference", err)
	}
	return requireRow(res, "set ledger reference")
}

func entryTypeStrings(types []core.EntryType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
