package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/storage"
)

const marketColumns = `id, title, description, category, deadline,
	resolved, outcome, resolved_at, yes_price_bp, no_price_bp, volume_kopecks,
	created_at, updated_at`

func scanMarket(row interface{ Scan(...interface{}) error }) (*core.Market, error) {
	var (
		m          core.Market
		outcome    sql.NullString
		resolvedAt sql.NullTime
	)
	err := row.Scan(&m.ID, &m.Title, &m.Description, &m.Category, &m.Deadline,
		&m.Resolved, &outcome, &resolvedAt, &m.YesPriceBP, &m.NoPriceBP,
		&m.VolumeKopecks, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if outcome.Valid {
		m.Outcome = core.Side(outcome.String)
	}
	if resolvedAt.Valid {
		m.ResolvedAt = resolvedAt.Time
	}
	return &m, nil
}

func (q *queries) CreateMarket(ctx context.Context, m *core.Market) (*core.Market, error) {
	row := q.ex.QueryRowContext(ctx, `
		INSERT INTO markets (title, description, category, deadline, yes_price_bp, no_price_bp)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+marketColumns,
		m.Title, m.Description, m.Category, m.Deadline,
		orDefaultBP(m.YesPriceBP), orDefaultBP(m.NoPriceBP))

	created, err := scanMarket(row)
	if err != nil {
		return nil, mapErr("create market", err)
	}
	return created, nil
}

func orDefaultBP(bp int) int {
	if bp == 0 {
		return 5000
	}
	return bp
}

func (q *queries) MarketByID(ctx context.Context, id int64) (*core.Market, error) {
	row := q.ex.QueryRowContext(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		return nil, mapErr("get market", err)
	}
	return m, nil
}

func (q *queries) MarketByIDForUpdate(ctx context.Context, id int64) (*core.Market, error) {
	row := q.ex.QueryRowContext(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1 FOR UPDATE`, id)
	m, err := scanMarket(row)
	if err != nil {
		return nil, mapErr("lock market", err)
	}
	return m, nil
}

func (q *queries) Markets(ctx context.Context, f storage.MarketFilter) ([]*core.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE 1=1`
	args := []interface{}{}
	if f.Category != "" {
		args = append(args, f.Category)
		query += ` AND category = $1`
	}
	if f.Resolved != nil {
		args = append(args, *f.Resolved)
		query += ` AND resolved = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := q.ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list markets", err)
	}
	defer rows.Close()

	var out []*core.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, mapErr("list markets", err)
		}
		out = append(out, m)
	}
	return out, mapErr("list markets", rows.Err())
}

func (q *queries) MarkMarketResolved(ctx context.Context, id int64, outcome core.Side, at time.Time) error {
	res, err := q.ex.ExecContext(ctx, `
		UPDATE markets SET resolved = TRUE, outcome = $2, resolved_at = $3, updated_at = now()
		WHERE id = $1`, id, string(outcome), at)
	if err != nil {
		return mapErr("resolve market", err)
	}
	return requireRow(res, "resolve market")
}

func (q *queries) RecordMarketTrade(ctx context.Context, id int64, yesPriceBP int, amountKopecks int64) error {
	res, err := q.ex.ExecContext(ctx, `
		UPDATE markets SET
			yes_price_bp = $2,
			no_price_bp = $3,
			volume_kopecks = volume_kopecks + $4,
			updated_at = now()
		WHERE id = $1`,
		id, yesPriceBP, core.PriceScaleBP-yesPriceBP, amountKopecks)
	if err != nil {
		return mapErr("record market trade", err)
	}
	return requireRow(res, "record market trade")
}

func (q *queries) MarketHasOrders(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := q.ex.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE market_id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, mapErr("check market orders", err)
	}
	return exists, nil
}

func (q *queries) DeleteMarket(ctx context.Context, id int64) error {
	res, err := q.ex.ExecContext(ctx, `DELETE FROM markets WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete market", err)
	}
	return requireRow(res, "delete market")
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(op, err)
	}
	if n == 0 {
		return core.Errorf(core.KindNotFound, "%s: not found", op)
	}
	return nil
}
