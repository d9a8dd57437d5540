package postgres

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/pefandor/pravda-market/pkg/core"
)

const tradeColumns = `id, market_id, yes_order_id, no_order_id, price_bp,
	amount_kopecks, yes_cost_kopecks, no_cost_kopecks, created_at`

func scanTrade(row interface{ Scan(...interface{}) error }) (*core.Trade, error) {
	var t core.Trade
	err := row.Scan(&t.ID, &t.MarketID, &t.YesOrderID, &t.NoOrderID, &t.PriceBP,
		&t.AmountKopecks, &t.YesCostKopecks, &t.NoCostKopecks, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (q *queries) CreateTrade(ctx context.Context, t *core.Trade) (*core.Trade, error) {
	row := q.ex.QueryRowContext(ctx, `
		INSERT INTO trades (market_id, yes_order_id, no_order_id, price_bp,
			amount_kopecks, yes_cost_kopecks, no_cost_kopecks)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+tradeColumns,
		t.MarketID, t.YesOrderID, t.NoOrderID, t.PriceBP,
		t.AmountKopecks, t.YesCostKopecks, t.NoCostKopecks)

	created, err := scanTrade(row)
	if err != nil {
		return nil, mapErr("create trade", err)
	}
	return created, nil
}

func (q *queries) TradesByMarket(ctx context.Context, marketID int64) ([]*core.Trade, error) {
	rows, err := q.ex.QueryContext(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE market_id = $1
		ORDER BY created_at ASC`, marketID)
	if err != nil {
		return nil, mapErr("list trades", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// TradesForUser returns trades where the user owns either side's order.
// The caller decides which per-trade fields are safe to show.
func (q *queries) TradesForUser(ctx context.Context, userID, marketID int64, limit int) ([]*core.Trade, error) {
	query := `
		SELECT ` + tradeColumns + ` FROM trades t
		WHERE EXISTS (
			SELECT 1 FROM orders o
			WHERE o.user_id = $1 AND o.id IN (t.yes_order_id, t.no_order_id)
		)`
	args := []interface{}{userID}
	if marketID != 0 {
		args = append(args, marketID)
		query += ` AND t.market_id = $2`
	}
	query += ` ORDER BY t.created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := q.ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list user trades", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

func collectTrades(rows *sql.Rows) ([]*core.Trade, error) {
	var out []*core.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, mapErr("scan trade", err)
		}
		out = append(out, t)
	}
	return out, mapErr("scan trade", rows.Err())
}
