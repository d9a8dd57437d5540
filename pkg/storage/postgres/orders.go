package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/storage"
)

const orderColumns = `id, user_id, market_id, side, price_bp,
	amount_kopecks, filled_kopecks, status, created_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (*core.Order, error) {
	var o core.Order
	err := row.Scan(&o.ID, &o.UserID, &o.MarketID, &o.Side, &o.PriceBP,
		&o.AmountKopecks, &o.FilledKopecks, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (q *queries) CreateOrder(ctx context.Context, o *core.Order) (*core.Order, error) {
	row := q.ex.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, market_id, side, price_bp, amount_kopecks, status)
		VALUES ($1, $2, $3, $4, $5, 'open')
		RETURNING `+orderColumns,
		o.UserID, o.MarketID, string(o.Side), o.PriceBP, o.AmountKopecks)

	created, err := scanOrder(row)
	if err != nil {
		return nil, mapErr("create order", err)
	}
	return created, nil
}

func (q *queries) OrderByID(ctx context.Context, id int64) (*core.Order, error) {
	row := q.ex.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		return nil, mapErr("get order", err)
	}
	return o, nil
}

func (q *queries) OrderByIDForUpdate(ctx context.Context, id int64) (*core.Order, error) {
	row := q.ex.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	o, err := scanOrder(row)
	if err != nil {
		return nil, mapErr("lock order", err)
	}
	return o, nil
}

func (q *queries) OrdersByUser(ctx context.Context, userID int64, f storage.OrderFilter) ([]*core.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1`
	args := []interface{}{userID}
	if f.MarketID != 0 {
		args = append(args, f.MarketID)
		query += ` AND market_id = $` + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := q.ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list orders", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (q *queries) RestingOrdersByMarket(ctx context.Context, marketID int64) ([]*core.Order, error) {
	rows, err := q.ex.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE market_id = $1 AND status IN ('open', 'partial')
		ORDER BY created_at ASC`, marketID)
	if err != nil {
		return nil, mapErr("list resting orders", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func collectOrders(rows *sql.Rows) ([]*core.Order, error) {
	var out []*core.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, mapErr("scan order", err)
		}
		out = append(out, o)
	}
	return out, mapErr("scan order", rows.Err())
}

func (q *queries) UpdateOrderFill(ctx context.Context, id int64, filledKopecks int64, status core.OrderStatus) error {
	res, err := q.ex.ExecContext(ctx, `
		UPDATE orders SET filled_kopecks = $2, status = $3, updated_at = now()
		WHERE id = $1`, id, filledKopecks, string(status))
	if err != nil {
		return mapErr("update order fill", err)
	}
	return requireRow(res, "update order fill")
}

// BestCounterOrder picks the best-priced, oldest resting order on the given
// side at or above minPriceBP. SKIP LOCKED hands each concurrent matcher a
// different candidate instead of queueing them on the same row.
func (q *queries) BestCounterOrder(ctx context.Context, marketID int64, side core.Side, minPriceBP int, excludeOrderID int64) (*core.Order, error) {
	row := q.ex.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE market_id = $1 AND side = $2
			AND status IN ('open', 'partial')
			AND price_bp >= $3
			AND id <> $4
		ORDER BY price_bp DESC, created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
		marketID, string(side), minPriceBP, excludeOrderID)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr("best counter order", err)
	}
	return o, nil
}

func (q *queries) BookLevels(ctx context.Context, marketID int64, side core.Side) ([]core.BookLevel, error) {
	rows, err := q.ex.QueryContext(ctx, `
		SELECT price_bp, SUM(amount_kopecks - filled_kopecks)
		FROM orders
		WHERE market_id = $1 AND side = $2 AND status IN ('open', 'partial')
		GROUP BY price_bp
		ORDER BY price_bp DESC`,
		marketID, string(side))
	if err != nil {
		return nil, mapErr("book levels", err)
	}
	defer rows.Close()

	var out []core.BookLevel
	for rows.Next() {
		var lvl core.BookLevel
		if err := rows.Scan(&lvl.PriceBP, &lvl.RemainingKopecks); err != nil {
			return nil, mapErr("book levels", err)
		}
		out = append(out, lvl)
	}
	return out, mapErr("book levels", rows.Err())
}
