package postgres

import (
	"context"

	"github.com/pefandor/pravda-market/pkg/core"
)

// Schema statements are idempotent; applied in order on startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		telegram_id BIGINT NOT NULL UNIQUE,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS markets (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		deadline TIMESTAMPTZ NOT NULL,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		outcome TEXT NULL CHECK (outcome IN ('yes', 'no')),
		resolved_at TIMESTAMPTZ NULL,
		yes_price_bp INTEGER NOT NULL DEFAULT 5000,
		no_price_bp INTEGER NOT NULL DEFAULT 5000,
		volume_kopecks BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		market_id BIGINT NOT NULL REFERENCES markets(id),
		side TEXT NOT NULL CHECK (side IN ('yes', 'no')),
		price_bp INTEGER NOT NULL CHECK (price_bp >= 0 AND price_bp <= 10000),
		amount_kopecks BIGINT NOT NULL CHECK (amount_kopecks > 0),
		filled_kopecks BIGINT NOT NULL DEFAULT 0
			CHECK (filled_kopecks >= 0 AND filled_kopecks <= amount_kopecks),
		status TEXT NOT NULL DEFAULT 'open'
			CHECK (status IN ('open', 'partial', 'filled', 'cancelled')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_matching
		ON orders (market_id, side, price_bp, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders (user_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS ledger (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		amount_kopecks BIGINT NOT NULL,
		type TEXT NOT NULL CHECK (type IN (
			'deposit', 'order_lock', 'order_unlock', 'trade_lock',
			'payout', 'fee', 'withdrawal_pending', 'withdrawal_cancelled')),
		reference_id BIGINT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_user_type ON ledger (user_id, type)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_type_ref ON ledger (type, reference_id)`,

	`CREATE TABLE IF NOT EXISTS trades (
		id BIGSERIAL PRIMARY KEY,
		market_id BIGINT NOT NULL REFERENCES markets(id),
		yes_order_id BIGINT NOT NULL REFERENCES orders(id),
		no_order_id BIGINT NOT NULL REFERENCES orders(id),
		price_bp INTEGER NOT NULL CHECK (price_bp >= 0 AND price_bp <= 10000),
		amount_kopecks BIGINT NOT NULL CHECK (amount_kopecks > 0),
		yes_cost_kopecks BIGINT NOT NULL CHECK (yes_cost_kopecks >= 0),
		no_cost_kopecks BIGINT NOT NULL CHECK (no_cost_kopecks >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (yes_cost_kopecks + no_cost_kopecks = amount_kopecks)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_market_created
		ON trades (market_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_yes_order ON trades (yes_order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_no_order ON trades (no_order_id)`,

	`CREATE TABLE IF NOT EXISTS ton_transactions (
		id BIGSERIAL PRIMARY KEY,
		tx_hash TEXT NOT NULL UNIQUE,
		lt BIGINT NOT NULL DEFAULT 0,
		sender_address TEXT NOT NULL DEFAULT '',
		amount_nanoton BIGINT NOT NULL CHECK (amount_nanoton > 0),
		telegram_id BIGINT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'confirmed', 'credited', 'failed')),
		user_id BIGINT NULL REFERENCES users(id),
		ledger_entry_id BIGINT NULL REFERENCES ledger(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ton_transactions_lt ON ton_transactions (lt)`,

	`CREATE TABLE IF NOT EXISTS withdrawal_requests (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		ton_address TEXT NOT NULL,
		amount_nanoton BIGINT NOT NULL CHECK (amount_nanoton > 0),
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'processing', 'completed', 'failed', 'cancelled')),
		tx_hash TEXT NULL UNIQUE,
		ledger_entry_id BIGINT NULL REFERENCES ledger(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed_at TIMESTAMPTZ NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_withdrawals_user
		ON withdrawal_requests (user_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_withdrawals_status
		ON withdrawal_requests (status, created_at)`,
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return core.Wrap(core.KindStorageUnavailable, "init schema", err)
		}
	}
	return nil
}
