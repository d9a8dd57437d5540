// Package storage defines the persistence contracts for the exchange.
// Implementations: postgres (production) and memory (tests, seed demos).
package storage

import (
	"context"
	"time"

	"github.com/pefandor/pravda-market/pkg/core"
)

type MarketFilter struct {
	Category string
	Resolved *bool
}

type OrderFilter struct {
	MarketID int64 // 0 = all markets
	Status   core.OrderStatus
}

// Querier is the flat data-access surface. Inside Store.WithinTx every
// call runs on the same transaction; outside, each call is autocommit.
type Querier interface {
	// Users
	UpsertUserByTelegramID(ctx context.Context, telegramID int64, username, firstName string) (*core.User, error)
	UserByID(ctx context.Context, id int64) (*core.User, error)
	UserByTelegramID(ctx context.Context, telegramID int64) (*core.User, error)

	// Markets
	CreateMarket(ctx context.Context, m *core.Market) (*core.Market, error)
	MarketByID(ctx context.Context, id int64) (*core.Market, error)
	// MarketByIDForUpdate locks the market row for the rest of the
	// transaction. Callers must be inside WithinTx.
	MarketByIDForUpdate(ctx context.Context, id int64) (*core.Market, error)
	Markets(ctx context.Context, f MarketFilter) ([]*core.Market, error)
	MarkMarketResolved(ctx context.Context, id int64, outcome core.Side, at time.Time) error
	// RecordMarketTrade bumps volume and sets the last-traded quote.
	RecordMarketTrade(ctx context.Context, id int64, yesPriceBP int, amountKopecks int64) error
	MarketHasOrders(ctx context.Context, id int64) (bool, error)
	DeleteMarket(ctx context.Context, id int64) error

	// Orders
	CreateOrder(ctx context.Context, o *core.Order) (*core.Order, error)
	OrderByID(ctx context.Context, id int64) (*core.Order, error)
	OrderByIDForUpdate(ctx context.Context, id int64) (*core.Order, error)
	OrdersByUser(ctx context.Context, userID int64, f OrderFilter) ([]*core.Order, error)
	RestingOrdersByMarket(ctx context.Context, marketID int64) ([]*core.Order, error)
	UpdateOrderFill(ctx context.Context, id int64, filledKopecks int64, status core.OrderStatus) error
	// BestCounterOrder returns the best resting order on the given side of
	// the market with price_bp >= minPriceBP, price-time priority, locked
	// with SKIP LOCKED so concurrent matchers never block on each other.
	// excludeOrderID keeps an order from matching itself.
	// Returns (nil, nil) when no candidate is available.
	BestCounterOrder(ctx context.Context, marketID int64, side core.Side, minPriceBP int, excludeOrderID int64) (*core.Order, error)
	// BookLevels aggregates remaining amounts per price for one side,
	// best price first.
	BookLevels(ctx context.Context, marketID int64, side core.Side) ([]core.BookLevel, error)

	// Trades
	CreateTrade(ctx context.Context, t *core.Trade) (*core.Trade, error)
	TradesByMarket(ctx context.Context, marketID int64) ([]*core.Trade, error)
	TradesForUser(ctx context.Context, userID, marketID int64, limit int) ([]*core.Trade, error)

	// Ledger (append-only)
	AppendLedger(ctx context.Context, e *core.LedgerEntry) (*core.LedgerEntry, error)
	LedgerSum(ctx context.Context, userID int64) (int64, error)
	// LedgerSumForUpdate locks the user's entries while summing, serializing
	// concurrent spends. Callers must be inside WithinTx.
	LedgerSumForUpdate(ctx context.Context, userID int64) (int64, error)
	// LockedFunds is the display-only locked readout: remaining amounts of
	// the user's resting orders plus their costs in trades of unresolved
	// markets. Settled stakes no longer count as locked.
	LockedFunds(ctx context.Context, userID int64) (int64, error)
	// LedgerSumForTrades sums entries of the given types referencing any of
	// the trade ids. Used by the settlement conservation check.
	LedgerSumForTrades(ctx context.Context, types []core.EntryType, tradeIDs []int64) (int64, error)
	LedgerEntries(ctx context.Context, userID int64, limit, offset int) ([]*core.LedgerEntry, error)
	LedgerEntryByID(ctx context.Context, id int64) (*core.LedgerEntry, error)
	// SetLedgerReference back-fills reference_id on a deposit entry created
	// before its chain record id was known. The only ledger mutation.
	SetLedgerReference(ctx context.Context, entryID, referenceID int64) error

	// Chain deposits
	CreateChainDeposit(ctx context.Context, d *core.ChainDeposit) (*core.ChainDeposit, error)
	UpdateChainDeposit(ctx context.Context, id int64, status core.DepositStatus, userID, ledgerEntryID int64) error
	LastProcessedLT(ctx context.Context) (int64, error)

	// Withdrawals
	CreateWithdrawal(ctx context.Context, w *core.WithdrawalRequest) (*core.WithdrawalRequest, error)
	WithdrawalByID(ctx context.Context, id int64) (*core.WithdrawalRequest, error)
	WithdrawalByIDForUpdate(ctx context.Context, id int64) (*core.WithdrawalRequest, error)
	WithdrawalsByUser(ctx context.Context, userID int64) ([]*core.WithdrawalRequest, error)
	WithdrawalsByStatus(ctx context.Context, status core.WithdrawalStatus) ([]*core.WithdrawalRequest, error)
	UpdateWithdrawalStatus(ctx context.Context, id int64, status core.WithdrawalStatus, txHash string, processedAt time.Time) error
	// WithdrawalDailyTotal sums nanoTON requested by the user since the
	// cutoff, excluding cancelled and failed requests.
	WithdrawalDailyTotal(ctx context.Context, userID int64, since time.Time) (int64, error)
}

// Store is the top-level handle. WithinTx runs fn inside one transaction,
// committing on nil and rolling back on error; the Querier passed to fn is
// only valid for the duration of the call.
type Store interface {
	Querier
	WithinTx(ctx context.Context, fn func(ctx context.Context, q Querier) error) error
	Ping(ctx context.Context) error
	Close() error
}
