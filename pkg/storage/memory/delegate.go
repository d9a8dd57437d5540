package memory

import (
	"context"
	"time"

	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/storage"
)

// Store-level calls take the lock per operation; inside WithinTx the lock
// is already held and the mem querier is used directly.

func (s *Store) UpsertUserByTelegramID(ctx context.Context, telegramID int64, username, firstName string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).UpsertUserByTelegramID(ctx, telegramID, username, firstName)
}

func (s *Store) UserByID(ctx context.Context, id int64) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).UserByID(ctx, id)
}

func (s *Store) UserByTelegramID(ctx context.Context, telegramID int64) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).UserByTelegramID(ctx, telegramID)
}

func (s *Store) CreateMarket(ctx context.Context, m *core.Market) (*core.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).CreateMarket(ctx, m)
}

func (s *Store) MarketByID(ctx context.Context, id int64) (*core.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).MarketByID(ctx, id)
}

func (s *Store) MarketByIDForUpdate(ctx context.Context, id int64) (*core.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).MarketByIDForUpdate(ctx, id)
}

func (s *Store) Markets(ctx context.Context, f storage.MarketFilter) ([]*core.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).Markets(ctx, f)
}

func (s *Store) MarkMarketResolved(ctx context.Context, id int64, outcome core.Side, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).MarkMarketResolved(ctx, id, outcome, at)
}

func (s *Store) RecordMarketTrade(ctx context.Context, id int64, yesPriceBP int, amountKopecks int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).RecordMarketTrade(ctx, id, yesPriceBP, amountKopecks)
}

func (s *Store) MarketHasOrders(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).MarketHasOrders(ctx, id)
}

func (s *Store) DeleteMarket(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).DeleteMarket(ctx, id)
}

func (s *Store) CreateOrder(ctx context.Context, o *core.Order) (*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).CreateOrder(ctx, o)
}

func (s *Store) OrderByID(ctx context.Context, id int64) (*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).OrderByID(ctx, id)
}

func (s *Store) OrderByIDForUpdate(ctx context.Context, id int64) (*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).OrderByIDForUpdate(ctx, id)
}

func (s *Store) OrdersByUser(ctx context.Context, userID int64, f storage.OrderFilter) ([]*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).OrdersByUser(ctx, userID, f)
}

func (s *Store) RestingOrdersByMarket(ctx context.Context, marketID int64) ([]*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).RestingOrdersByMarket(ctx, marketID)
}

func (s *Store) UpdateOrderFill(ctx context.Context, id int64, filledKopecks int64, status core.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).UpdateOrderFill(ctx, id, filledKopecks, status)
}

func (s *Store) BestCounterOrder(ctx context.Context, marketID int64, side core.Side, minPriceBP int, excludeOrderID int64) (*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).BestCounterOrder(ctx, marketID, side, minPriceBP, excludeOrderID)
}

func (s *Store) BookLevels(ctx context.Context, marketID int64, side core.Side) ([]core.BookLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).BookLevels(ctx, marketID, side)
}

func (s *Store) CreateTrade(ctx context.Context, t *core.Trade) (*core.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).CreateTrade(ctx, t)
}

func (s *Store) TradesByMarket(ctx context.Context, marketID int64) ([]*core.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).TradesByMarket(ctx, marketID)
}

func (s *Store) TradesForUser(ctx context.Context, userID, marketID int64, limit int) ([]*core.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).TradesForUser(ctx, userID, marketID, limit)
}

func (s *Store) AppendLedger(ctx context.Context, e *core.LedgerEntry) (*core.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).AppendLedger(ctx, e)
}

func (s *Store) LedgerSum(ctx context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).LedgerSum(ctx, userID)
}

func (s *Store) LedgerSumForUpdate(ctx context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).LedgerSumForUpdate(ctx, userID)
}

func (s *Store) LockedFunds(ctx context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).LockedFunds(ctx, userID)
}

func (s *Store) LedgerSumForTrades(ctx context.Context, types []core.EntryType, tradeIDs []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).LedgerSumForTrades(ctx, types, tradeIDs)
}

func (s *Store) LedgerEntries(ctx context.Context, userID int64, limit, offset int) ([]*core.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).LedgerEntries(ctx, userID, limit, offset)
}

func (s *Store) LedgerEntryByID(ctx context.Context, id int64) (*core.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).LedgerEntryByID(ctx, id)
}

func (s *Store) SetLedgerReference(ctx context.Context, entryID, referenceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).SetLedgerReference(ctx, entryID, referenceID)
}

func (s *Store) CreateChainDeposit(ctx context.Context, d *core.ChainDeposit) (*core.ChainDeposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).CreateChainDeposit(ctx, d)
}

func (s *Store) UpdateChainDeposit(ctx context.Context, id int64, status core.DepositStatus, userID, ledgerEntryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).UpdateChainDeposit(ctx, id, status, userID, ledgerEntryID)
}

func (s *Store) LastProcessedLT(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).LastProcessedLT(ctx)
}

func (s *Store) CreateWithdrawal(ctx context.Context, w *core.WithdrawalRequest) (*core.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).CreateWithdrawal(ctx, w)
}

func (s *Store) WithdrawalByID(ctx context.Context, id int64) (*core.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).WithdrawalByID(ctx, id)
}

func (s *Store) WithdrawalByIDForUpdate(ctx context.Context, id int64) (*core.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).WithdrawalByIDForUpdate(ctx, id)
}

func (s *Store) WithdrawalsByUser(ctx context.Context, userID int64) ([]*core.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).WithdrawalsByUser(ctx, userID)
}

func (s *Store) WithdrawalsByStatus(ctx context.Context, status core.WithdrawalStatus) ([]*core.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).WithdrawalsByStatus(ctx, status)
}

func (s *Store) UpdateWithdrawalStatus(ctx context.Context, id int64, status core.WithdrawalStatus, txHash string, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).UpdateWithdrawalStatus(ctx, id, status, txHash, processedAt)
}

func (s *Store) WithdrawalDailyTotal(ctx context.Context, userID int64, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&mem{d: s.d}).WithdrawalDailyTotal(ctx, userID, since)
}
