package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/ledger"
	"github.com/pefandor/pravda-market/pkg/storage"
	"github.com/pefandor/pravda-market/pkg/storage/memory"
)

const (
	testMaxTrades = 50
	testFeeRateBP = 200
)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Store
	engine *Engine
	users  []int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  memory.New(),
		engine: New(zap.NewNop(), testMaxTrades, testFeeRateBP),
	}
}

func (f *fixture) user(telegramID, depositKopecks int64) *core.User {
	f.t.Helper()
	u, err := f.store.UpsertUserByTelegramID(f.ctx, telegramID, "", "")
	require.NoError(f.t, err)
	if depositKopecks > 0 {
		_, err = f.store.AppendLedger(f.ctx, &core.LedgerEntry{
			UserID: u.ID, AmountKopecks: depositKopecks, Type: core.EntryDeposit,
		})
		require.NoError(f.t, err)
	}
	f.users = append(f.users, u.ID)
	return u
}

func (f *fixture) market() *core.Market {
	f.t.Helper()
	m, err := f.store.CreateMarket(f.ctx, &core.Market{
		Title: "will it happen", Deadline: time.Now().Add(24 * time.Hour),
	})
	require.NoError(f.t, err)
	return m
}

// place persists the order with its initial lock and runs matching, the
// same sequence the bet-placement service performs.
func (f *fixture) place(userID, marketID int64, side core.Side, priceBP int, amount int64) (*core.Order, []*core.Trade) {
	f.t.Helper()
	var (
		placed *core.Order
		trades []*core.Trade
	)
	err := f.store.WithinTx(f.ctx, func(ctx context.Context, q storage.Querier) error {
		if err := ledger.RequireFunds(ctx, q, userID, amount); err != nil {
			return err
		}
		order, err := q.CreateOrder(ctx, &core.Order{
			UserID: userID, MarketID: marketID,
			Side: side, PriceBP: priceBP, AmountKopecks: amount,
		})
		if err != nil {
			return err
		}
		if _, err := q.AppendLedger(ctx, &core.LedgerEntry{
			UserID: userID, AmountKopecks: -amount,
			Type: core.EntryOrderLock, ReferenceID: order.ID,
		}); err != nil {
			return err
		}
		trades, err = f.engine.Match(ctx, q, order)
		if err != nil {
			return err
		}
		placed, err = q.OrderByID(ctx, order.ID)
		return err
	})
	require.NoError(f.t, err)
	return placed, trades
}

func (f *fixture) resolve(marketID int64, outcome core.Side) (*SettlementResult, error) {
	var result *SettlementResult
	err := f.store.WithinTx(f.ctx, func(ctx context.Context, q storage.Querier) error {
		var err error
		result, err = f.engine.SettleMarket(ctx, q, marketID, outcome, time.Now())
		return err
	})
	return result, err
}

func (f *fixture) balance(userID int64) ledger.Balance {
	f.t.Helper()
	b, err := ledger.For(f.ctx, f.store, userID)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) ledgerTotal() int64 {
	f.t.Helper()
	var total int64
	for _, id := range f.users {
		sum, err := f.store.LedgerSum(f.ctx, id)
		require.NoError(f.t, err)
		total += sum
	}
	return total
}

func TestExactMatchFillsBothOrders(t *testing.T) {
	f := newFixture(t)
	a := f.user(1, 100_000)
	b := f.user(2, 100_000)
	m := f.market()
	before := f.ledgerTotal()

	yesOrder, trades := f.place(a.ID, m.ID, core.Yes, 6500, 10_000)
	require.Empty(t, trades)
	require.Equal(t, core.OrderOpen, yesOrder.Status)

	noOrder, trades := f.place(b.ID, m.ID, core.No, 3500, 10_000)
	require.Len(t, trades, 1)
	require.Equal(t, core.OrderFilled, noOrder.Status)

	trade := trades[0]
	require.Equal(t, int64(10_000), trade.AmountKopecks)
	require.Equal(t, 6500, trade.PriceBP)
	require.Equal(t, int64(6_500), trade.YesCostKopecks)
	require.Equal(t, int64(3_500), trade.NoCostKopecks)

	filledYes, err := f.store.OrderByID(f.ctx, yesOrder.ID)
	require.NoError(t, err)
	require.Equal(t, core.OrderFilled, filledYes.Status)

	ba := f.balance(a.ID)
	require.Equal(t, int64(93_500), ba.AvailableKopecks)
	require.Equal(t, int64(6_500), ba.LockedKopecks)

	bb := f.balance(b.ID)
	require.Equal(t, int64(96_500), bb.AvailableKopecks)
	require.Equal(t, int64(3_500), bb.LockedKopecks)

	require.Equal(t, before, f.ledgerTotal(), "matching must not move the ledger sum")
}

func TestSettlementPaysWinnerAndCollectsFee(t *testing.T) {
	f := newFixture(t)
	a := f.user(1, 100_000)
	b := f.user(2, 100_000)
	m := f.market()

	f.place(a.ID, m.ID, core.Yes, 6500, 10_000)
	f.place(b.ID, m.ID, core.No, 3500, 10_000)
	before := f.ledgerTotal()

	result, err := f.resolve(m.ID, core.Yes)
	require.NoError(t, err)
	require.Equal(t, 1, result.TradesSettled)
	require.Equal(t, int64(10_000), result.GrossPotKopecks)
	require.Equal(t, int64(200), result.FeesKopecks)

	resolved, err := f.store.MarketByID(f.ctx, m.ID)
	require.NoError(t, err)
	require.True(t, resolved.Resolved)
	require.Equal(t, core.Yes, resolved.Outcome)

	ba := f.balance(a.ID)
	require.Equal(t, int64(103_300), ba.AvailableKopecks)
	require.Zero(t, ba.LockedKopecks)

	bb := f.balance(b.ID)
	require.Equal(t, int64(96_500), bb.AvailableKopecks)
	require.Zero(t, bb.LockedKopecks)

	require.Equal(t, before-200, f.ledgerTotal(), "resolution must move the ledger by exactly the fees")
}

func TestPartialFillLeavesResidueOnBook(t *testing.T) {
	f := newFixture(t)
	a := f.user(1, 100_000)
	b := f.user(2, 100_000)
	m := f.market()

	f.place(a.ID, m.ID, core.Yes, 6000, 30_000)
	noOrder, trades := f.place(b.ID, m.ID, core.No, 4000, 10_000)

	require.Len(t, trades, 1)
	require.Equal(t, core.OrderFilled, noOrder.Status)
	require.Equal(t, int64(6_000), trades[0].YesCostKopecks)
	require.Equal(t, int64(4_000), trades[0].NoCostKopecks)

	orders, err := f.store.OrdersByUser(f.ctx, a.ID, storage.OrderFilter{MarketID: m.ID})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, core.OrderPartial, orders[0].Status)
	require.Equal(t, int64(10_000), orders[0].FilledKopecks)
}

func TestTradeCapBoundsWorkPerOrder(t *testing.T) {
	f := newFixture(t)
	a := f.user(1, 100_000)
	b := f.user(2, 100_000)
	m := f.market()

	for i := 0; i < 100; i++ {
		order, trades := f.place(b.ID, m.ID, core.No, 3500, 200)
		require.Empty(t, trades)
		require.Equal(t, core.OrderOpen, order.Status)
	}

	aggressor, trades := f.place(a.ID, m.ID, core.Yes, 6500, 20_000)
	require.Len(t, trades, testMaxTrades)
	require.Equal(t, core.OrderPartial, aggressor.Status)
	require.Equal(t, int64(10_000), aggressor.FilledKopecks)

	resting, err := f.store.OrdersByUser(f.ctx, b.ID, storage.OrderFilter{
		MarketID: m.ID, Status: core.OrderOpen,
	})
	require.NoError(t, err)
	require.Len(t, resting, 50, "untouched resting orders past the cap")
}

func TestPriceTimePriority(t *testing.T) {
	f := newFixture(t)
	a := f.user(1, 100_000)
	b := f.user(2, 100_000)
	c := f.user(3, 100_000)
	m := f.market()

	// Two NO orders: better price (4000) posted after a worse one (3500).
	worse, _ := f.place(b.ID, m.ID, core.No, 3500, 10_000)
	better, _ := f.place(c.ID, m.ID, core.No, 4000, 10_000)

	_, trades := f.place(a.ID, m.ID, core.Yes, 6500, 10_000)
	require.Len(t, trades, 1)
	require.Equal(t, better.ID, trades[0].NoOrderID, "higher counter price wins")
	// Resting NO at 4000 implies a YES price of 6000: the aggressor at
	// 6500 gets the resting order's terms.
	require.Equal(t, 6000, trades[0].PriceBP)

	untouched, err := f.store.OrderByID(f.ctx, worse.ID)
	require.NoError(t, err)
	require.Equal(t, core.OrderOpen, untouched.Status)
}

func TestFIFOAtSamePrice(t *testing.T) {
	f := newFixture(t)
	a := f.user(1, 100_000)
	b := f.user(2, 100_000)
	m := f.market()

	first, _ := f.place(b.ID, m.ID, core.No, 3500, 5_000)
	second, _ := f.place(b.ID, m.ID, core.No, 3500, 5_000)

	_, trades := f.place(a.ID, m.ID, core.Yes, 6500, 5_000)
	require.Len(t, trades, 1)
	require.Equal(t, first.ID, trades[0].NoOrderID)

	stillOpen, err := f.store.OrderByID(f.ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, core.OrderOpen, stillOpen.Status)
}

func TestIncompatiblePricesDoNotMatch(t *testing.T) {
	f := newFixture(t)
	a := f.user(1, 100_000)
	b := f.user(2, 100_000)
	m := f.market()

	f.place(a.ID, m.ID, core.Yes, 6000, 10_000)
	order, trades := f.place(b.ID, m.ID, core.No, 3900, 10_000)

	require.Empty(t, trades)
	require.Equal(t, core.OrderOpen, order.Status)
}

func TestSecondResolveConflicts(t *testing.T) {
	f := newFixture(t)
	a := f.user(1, 100_000)
	b := f.user(2, 100_000)
	m := f.market()

	f.place(a.ID, m.ID, core.Yes, 6500, 10_000)
	f.place(b.ID, m.ID, core.No, 3500, 10_000)

	_, err := f.resolve(m.ID, core.Yes)
	require.NoError(t, err)
	after := f.ledgerTotal()

	_, err = f.resolve(m.ID, core.No)
	require.ErrorIs(t, err, core.ErrConflict)
	require.Equal(t, after, f.ledgerTotal(), "failed resolve must write nothing")
}

func TestResolutionCancelsRestingOrders(t *testing.T) {
	f := newFixture(t)
	a := f.user(1, 100_000)
	b := f.user(2, 100_000)
	m := f.market()
	before := f.ledgerTotal()

	// A's order half-fills against B and rests with 10 000 still locked.
	yesOrder, _ := f.place(a.ID, m.ID, core.Yes, 6000, 20_000)
	f.place(b.ID, m.ID, core.No, 4000, 10_000)
	require.Equal(t, core.OrderPartial, yesOrder.Status)

	result, err := f.resolve(m.ID, core.Yes)
	require.NoError(t, err)
	require.Equal(t, 1, result.TradesSettled)
	require.Equal(t, 1, result.OrdersCancelled)

	reloaded, err := f.store.OrderByID(f.ctx, yesOrder.ID)
	require.NoError(t, err)
	require.Equal(t, core.OrderCancelled, reloaded.Status)
	require.Equal(t, int64(10_000), reloaded.FilledKopecks)

	// A: stake 6 000 on the filled half, pot 10 000 back minus 200 fee,
	// plus the 10 000 unfilled remainder returned.
	balA := f.balance(a.ID)
	require.Equal(t, int64(103_800), balA.TotalKopecks)
	require.Zero(t, balA.LockedKopecks)

	balB := f.balance(b.ID)
	require.Equal(t, int64(96_000), balB.TotalKopecks)
	require.Zero(t, balB.LockedKopecks)

	require.Equal(t, before-result.FeesKopecks, f.ledgerTotal())
}

func TestResolveRefundsUnmatchedOrder(t *testing.T) {
	f := newFixture(t)
	a := f.user(1, 50_000)
	m := f.market()

	f.place(a.ID, m.ID, core.Yes, 7000, 20_000)

	result, err := f.resolve(m.ID, core.No)
	require.NoError(t, err)
	require.Zero(t, result.TradesSettled)
	require.Equal(t, 1, result.OrdersCancelled)

	bal := f.balance(a.ID)
	require.Equal(t, int64(50_000), bal.TotalKopecks)
	require.Equal(t, int64(50_000), bal.AvailableKopecks)
	require.Zero(t, bal.LockedKopecks)
}

func TestResolveEmptyMarket(t *testing.T) {
	f := newFixture(t)
	m := f.market()

	result, err := f.resolve(m.ID, core.No)
	require.NoError(t, err)
	require.Zero(t, result.TradesSettled)
	require.Zero(t, result.FeesKopecks)
}

func TestSettleRejectsBadOutcome(t *testing.T) {
	f := newFixture(t)
	m := f.market()

	_, err := f.resolve(m.ID, core.Side("maybe"))
	require.ErrorIs(t, err, core.ErrValidation)
}
