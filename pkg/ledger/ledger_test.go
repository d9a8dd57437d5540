package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/storage/memory"
)

func seedUser(t *testing.T, store *memory.Store) *core.User {
	t.Helper()
	u, err := store.UpsertUserByTelegramID(context.Background(), 100, "alice", "Alice")
	require.NoError(t, err)
	return u
}

func entry(t *testing.T, store *memory.Store, userID, amount int64, typ core.EntryType) {
	t.Helper()
	_, err := store.AppendLedger(context.Background(), &core.LedgerEntry{
		UserID: userID, AmountKopecks: amount, Type: typ,
	})
	require.NoError(t, err)
}

func TestBalanceFromEntries(t *testing.T) {
	store := memory.New()
	u := seedUser(t, store)
	ctx := context.Background()

	entry(t, store, u.ID, 10_000, core.EntryDeposit)
	entry(t, store, u.ID, -3_000, core.EntryOrderLock)

	b, err := For(ctx, store, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(7_000), b.TotalKopecks)
	require.Equal(t, int64(7_000), b.AvailableKopecks)
}

func TestLockedTracksRestingOrders(t *testing.T) {
	store := memory.New()
	u := seedUser(t, store)
	ctx := context.Background()

	market, err := store.CreateMarket(ctx, &core.Market{
		Title: "test", Deadline: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	entry(t, store, u.ID, 10_000, core.EntryDeposit)
	_, err = store.CreateOrder(ctx, &core.Order{
		UserID: u.ID, MarketID: market.ID,
		Side: core.Yes, PriceBP: 6500, AmountKopecks: 3_000,
	})
	require.NoError(t, err)

	locked, err := Locked(ctx, store, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3_000), locked)
}

func TestLockedReleasedAfterResolution(t *testing.T) {
	store := memory.New()
	u := seedUser(t, store)
	ctx := context.Background()

	market, err := store.CreateMarket(ctx, &core.Market{
		Title: "test", Deadline: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	yes, err := store.CreateOrder(ctx, &core.Order{
		UserID: u.ID, MarketID: market.ID,
		Side: core.Yes, PriceBP: 6500, AmountKopecks: 10_000,
	})
	require.NoError(t, err)
	other, err := store.UpsertUserByTelegramID(ctx, 200, "bob", "Bob")
	require.NoError(t, err)
	no, err := store.CreateOrder(ctx, &core.Order{
		UserID: other.ID, MarketID: market.ID,
		Side: core.No, PriceBP: 3500, AmountKopecks: 10_000,
	})
	require.NoError(t, err)

	require.NoError(t, store.UpdateOrderFill(ctx, yes.ID, 10_000, core.OrderFilled))
	require.NoError(t, store.UpdateOrderFill(ctx, no.ID, 10_000, core.OrderFilled))
	_, err = store.CreateTrade(ctx, &core.Trade{
		MarketID: market.ID, YesOrderID: yes.ID, NoOrderID: no.ID,
		PriceBP: 6500, AmountKopecks: 10_000,
		YesCostKopecks: 6_500, NoCostKopecks: 3_500,
	})
	require.NoError(t, err)

	locked, err := Locked(ctx, store, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(6_500), locked)

	require.NoError(t, store.MarkMarketResolved(ctx, market.ID, core.Yes, time.Now()))

	locked, err = Locked(ctx, store, u.ID)
	require.NoError(t, err)
	require.Zero(t, locked)
}

func TestAvailableFloorsAtZero(t *testing.T) {
	store := memory.New()
	u := seedUser(t, store)
	ctx := context.Background()

	entry(t, store, u.ID, 1_000, core.EntryDeposit)
	entry(t, store, u.ID, -1_500, core.EntryFee)

	available, err := Available(ctx, store, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), available)
}

func TestRequireFunds(t *testing.T) {
	store := memory.New()
	u := seedUser(t, store)
	ctx := context.Background()

	entry(t, store, u.ID, 500, core.EntryDeposit)

	require.NoError(t, RequireFunds(ctx, store, u.ID, 500))

	err := RequireFunds(ctx, store, u.ID, 501)
	require.ErrorIs(t, err, core.ErrInsufficientFunds)
}

func TestUnknownUserHasZeroBalance(t *testing.T) {
	store := memory.New()

	b, err := For(context.Background(), store, 42)
	require.NoError(t, err)
	require.Zero(t, b.TotalKopecks)
	require.Zero(t, b.AvailableKopecks)
	require.Zero(t, b.LockedKopecks)
}
