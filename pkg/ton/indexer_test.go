package ton

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pefandor/pravda-market/params"
	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/metrics"
	"github.com/pefandor/pravda-market/pkg/storage/memory"
)

// stubChain serves a mutable transaction list as the toncenter API.
type stubChain struct {
	mu  sync.Mutex
	txs []txFixture
}

func (s *stubChain) set(txs []txFixture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = txs
}

func (s *stubChain) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprint(w, toncenterResponse(s.txs))
}

func newTestIndexer(t *testing.T) (*Indexer, *stubChain, *memory.Store) {
	t.Helper()
	chain := &stubChain{}
	srv := httptest.NewServer(http.HandlerFunc(chain.handler))
	t.Cleanup(srv.Close)

	cfg := params.Default().Ton
	cfg.APIURL = srv.URL
	cfg.RetryAttempts = 0
	cfg.MinDepositNanoton = 100_000_000
	cfg.RateKopecksPerTon = 50_000

	clock := &fakeClock{now: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}
	client := NewClient(cfg, zap.NewNop(), clock)
	store := memory.New()
	ix := NewIndexer(client, store, zap.NewNop(), metrics.NewCollector(), clock, cfg)
	return ix, chain, store
}

func TestPollOnceCreditsDeposit(t *testing.T) {
	ix, chain, store := newTestIndexer(t)
	ctx := context.Background()

	chain.set([]txFixture{{
		hash:   "deposit-hash-1",
		lt:     1000,
		sender: "EQSenderAddress",
		value:  2_000_000_000, // 2 TON
		body:   depositBody(0x00000001, 555),
	}})

	credited, err := ix.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, credited)

	// A placeholder profile was created for the unseen telegram id.
	user, err := store.UserByTelegramID(ctx, 555)
	require.NoError(t, err)
	assert.Equal(t, "TON User 555", user.FirstName)

	// 2 TON at 500 RUB/TON.
	sum, err := store.LedgerSum(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), sum)

	lt, err := store.LastProcessedLT(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), lt)
}

func TestPollOnceIsIdempotentAcrossPolls(t *testing.T) {
	ix, chain, store := newTestIndexer(t)
	ctx := context.Background()

	chain.set([]txFixture{{
		hash:   "deposit-hash-dup",
		lt:     1000,
		sender: "EQSenderAddress",
		value:  1_000_000_000,
		body:   depositBody(0x00000001, 42),
	}})

	credited, err := ix.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, credited)

	// The poll window re-serves the same transaction; nothing is credited
	// a second time.
	credited, err = ix.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, credited)

	user, err := store.UserByTelegramID(ctx, 42)
	require.NoError(t, err)
	sum, err := store.LedgerSum(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), sum)

	entries, err := store.LedgerEntries(ctx, user.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPollOnceHonorsResumeCursor(t *testing.T) {
	ix, chain, store := newTestIndexer(t)
	ctx := context.Background()

	chain.set([]txFixture{{
		hash: "lt-1000", lt: 1000, sender: "EQa",
		value: 1_000_000_000, body: depositBody(0x00000001, 10),
	}})
	credited, err := ix.PollOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, credited)

	// A transaction below the credited logical time is never examined
	// again; one above it is.
	chain.set([]txFixture{
		{hash: "lt-900", lt: 900, sender: "EQb",
			value: 1_000_000_000, body: depositBody(0x00000001, 11)},
		{hash: "lt-1100", lt: 1100, sender: "EQc",
			value: 1_000_000_000, body: depositBody(0x00000001, 12)},
	})
	credited, err = ix.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, credited)

	_, err = store.UserByTelegramID(ctx, 11)
	require.ErrorIs(t, err, core.ErrNotFound)
	_, err = store.UserByTelegramID(ctx, 12)
	require.NoError(t, err)
}

func TestDuplicateHashAboveCursorIsNoOp(t *testing.T) {
	ix, chain, store := newTestIndexer(t)
	ctx := context.Background()

	chain.set([]txFixture{{
		hash: "dup-hash", lt: 500, sender: "EQa",
		value: 1_000_000_000, body: depositBody(0x00000001, 21),
	}})
	credited, err := ix.PollOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, credited)

	// The same transfer re-served with a higher logical time passes the
	// cursor check; the unique hash constraint still makes it a no-op.
	chain.set([]txFixture{{
		hash: "dup-hash", lt: 600, sender: "EQa",
		value: 1_000_000_000, body: depositBody(0x00000001, 21),
	}})
	credited, err = ix.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, credited)

	user, err := store.UserByTelegramID(ctx, 21)
	require.NoError(t, err)
	entries, err := store.LedgerEntries(ctx, user.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPollOnceSkipsNonDeposits(t *testing.T) {
	ix, chain, _ := newTestIndexer(t)
	ctx := context.Background()

	chain.set([]txFixture{
		{hash: "too-small", lt: 10, sender: "EQa", value: 50_000_000, body: depositBody(0x00000001, 1)},
		{hash: "no-memo", lt: 11, sender: "EQb", value: 1_000_000_000},
		{hash: "wrong-opcode", lt: 12, sender: "EQc", value: 1_000_000_000, body: depositBody(0xff, 1)},
		{hash: "bounced", lt: 13, sender: "EQd", value: 1_000_000_000, body: depositBody(0x00000001, 1), bounceBack: true},
	})

	credited, err := ix.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, credited)
}

func TestPollOnceCreditsExistingUser(t *testing.T) {
	ix, chain, store := newTestIndexer(t)
	ctx := context.Background()

	existing, err := store.UpsertUserByTelegramID(ctx, 900, "alice", "Alice")
	require.NoError(t, err)

	chain.set([]txFixture{{
		hash:   "deposit-for-alice",
		lt:     2000,
		sender: "EQAlice",
		value:  500_000_000,
		body:   depositBody(0x00000001, 900),
	}})

	credited, err := ix.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, credited)

	// No placeholder was created; the profile is untouched.
	user, err := store.UserByTelegramID(ctx, 900)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, user.ID)
	assert.Equal(t, "Alice", user.FirstName)

	sum, err := store.LedgerSum(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25_000), sum)
}

func TestCreditDepositRefusesNonPositiveRate(t *testing.T) {
	ix, chain, _ := newTestIndexer(t)
	ix.cfg.RateKopecksPerTon = 0
	ctx := context.Background()

	chain.set([]txFixture{{
		hash:   "rate-guard",
		lt:     1,
		sender: "EQx",
		value:  1_000_000_000,
		body:   depositBody(0x00000001, 7),
	}})

	// The iteration logs and skips the failing transaction.
	credited, err := ix.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, credited)
}
