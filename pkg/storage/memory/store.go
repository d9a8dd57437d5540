// Package memory implements the storage contracts in process memory.
// A single mutex serializes all access, which makes every operation
// transactional by construction; WithinTx adds rollback via snapshot.
// Used by tests and the seed tool.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/storage"
)

type data struct {
	seq         int64
	users       []*core.User
	markets     []*core.Market
	orders      []*core.Order
	trades      []*core.Trade
	ledger      []*core.LedgerEntry
	deposits    []*core.ChainDeposit
	withdrawals []*core.WithdrawalRequest
}

func cloneAll[T any](in []*T) []*T {
	out := make([]*T, len(in))
	for i, v := range in {
		c := *v
		out[i] = &c
	}
	return out
}

func (d *data) clone() *data {
	return &data{
		seq:         d.seq,
		users:       cloneAll(d.users),
		markets:     cloneAll(d.markets),
		orders:      cloneAll(d.orders),
		trades:      cloneAll(d.trades),
		ledger:      cloneAll(d.ledger),
		deposits:    cloneAll(d.deposits),
		withdrawals: cloneAll(d.withdrawals),
	}
}

func (d *data) nextID() int64 {
	d.seq++
	return d.seq
}

type Store struct {
	mu sync.Mutex
	d  *data
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{d: &data{}}
}

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close() error                   { return nil }

// WithinTx snapshots the dataset, runs fn under the store lock, and
// restores the snapshot if fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, q storage.Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	if err := fn(ctx, &mem{d: s.d}); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

// mem carries the unlocked operations; Store wraps each with the lock.
type mem struct {
	d *data
}

var _ storage.Querier = (*mem)(nil)

func notFound(what string) error {
	return core.Errorf(core.KindNotFound, "%s: not found", what)
}

func now() time.Time { return time.Now().UTC() }
