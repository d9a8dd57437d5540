// Package ledger derives balances from the append-only entry log.
// There is no balance column anywhere; every read sums entries.
package ledger

import (
	"context"

	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/storage"
)

type Balance struct {
	TotalKopecks     int64
	AvailableKopecks int64
	LockedKopecks    int64
}

// For computes the user's full balance view.
func For(ctx context.Context, q storage.Querier, userID int64) (Balance, error) {
	total, err := q.LedgerSum(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	locked, err := Locked(ctx, q, userID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		TotalKopecks:     total,
		AvailableKopecks: clampNonNegative(total),
		LockedKopecks:    locked,
	}, nil
}

// Available is the spendable balance: the entry sum, floored at zero.
func Available(ctx context.Context, q storage.Querier, userID int64) (int64, error) {
	total, err := q.LedgerSum(ctx, userID)
	if err != nil {
		return 0, err
	}
	return clampNonNegative(total), nil
}

// AvailableForUpdate is Available with the user's entries row-locked.
// Only valid inside a transaction; the lock holds until commit, so a
// concurrent spend against the same user waits for this one to finish.
func AvailableForUpdate(ctx context.Context, q storage.Querier, userID int64) (int64, error) {
	total, err := q.LedgerSumForUpdate(ctx, userID)
	if err != nil {
		return 0, err
	}
	return clampNonNegative(total), nil
}

// Locked is the display-only locked readout: funds committed to resting
// orders and to open positions on unresolved markets. Once a market
// resolves, the stake is no longer locked (it was won or lost).
func Locked(ctx context.Context, q storage.Querier, userID int64) (int64, error) {
	return q.LockedFunds(ctx, userID)
}

// RequireFunds checks availability under row locks and returns
// InsufficientFunds with major-unit amounts in the message.
func RequireFunds(ctx context.Context, q storage.Querier, userID, needKopecks int64) error {
	available, err := AvailableForUpdate(ctx, q, userID)
	if err != nil {
		return err
	}
	if available < needKopecks {
		return core.Errorf(core.KindInsufficientFunds,
			"insufficient balance: have %d.%02d rubles, need %d.%02d rubles",
			available/core.KopecksPerRuble, available%core.KopecksPerRuble,
			needKopecks/core.KopecksPerRuble, needKopecks%core.KopecksPerRuble)
	}
	return nil
}

func clampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
