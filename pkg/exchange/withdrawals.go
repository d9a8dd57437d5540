package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/ledger"
	"github.com/pefandor/pravda-market/pkg/storage"
)

var tonAddressPrefixes = []string{"EQ", "UQ", "kQ", "0:"}

func validTonAddress(addr string) bool {
	if len(addr) < 48 || len(addr) > 68 {
		return false
	}
	for _, p := range tonAddressPrefixes {
		if strings.HasPrefix(addr, p) {
			return true
		}
	}
	return false
}

// CreateWithdrawal locks the requested amount plus the flat network fee
// and queues a pending request for the operator. The locking entry is
// written first and back-referenced once the request row exists, the same
// fix-up dance the deposit path uses.
func (s *Service) CreateWithdrawal(ctx context.Context, userID int64, tonAddress string, amountNanoton int64) (*core.WithdrawalRequest, error) {
	if amountNanoton < s.cfg.MinWithdrawalNanoton {
		return nil, core.Errorf(core.KindValidation,
			"minimum withdrawal is %.2f TON", core.NanotonToTon(s.cfg.MinWithdrawalNanoton))
	}
	if !validTonAddress(tonAddress) {
		return nil, core.Errorf(core.KindValidation, "invalid TON address format")
	}

	totalNanoton := amountNanoton + s.cfg.WithdrawalFeeNanoton
	totalKopecks := core.NanotonToKopecks(totalNanoton, s.rate)
	if totalKopecks <= 0 {
		return nil, core.Errorf(core.KindValidation, "withdrawal amount too small at the current rate")
	}

	var created *core.WithdrawalRequest
	err := s.store.WithinTx(ctx, func(ctx context.Context, q storage.Querier) error {
		dailyTotal, err := q.WithdrawalDailyTotal(ctx, userID, s.clock.Now().Add(-24*time.Hour))
		if err != nil {
			return err
		}
		if dailyTotal+amountNanoton > s.cfg.MaxWithdrawalPerDayNanoton {
			remaining := s.cfg.MaxWithdrawalPerDayNanoton - dailyTotal
			if remaining < 0 {
				remaining = 0
			}
			return core.Errorf(core.KindValidation,
				"daily withdrawal limit exceeded, remaining %.2f TON", core.NanotonToTon(remaining))
		}

		if err := ledger.RequireFunds(ctx, q, userID, totalKopecks); err != nil {
			return err
		}

		entry, err := q.AppendLedger(ctx, &core.LedgerEntry{
			UserID:        userID,
			AmountKopecks: -totalKopecks,
			Type:          core.EntryWithdrawalPending,
		})
		if err != nil {
			return err
		}

		created, err = q.CreateWithdrawal(ctx, &core.WithdrawalRequest{
			UserID:        userID,
			TonAddress:    tonAddress,
			AmountNanoton: amountNanoton,
			Status:        core.WithdrawalPending,
			LedgerEntryID: entry.ID,
		})
		if err != nil {
			return err
		}
		return q.SetLedgerReference(ctx, entry.ID, created.ID)
	})
	if err != nil {
		return nil, err
	}

	s.met.Withdrawals.WithLabelValues(string(core.WithdrawalPending)).Inc()
	s.log.Infow("withdrawal requested",
		"user_id", userID, "withdrawal_id", created.ID,
		"amount_nanoton", amountNanoton, "locked_rubles", formatRubles(totalKopecks))
	return created, nil
}

func (s *Service) Withdrawals(ctx context.Context, userID int64) ([]*core.WithdrawalRequest, error) {
	return s.store.WithdrawalsByUser(ctx, userID)
}

func (s *Service) Withdrawal(ctx context.Context, userID, id int64) (*core.WithdrawalRequest, error) {
	w, err := s.store.WithdrawalByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.UserID != userID {
		return nil, core.Errorf(core.KindNotFound, "withdrawal %d not found", id)
	}
	return w, nil
}

// CancelWithdrawal refunds a pending request with the exact negation of
// its locking entry; recomputing from the current rate could drift.
func (s *Service) CancelWithdrawal(ctx context.Context, userID, id int64) (*core.WithdrawalRequest, error) {
	var cancelled *core.WithdrawalRequest
	err := s.store.WithinTx(ctx, func(ctx context.Context, q storage.Querier) error {
		w, err := q.WithdrawalByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if w.UserID != userID {
			return core.Errorf(core.KindNotFound, "withdrawal %d not found", id)
		}
		if w.Status != core.WithdrawalPending {
			return core.Errorf(core.KindConflict,
				"cannot cancel withdrawal in %s status", w.Status)
		}

		if err := s.refundWithdrawal(ctx, q, w); err != nil {
			return err
		}
		if err := q.UpdateWithdrawalStatus(ctx, w.ID, core.WithdrawalCancelled, "", s.clock.Now()); err != nil {
			return err
		}
		cancelled, err = q.WithdrawalByID(ctx, w.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.met.Withdrawals.WithLabelValues(string(core.WithdrawalCancelled)).Inc()
	s.log.Infow("withdrawal cancelled", "user_id", userID, "withdrawal_id", id)
	return cancelled, nil
}

func (s *Service) refundWithdrawal(ctx context.Context, q storage.Querier, w *core.WithdrawalRequest) error {
	original, err := q.LedgerEntryByID(ctx, w.LedgerEntryID)
	if err != nil {
		return err
	}
	_, err = q.AppendLedger(ctx, &core.LedgerEntry{
		UserID:        w.UserID,
		AmountKopecks: -original.AmountKopecks,
		Type:          core.EntryWithdrawalCancelled,
		ReferenceID:   w.ID,
	})
	return err
}

// WithdrawalsByStatus is the operator's processing queue view.
func (s *Service) WithdrawalsByStatus(ctx context.Context, status core.WithdrawalStatus) ([]*core.WithdrawalRequest, error) {
	if !status.Valid() {
		return nil, core.Errorf(core.KindValidation, "invalid withdrawal status %q", status)
	}
	return s.store.WithdrawalsByStatus(ctx, status)
}

// CompleteWithdrawal marks a request as paid out on chain. The locked
// funds leave the system for good; the unique tx hash records the proof.
func (s *Service) CompleteWithdrawal(ctx context.Context, id int64, txHash string) (*core.WithdrawalRequest, error) {
	if strings.TrimSpace(txHash) == "" {
		return nil, core.Errorf(core.KindValidation, "transaction hash is required")
	}

	var completed *core.WithdrawalRequest
	err := s.store.WithinTx(ctx, func(ctx context.Context, q storage.Querier) error {
		w, err := q.WithdrawalByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if w.Status != core.WithdrawalPending && w.Status != core.WithdrawalProcessing {
			return core.Errorf(core.KindConflict,
				"cannot complete withdrawal in %s status", w.Status)
		}
		if err := q.UpdateWithdrawalStatus(ctx, w.ID, core.WithdrawalCompleted, txHash, s.clock.Now()); err != nil {
			return err
		}
		completed, err = q.WithdrawalByID(ctx, w.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.met.Withdrawals.WithLabelValues(string(core.WithdrawalCompleted)).Inc()
	s.log.Infow("withdrawal completed", "withdrawal_id", id, "tx_hash", txHash)
	return completed, nil
}

// FailWithdrawal marks a request as failed and refunds the lock.
func (s *Service) FailWithdrawal(ctx context.Context, id int64) (*core.WithdrawalRequest, error) {
	var failed *core.WithdrawalRequest
	err := s.store.WithinTx(ctx, func(ctx context.Context, q storage.Querier) error {
		w, err := q.WithdrawalByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if w.Status != core.WithdrawalPending && w.Status != core.WithdrawalProcessing {
			return core.Errorf(core.KindConflict,
				"cannot fail withdrawal in %s status", w.Status)
		}
		if err := s.refundWithdrawal(ctx, q, w); err != nil {
			return err
		}
		if err := q.UpdateWithdrawalStatus(ctx, w.ID, core.WithdrawalFailed, "", s.clock.Now()); err != nil {
			return err
		}
		failed, err = q.WithdrawalByID(ctx, w.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.met.Withdrawals.WithLabelValues(string(core.WithdrawalFailed)).Inc()
	s.log.Infow("withdrawal failed and refunded", "withdrawal_id", id)
	return failed, nil
}
