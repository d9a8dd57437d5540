package ton

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pefandor/pravda-market/params"
	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/metrics"
	"github.com/pefandor/pravda-market/pkg/storage"
	"github.com/pefandor/pravda-market/pkg/util"
)

// Indexer polls the escrow address for inbound transfers and credits
// matching deposits to user ledgers. The highest credited logical time
// is the resume cursor: transactions at or below it are not re-examined
// after a restart. Crediting is exactly-once regardless: the unique
// transaction hash in storage turns any replay into a no-op.
type Indexer struct {
	client *Client
	store  storage.Store
	log    *zap.SugaredLogger
	met    *metrics.Collector
	clock  util.Clock
	cfg    params.Ton
}

func NewIndexer(client *Client, store storage.Store, log *zap.Logger,
	met *metrics.Collector, clock util.Clock, cfg params.Ton) *Indexer {
	return &Indexer{
		client: client,
		store:  store,
		log:    log.Sugar(),
		met:    met,
		clock:  clock,
		cfg:    cfg,
	}
}

// Run polls until ctx is cancelled. Iteration failures are logged and
// counted; the loop itself never dies.
func (ix *Indexer) Run(ctx context.Context) error {
	ix.log.Infow("deposit indexer started",
		"address", ix.cfg.EscrowAddress, "interval", ix.cfg.PollInterval)
	for {
		if _, err := ix.PollOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			ix.met.IndexerErrors.Inc()
			ix.log.Errorw("deposit poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			ix.log.Infow("deposit indexer stopped")
			return nil
		case <-ix.clock.After(ix.cfg.PollInterval):
		}
	}
}

// PollOnce fetches a window of recent transactions and credits the new
// deposits among them. Returns how many were credited.
func (ix *Indexer) PollOnce(ctx context.Context) (int, error) {
	cursor, err := ix.store.LastProcessedLT(ctx)
	if err != nil {
		return 0, err
	}

	txs, err := ix.client.GetTransactions(ctx, ix.cfg.EscrowAddress, ix.cfg.MaxTxPerPoll)
	if err != nil {
		return 0, err
	}

	credited := 0
	for _, tx := range txs {
		if tx.LT <= cursor {
			continue
		}
		ok, err := ix.processTransaction(ctx, tx)
		if err != nil {
			ix.met.IndexerErrors.Inc()
			ix.log.Errorw("deposit processing failed",
				"tx_hash", shortHash(tx.Hash), "error", err)
			continue
		}
		if ok {
			credited++
		}
	}

	if credited > 0 {
		ix.log.Infow("credited new deposits", "count", credited)
	}
	return credited, nil
}

// processTransaction filters one transaction and credits it when it is a
// valid new deposit. Returns true only for fresh credits.
func (ix *Indexer) processTransaction(ctx context.Context, tx Transaction) (bool, error) {
	if !tx.Success || tx.Sender == "" {
		return false, nil
	}
	if tx.ValueNanoton < ix.cfg.MinDepositNanoton {
		ix.log.Debugw("transfer below minimum deposit",
			"tx_hash", shortHash(tx.Hash), "amount_nanoton", tx.ValueNanoton)
		return false, nil
	}
	telegramID, ok := ix.client.ParseDepositMemo(tx.Body)
	if !ok {
		ix.log.Debugw("transfer without deposit memo", "tx_hash", shortHash(tx.Hash))
		return false, nil
	}

	return ix.creditDeposit(ctx, tx, telegramID)
}

func (ix *Indexer) creditDeposit(ctx context.Context, tx Transaction, telegramID int64) (bool, error) {
	if ix.cfg.RateKopecksPerTon <= 0 {
		return false, core.Errorf(core.KindInvariant, "refusing to credit with rate %d", ix.cfg.RateKopecksPerTon)
	}
	amountKopecks := core.NanotonToKopecks(tx.ValueNanoton, ix.cfg.RateKopecksPerTon)

	credited := false
	err := ix.store.WithinTx(ctx, func(ctx context.Context, q storage.Querier) error {
		// The unique hash constraint is the idempotency gate; a duplicate
		// surfaces as a conflict and the whole transaction rolls back.
		deposit, err := q.CreateChainDeposit(ctx, &core.ChainDeposit{
			TxHash:        tx.Hash,
			LT:            tx.LT,
			SenderAddress: tx.Sender,
			AmountNanoton: tx.ValueNanoton,
			TelegramID:    telegramID,
			Status:        core.DepositPending,
		})
		if err != nil {
			return err
		}

		// A deposit can arrive before the user ever opens the app; create a
		// placeholder profile that the first login will refresh.
		user, err := q.UserByTelegramID(ctx, telegramID)
		if errors.Is(err, core.ErrNotFound) {
			ix.log.Warnw("deposit for unknown user, creating placeholder",
				"telegram_id", telegramID, "tx_hash", shortHash(tx.Hash))
			user, err = q.UpsertUserByTelegramID(ctx, telegramID, "",
				fmt.Sprintf("TON User %d", telegramID))
		}
		if err != nil {
			return err
		}

		entry, err := q.AppendLedger(ctx, &core.LedgerEntry{
			UserID:        user.ID,
			AmountKopecks: amountKopecks,
			Type:          core.EntryDeposit,
		})
		if err != nil {
			return err
		}
		if err := q.SetLedgerReference(ctx, entry.ID, deposit.ID); err != nil {
			return err
		}
		return q.UpdateChainDeposit(ctx, deposit.ID, core.DepositCredited, user.ID, entry.ID)
	})
	if err != nil {
		if errors.Is(err, core.ErrConflict) {
			ix.log.Debugw("deposit already credited", "tx_hash", shortHash(tx.Hash))
			return false, nil
		}
		return false, err
	}
	credited = true

	ix.met.DepositsCredited.Inc()
	ix.met.DepositVolume.Add(float64(amountKopecks))
	ix.log.Infow("deposit credited",
		"telegram_id", telegramID,
		"amount_nanoton", tx.ValueNanoton,
		"amount_kopecks", amountKopecks,
		"tx_hash", shortHash(tx.Hash))
	return credited, nil
}

func shortHash(h string) string {
	if len(h) > 16 {
		return h[:16]
	}
	return h
}
