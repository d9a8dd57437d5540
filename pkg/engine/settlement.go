package engine

import (
	"context"
	"time"

	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/storage"
)

type SettlementResult struct {
	MarketID        int64
	Outcome         core.Side
	TradesSettled   int
	OrdersCancelled int
	GrossPotKopecks int64
	FeesKopecks     int64
}

// SettleMarket resolves a market and pays out every trade to the winning
// side. Must run inside a transaction: the market row is locked before
// resolved is re-checked, so a second concurrent resolve observes the lock
// and then fails with Conflict instead of paying out twice.
func (e *Engine) SettleMarket(ctx context.Context, q storage.Querier, marketID int64, outcome core.Side, at time.Time) (*SettlementResult, error) {
	if !outcome.Valid() {
		return nil, core.Errorf(core.KindValidation, "outcome must be yes or no")
	}

	market, err := q.MarketByIDForUpdate(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if market.Resolved {
		return nil, core.Errorf(core.KindConflict, "market %d is already resolved", marketID)
	}

	trades, err := q.TradesByMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}

	result := &SettlementResult{MarketID: marketID, Outcome: outcome}
	tradeIDs := make([]int64, 0, len(trades))

	for _, trade := range trades {
		winnerOrderID := trade.YesOrderID
		if outcome == core.No {
			winnerOrderID = trade.NoOrderID
		}
		winnerOrder, err := q.OrderByID(ctx, winnerOrderID)
		if err != nil {
			return nil, err
		}

		grossPot := trade.AmountKopecks
		fee := core.FeeFor(grossPot, e.feeRateBP)

		// Winner takes the whole pot minus the fee; the loser's
		// trade_lock stays put as the stake they lost.
		_, err = q.AppendLedger(ctx, &core.LedgerEntry{
			UserID:        winnerOrder.UserID,
			AmountKopecks: grossPot,
			Type:          core.EntryPayout,
			ReferenceID:   trade.ID,
		})
		if err != nil {
			return nil, err
		}
		_, err = q.AppendLedger(ctx, &core.LedgerEntry{
			UserID:        winnerOrder.UserID,
			AmountKopecks: -fee,
			Type:          core.EntryFee,
			ReferenceID:   trade.ID,
		})
		if err != nil {
			return nil, err
		}

		result.TradesSettled++
		result.GrossPotKopecks += grossPot
		result.FeesKopecks += fee
		tradeIDs = append(tradeIDs, trade.ID)
	}

	// Orders still resting on the book can never fill after resolution;
	// cancel them and return their locked remainder.
	resting, err := q.RestingOrdersByMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	for _, order := range resting {
		if err := q.UpdateOrderFill(ctx, order.ID, order.FilledKopecks, core.OrderCancelled); err != nil {
			return nil, err
		}
		_, err = q.AppendLedger(ctx, &core.LedgerEntry{
			UserID:        order.UserID,
			AmountKopecks: order.Remaining(),
			Type:          core.EntryOrderUnlock,
			ReferenceID:   order.ID,
		})
		if err != nil {
			return nil, err
		}
		result.OrdersCancelled++
	}

	if err := q.MarkMarketResolved(ctx, marketID, outcome, at); err != nil {
		return nil, err
	}

	if err := e.verifySettlement(ctx, q, tradeIDs, result); err != nil {
		return nil, err
	}

	e.log.Infow("market settled",
		"market_id", marketID, "outcome", outcome,
		"trades", result.TradesSettled,
		"orders_cancelled", result.OrdersCancelled,
		"gross_pot_kopecks", result.GrossPotKopecks,
		"fees_kopecks", result.FeesKopecks)
	return result, nil
}

// verifySettlement re-reads what was just written, scoped to this market's
// trade ids: payouts must sum to the gross pot and fees to its negation of
// the computed total. A mismatch aborts the whole transaction.
func (e *Engine) verifySettlement(ctx context.Context, q storage.Querier, tradeIDs []int64, result *SettlementResult) error {
	payoutSum, err := q.LedgerSumForTrades(ctx, []core.EntryType{core.EntryPayout}, tradeIDs)
	if err != nil {
		return err
	}
	feeSum, err := q.LedgerSumForTrades(ctx, []core.EntryType{core.EntryFee}, tradeIDs)
	if err != nil {
		return err
	}

	if payoutSum != result.GrossPotKopecks || feeSum != -result.FeesKopecks {
		e.log.Errorw("settlement sums do not reconcile", "critical", true,
			"market_id", result.MarketID,
			"payout_sum", payoutSum, "expected_payout", result.GrossPotKopecks,
			"fee_sum", feeSum, "expected_fee", -result.FeesKopecks)
		return core.Errorf(core.KindInvariant,
			"settlement sums for market %d do not reconcile", result.MarketID)
	}
	return nil
}
