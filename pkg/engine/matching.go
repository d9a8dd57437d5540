// Package engine implements order matching and market settlement over the
// storage contracts. All methods expect to run inside a transaction owned
// by the caller; nothing here commits.
package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/storage"
)

type Engine struct {
	log *zap.SugaredLogger

	maxTradesPerOrder int
	feeRateBP         int
}

func New(log *zap.Logger, maxTradesPerOrder, feeRateBP int) *Engine {
	return &Engine{
		log:               log.Sugar(),
		maxTradesPerOrder: maxTradesPerOrder,
		feeRateBP:         feeRateBP,
	}
}

// Match fills the aggressor against the book until it is filled, no
// candidate remains, or the per-order trade cap is hit. The aggressor must
// already be persisted with its order_lock entry written. Each iteration
// takes the best counter row under SKIP LOCKED, so concurrent matchers
// pass over each other's candidates instead of blocking.
//
// A resting order of N kopecks can be consumed by at most one trade per
// aggressor iteration; the cap bounds work per call, and an aggressor that
// hits it stays partial with its residue on the book.
func (e *Engine) Match(ctx context.Context, q storage.Querier, aggressor *core.Order) ([]*core.Trade, error) {
	var trades []*core.Trade

	remaining := aggressor.Remaining()
	minCounterBP := core.PriceScaleBP - aggressor.PriceBP

	for remaining > 0 && len(trades) < e.maxTradesPerOrder {
		counter, err := q.BestCounterOrder(ctx, aggressor.MarketID,
			aggressor.Side.Opposite(), minCounterBP, aggressor.ID)
		if err != nil {
			return nil, err
		}
		if counter == nil {
			break
		}

		fill := remaining
		if counterRemaining := counter.Remaining(); counterRemaining < fill {
			fill = counterRemaining
		}
		if fill <= 0 {
			break
		}

		trade, err := e.executeTrade(ctx, q, aggressor, counter, fill)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)

		aggressor.FilledKopecks += fill
		counter.FilledKopecks += fill
		remaining -= fill

		if err := q.UpdateOrderFill(ctx, aggressor.ID, aggressor.FilledKopecks, statusForFill(aggressor)); err != nil {
			return nil, err
		}
		if err := q.UpdateOrderFill(ctx, counter.ID, counter.FilledKopecks, statusForFill(counter)); err != nil {
			return nil, err
		}
	}

	if len(trades) == e.maxTradesPerOrder && remaining > 0 {
		e.log.Warnw("order hit per-call trade cap",
			"order_id", aggressor.ID, "trades", len(trades), "remaining_kopecks", remaining)
	}
	return trades, nil
}

// executeTrade writes the trade row, the four ledger entries and the
// market quote update for one fill. The execution price is the resting
// order's YES price: the counter was on the book first, so the aggressor
// takes the counter's terms.
func (e *Engine) executeTrade(ctx context.Context, q storage.Querier, aggressor, counter *core.Order, fill int64) (*core.Trade, error) {
	execPriceBP := counter.PriceBP
	if counter.Side == core.No {
		execPriceBP = core.PriceScaleBP - counter.PriceBP
	}

	yesCost, noCost := core.SplitCost(fill, execPriceBP)
	if yesCost+noCost != fill {
		e.log.Errorw("cost split mismatch", "critical", true,
			"fill", fill, "price_bp", execPriceBP, "yes_cost", yesCost, "no_cost", noCost)
		return nil, core.Errorf(core.KindInvariant, "cost split does not reconstruct fill amount")
	}

	yesOrder, noOrder := aggressor, counter
	if aggressor.Side == core.No {
		yesOrder, noOrder = counter, aggressor
	}

	trade, err := q.CreateTrade(ctx, &core.Trade{
		MarketID:       aggressor.MarketID,
		YesOrderID:     yesOrder.ID,
		NoOrderID:      noOrder.ID,
		PriceBP:        execPriceBP,
		AmountKopecks:  fill,
		YesCostKopecks: yesCost,
		NoCostKopecks:  noCost,
	})
	if err != nil {
		return nil, err
	}

	if err := e.settleFill(ctx, q, yesOrder, fill, yesCost, trade.ID); err != nil {
		return nil, err
	}
	if err := e.settleFill(ctx, q, noOrder, fill, noCost, trade.ID); err != nil {
		return nil, err
	}

	if err := q.RecordMarketTrade(ctx, aggressor.MarketID, execPriceBP, fill); err != nil {
		return nil, err
	}

	e.log.Infow("trade executed",
		"trade_id", trade.ID, "market_id", trade.MarketID,
		"price_bp", execPriceBP, "amount_kopecks", fill)
	return trade, nil
}

// settleFill releases the matched portion of the original order_lock and
// locks the side's actual cost against the trade. The unlock must be the
// matched amount, not the cost: the original lock covered the full order
// amount, so releasing anything else would drift the ledger sum.
func (e *Engine) settleFill(ctx context.Context, q storage.Querier, order *core.Order, fill, cost, tradeID int64) error {
	_, err := q.AppendLedger(ctx, &core.LedgerEntry{
		UserID:        order.UserID,
		AmountKopecks: fill,
		Type:          core.EntryOrderUnlock,
		ReferenceID:   order.ID,
	})
	if err != nil {
		return err
	}
	_, err = q.AppendLedger(ctx, &core.LedgerEntry{
		UserID:        order.UserID,
		AmountKopecks: -cost,
		Type:          core.EntryTradeLock,
		ReferenceID:   tradeID,
	})
	return err
}

func statusForFill(o *core.Order) core.OrderStatus {
	switch {
	case o.FilledKopecks == 0:
		return core.OrderOpen
	case o.FilledKopecks >= o.AmountKopecks:
		return core.OrderFilled
	default:
		return core.OrderPartial
	}
}
