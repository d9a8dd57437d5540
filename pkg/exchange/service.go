// Package exchange is the application service behind the HTTP boundary:
// every user and operator operation, composed from the storage contracts,
// the ledger and the matching engine. All mutations run inside a single
// store transaction per call.
package exchange

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/pefandor/pravda-market/params"
	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/engine"
	"github.com/pefandor/pravda-market/pkg/ledger"
	"github.com/pefandor/pravda-market/pkg/metrics"
	"github.com/pefandor/pravda-market/pkg/storage"
	"github.com/pefandor/pravda-market/pkg/util"
)

const maxTradeListLimit = 100

type Service struct {
	store  storage.Store
	engine *engine.Engine
	log    *zap.SugaredLogger
	met    *metrics.Collector
	clock  util.Clock

	cfg  params.Exchange
	rate int64 // kopecks per whole TON
}

func New(store storage.Store, eng *engine.Engine, log *zap.Logger,
	met *metrics.Collector, clock util.Clock, cfg params.Exchange, rateKopecksPerTon int64) *Service {
	return &Service{
		store:  store,
		engine: eng,
		log:    log.Sugar(),
		met:    met,
		clock:  clock,
		cfg:    cfg,
		rate:   rateKopecksPerTon,
	}
}

// UpsertUser registers or refreshes the principal behind an authenticated
// request. Called by the auth middleware on every validated login.
func (s *Service) UpsertUser(ctx context.Context, telegramID int64, username, firstName string) (*core.User, error) {
	return s.store.UpsertUserByTelegramID(ctx, telegramID, username, firstName)
}

// PlaceBet validates, persists and matches a new order. The initial lock
// covers the full order amount; matching then releases the matched portion
// and re-locks each side's cost per fill.
func (s *Service) PlaceBet(ctx context.Context, userID, marketID int64, side core.Side, priceBP int, amountKopecks int64) (*core.Order, []*core.Trade, error) {
	if !side.Valid() {
		return nil, nil, core.Errorf(core.KindValidation, "side must be yes or no")
	}
	if err := core.ValidatePrice(priceBP); err != nil {
		return nil, nil, err
	}
	if err := core.ValidateOrderSize(amountKopecks, s.cfg.MinOrderKopecks, s.cfg.MaxOrderKopecks); err != nil {
		return nil, nil, err
	}

	var (
		placed *core.Order
		trades []*core.Trade
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, q storage.Querier) error {
		market, err := q.MarketByID(ctx, marketID)
		if err != nil {
			return err
		}
		if market.Resolved {
			return core.Errorf(core.KindConflict, "market %d is already resolved", marketID)
		}

		if err := ledger.RequireFunds(ctx, q, userID, amountKopecks); err != nil {
			return err
		}

		order, err := q.CreateOrder(ctx, &core.Order{
			UserID:        userID,
			MarketID:      marketID,
			Side:          side,
			PriceBP:       priceBP,
			AmountKopecks: amountKopecks,
		})
		if err != nil {
			return err
		}
		if _, err := q.AppendLedger(ctx, &core.LedgerEntry{
			UserID:        userID,
			AmountKopecks: -amountKopecks,
			Type:          core.EntryOrderLock,
			ReferenceID:   order.ID,
		}); err != nil {
			return err
		}

		trades, err = s.engine.Match(ctx, q, order)
		if err != nil {
			return err
		}

		placed, err = q.OrderByID(ctx, order.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.met.OrdersPlaced.WithLabelValues(string(side)).Inc()
	s.met.TradesExecuted.Add(float64(len(trades)))
	for _, t := range trades {
		s.met.TradeVolume.Add(float64(t.AmountKopecks))
	}

	s.log.Infow("bet placed",
		"user_id", userID, "order_id", placed.ID, "market_id", marketID,
		"side", side, "price_bp", priceBP, "amount_kopecks", amountKopecks,
		"status", placed.Status, "trades", len(trades))
	return placed, trades, nil
}

// CancelOrder cancels a caller-owned order. Only fully unfilled orders can
// be cancelled; the refund unlocks the full original amount, returning
// available to exactly its pre-placement value.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID int64) (*core.Order, error) {
	var cancelled *core.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, q storage.Querier) error {
		order, err := q.OrderByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			// Hide other users' order ids.
			return core.Errorf(core.KindNotFound, "order %d not found", orderID)
		}
		if order.Status != core.OrderOpen {
			return core.Errorf(core.KindConflict,
				"cannot cancel order in %s status", order.Status)
		}

		if err := q.UpdateOrderFill(ctx, order.ID, order.FilledKopecks, core.OrderCancelled); err != nil {
			return err
		}
		if _, err := q.AppendLedger(ctx, &core.LedgerEntry{
			UserID:        userID,
			AmountKopecks: order.AmountKopecks,
			Type:          core.EntryOrderUnlock,
			ReferenceID:   order.ID,
		}); err != nil {
			return err
		}

		cancelled, err = q.OrderByID(ctx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.met.OrdersCancelled.Inc()
	s.log.Infow("order cancelled", "user_id", userID, "order_id", orderID)
	return cancelled, nil
}

func (s *Service) Orders(ctx context.Context, userID int64, f storage.OrderFilter) ([]*core.Order, error) {
	return s.store.OrdersByUser(ctx, userID, f)
}

// Trades lists trades the caller participated in. Privacy is enforced by
// joining through the caller's own orders; nothing about the counterparty
// is exposed beyond the trade economics.
func (s *Service) Trades(ctx context.Context, userID, marketID int64, limit int) ([]*core.Trade, error) {
	if limit <= 0 || limit > maxTradeListLimit {
		limit = maxTradeListLimit
	}
	return s.store.TradesForUser(ctx, userID, marketID, limit)
}

func (s *Service) Balance(ctx context.Context, userID int64) (ledger.Balance, error) {
	return ledger.For(ctx, s.store, userID)
}

func (s *Service) History(ctx context.Context, userID int64, limit, offset int) ([]*core.LedgerEntry, error) {
	if limit <= 0 || limit > maxTradeListLimit {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.LedgerEntries(ctx, userID, limit, offset)
}

func formatRubles(kopecks int64) string {
	sign := ""
	if kopecks < 0 {
		sign = "-"
		kopecks = -kopecks
	}
	return sign + strconv.FormatInt(kopecks/core.KopecksPerRuble, 10) + "." +
		pad2(kopecks%core.KopecksPerRuble)
}

func pad2(v int64) string {
	if v < 10 {
		return "0" + strconv.FormatInt(v, 10)
	}
	return strconv.FormatInt(v, 10)
}
