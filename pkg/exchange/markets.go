package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/engine"
	"github.com/pefandor/pravda-market/pkg/storage"
)

type CreateMarketInput struct {
	Title          string
	Description    string
	Category       string
	Deadline       time.Time
	InitialYesBP   int
}

// OrderbookView is the public aggregated book: per-side price levels with
// total remaining amounts, best price first, no per-user information.
type OrderbookView struct {
	MarketID int64
	Yes      []core.BookLevel
	No       []core.BookLevel
}

func (s *Service) Markets(ctx context.Context, f storage.MarketFilter) ([]*core.Market, error) {
	return s.store.Markets(ctx, f)
}

func (s *Service) Market(ctx context.Context, id int64) (*core.Market, error) {
	return s.store.MarketByID(ctx, id)
}

func (s *Service) Orderbook(ctx context.Context, marketID int64) (*OrderbookView, error) {
	if _, err := s.store.MarketByID(ctx, marketID); err != nil {
		return nil, err
	}
	yes, err := s.store.BookLevels(ctx, marketID, core.Yes)
	if err != nil {
		return nil, err
	}
	no, err := s.store.BookLevels(ctx, marketID, core.No)
	if err != nil {
		return nil, err
	}
	return &OrderbookView{MarketID: marketID, Yes: yes, No: no}, nil
}

func (s *Service) CreateMarket(ctx context.Context, in CreateMarketInput) (*core.Market, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, core.Errorf(core.KindValidation, "title is required")
	}
	if !in.Deadline.After(s.clock.Now()) {
		return nil, core.Errorf(core.KindValidation, "deadline must be in the future")
	}
	yesBP := in.InitialYesBP
	if yesBP == 0 {
		yesBP = 5000
	}
	if err := core.ValidatePrice(yesBP); err != nil {
		return nil, err
	}

	market, err := s.store.CreateMarket(ctx, &core.Market{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Category:    in.Category,
		Deadline:    in.Deadline,
		YesPriceBP:  yesBP,
		NoPriceBP:   core.PriceScaleBP - yesBP,
	})
	if err != nil {
		return nil, err
	}
	s.log.Infow("market created", "market_id", market.ID, "title", market.Title)
	return market, nil
}

// DeleteMarket removes a market that was never traded. Once any order
// exists the market is part of the financial record and cannot go away.
func (s *Service) DeleteMarket(ctx context.Context, id int64) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, q storage.Querier) error {
		if _, err := q.MarketByIDForUpdate(ctx, id); err != nil {
			return err
		}
		hasOrders, err := q.MarketHasOrders(ctx, id)
		if err != nil {
			return err
		}
		if hasOrders {
			return core.Errorf(core.KindConflict, "market %d has orders and cannot be deleted", id)
		}
		if err := q.DeleteMarket(ctx, id); err != nil {
			return err
		}
		s.log.Infow("market deleted", "market_id", id)
		return nil
	})
}

// ResolveMarket settles every trade of the market at the given outcome.
func (s *Service) ResolveMarket(ctx context.Context, marketID int64, outcome core.Side) (*engine.SettlementResult, error) {
	var result *engine.SettlementResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, q storage.Querier) error {
		var err error
		result, err = s.engine.SettleMarket(ctx, q, marketID, outcome, s.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.met.MarketsResolved.Inc()
	s.met.SettlementFees.Add(float64(result.FeesKopecks))
	return result, nil
}
