package api

import (
	"math"
	"time"

	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/engine"
	"github.com/pefandor/pravda-market/pkg/exchange"
	"github.com/pefandor/pravda-market/pkg/ledger"
)

// Boundary encoding: amounts travel in major units (rubles / TON) and
// prices as decimal fractions of 1; everything is converted to integer
// minor units (kopecks / nanoTON / basis points) right here at the edge.

func rublesToKopecks(rubles float64) int64 {
	return int64(math.Round(rubles * core.KopecksPerRuble))
}

func kopecksToRubles(kopecks int64) float64 {
	return float64(kopecks) / core.KopecksPerRuble
}

func priceToBP(price float64) int {
	return int(math.Round(price * core.PriceScaleBP))
}

func bpToPrice(bp int) float64 {
	return float64(bp) / core.PriceScaleBP
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Requests

type placeBetRequest struct {
	MarketID int64   `json:"market_id"`
	Side     string  `json:"side"`
	Price    float64 `json:"price"`  // 0.01 .. 0.99
	Amount   float64 `json:"amount"` // rubles
}

type createMarketRequest struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	Deadline        time.Time `json:"deadline"`
	InitialYesPrice float64   `json:"initial_yes_price"` // 0 = default 0.50
}

type resolveMarketRequest struct {
	Outcome string `json:"outcome"`
}

type createWithdrawalRequest struct {
	TonAddress string  `json:"ton_address"`
	AmountTon  float64 `json:"amount_ton"`
}

type completeWithdrawalRequest struct {
	TxHash string `json:"tx_hash"`
}

// Responses

type marketInfo struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Deadline    time.Time `json:"deadline"`
	Resolved    bool      `json:"resolved"`
	Outcome     string    `json:"outcome,omitempty"`
	YesPrice    float64   `json:"yes_price"`
	NoPrice     float64   `json:"no_price"`
	Volume      float64   `json:"volume"`
	CreatedAt   time.Time `json:"created_at"`
}

func toMarketInfo(m *core.Market) marketInfo {
	return marketInfo{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Category:    m.Category,
		Deadline:    m.Deadline,
		Resolved:    m.Resolved,
		Outcome:     string(m.Outcome),
		YesPrice:    bpToPrice(m.YesPriceBP),
		NoPrice:     bpToPrice(m.NoPriceBP),
		Volume:      kopecksToRubles(m.VolumeKopecks),
		CreatedAt:   m.CreatedAt,
	}
}

type orderInfo struct {
	ID        int64     `json:"id"`
	MarketID  int64     `json:"market_id"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Amount    float64   `json:"amount"`
	Filled    float64   `json:"filled"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toOrderInfo(o *core.Order) orderInfo {
	return orderInfo{
		ID:        o.ID,
		MarketID:  o.MarketID,
		Side:      string(o.Side),
		Price:     bpToPrice(o.PriceBP),
		Amount:    kopecksToRubles(o.AmountKopecks),
		Filled:    kopecksToRubles(o.FilledKopecks),
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
	}
}

type tradeInfo struct {
	ID        int64     `json:"id"`
	MarketID  int64     `json:"market_id"`
	Price     float64   `json:"price"`
	Amount    float64   `json:"amount"`
	YesCost   float64   `json:"yes_cost"`
	NoCost    float64   `json:"no_cost"`
	CreatedAt time.Time `json:"created_at"`
}

func toTradeInfo(t *core.Trade) tradeInfo {
	return tradeInfo{
		ID:        t.ID,
		MarketID:  t.MarketID,
		Price:     bpToPrice(t.PriceBP),
		Amount:    kopecksToRubles(t.AmountKopecks),
		YesCost:   kopecksToRubles(t.YesCostKopecks),
		NoCost:    kopecksToRubles(t.NoCostKopecks),
		CreatedAt: t.CreatedAt,
	}
}

type placeBetResponse struct {
	Order  orderInfo   `json:"order"`
	Trades []tradeInfo `json:"trades"`
}

type balanceInfo struct {
	Total     float64 `json:"total"`
	Available float64 `json:"available"`
	Locked    float64 `json:"locked"`
}

func toBalanceInfo(b ledger.Balance) balanceInfo {
	return balanceInfo{
		Total:     kopecksToRubles(b.TotalKopecks),
		Available: kopecksToRubles(b.AvailableKopecks),
		Locked:    kopecksToRubles(b.LockedKopecks),
	}
}

type bookLevelInfo struct {
	Price     float64 `json:"price"`
	Remaining float64 `json:"remaining"`
}

type orderbookInfo struct {
	MarketID int64           `json:"market_id"`
	Yes      []bookLevelInfo `json:"yes"`
	No       []bookLevelInfo `json:"no"`
}

func toOrderbookInfo(v *exchange.OrderbookView) orderbookInfo {
	toLevels := func(levels []core.BookLevel) []bookLevelInfo {
		out := make([]bookLevelInfo, len(levels))
		for i, l := range levels {
			out[i] = bookLevelInfo{
				Price:     bpToPrice(l.PriceBP),
				Remaining: kopecksToRubles(l.RemainingKopecks),
			}
		}
		return out
	}
	return orderbookInfo{MarketID: v.MarketID, Yes: toLevels(v.Yes), No: toLevels(v.No)}
}

type ledgerEntryInfo struct {
	ID          int64     `json:"id"`
	Amount      float64   `json:"amount"`
	Type        string    `json:"type"`
	ReferenceID int64     `json:"reference_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toLedgerEntryInfo(e *core.LedgerEntry) ledgerEntryInfo {
	return ledgerEntryInfo{
		ID:          e.ID,
		Amount:      kopecksToRubles(e.AmountKopecks),
		Type:        string(e.Type),
		ReferenceID: e.ReferenceID,
		CreatedAt:   e.CreatedAt,
	}
}

type withdrawalInfo struct {
	ID          int64      `json:"id"`
	TonAddress  string     `json:"ton_address"`
	AmountTon   float64    `json:"amount_ton"`
	Status      string     `json:"status"`
	TxHash      string     `json:"tx_hash,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

func toWithdrawalInfo(w *core.WithdrawalRequest) withdrawalInfo {
	info := withdrawalInfo{
		ID:         w.ID,
		TonAddress: w.TonAddress,
		AmountTon:  core.NanotonToTon(w.AmountNanoton),
		Status:     string(w.Status),
		TxHash:     w.TxHash,
		CreatedAt:  w.CreatedAt,
	}
	if !w.ProcessedAt.IsZero() {
		t := w.ProcessedAt
		info.ProcessedAt = &t
	}
	return info
}

type resolveMarketResponse struct {
	MarketID        int64   `json:"market_id"`
	Outcome         string  `json:"outcome"`
	TradesSettled   int     `json:"trades_settled"`
	OrdersCancelled int     `json:"orders_cancelled"`
	GrossPot        float64 `json:"gross_pot"`
	Fees            float64 `json:"fees"`
}

func toResolveMarketResponse(r *engine.SettlementResult) resolveMarketResponse {
	return resolveMarketResponse{
		MarketID:        r.MarketID,
		Outcome:         string(r.Outcome),
		TradesSettled:   r.TradesSettled,
		OrdersCancelled: r.OrdersCancelled,
		GrossPot:        kopecksToRubles(r.GrossPotKopecks),
		Fees:            kopecksToRubles(r.FeesKopecks),
	}
}
