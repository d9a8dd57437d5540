package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/exchange"
	"github.com/pefandor/pravda-market/pkg/storage"
)

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return core.Wrap(core.KindValidation, "invalid request body", err)
	}
	return nil
}

// Public market data

func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	filter := storage.MarketFilter{Category: r.URL.Query().Get("category")}
	if v := r.URL.Query().Get("resolved"); v != "" {
		resolved := v == "true"
		filter.Resolved = &resolved
	}

	markets, err := s.svc.Markets(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out := make([]marketInfo, len(markets))
	for i, m := range markets {
		out[i] = toMarketInfo(m)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	market, err := s.svc.Market(r.Context(), pathID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketInfo(market))
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	book, err := s.svc.Orderbook(r.Context(), pathID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderbookInfo(book))
}

// Betting

func (s *Server) handlePlaceBet(w http.ResponseWriter, r *http.Request, p Principal) {
	var req placeBetRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	order, trades, err := s.svc.PlaceBet(r.Context(), p.UserID, req.MarketID,
		core.Side(req.Side), priceToBP(req.Price), rublesToKopecks(req.Amount))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := placeBetResponse{Order: toOrderInfo(order), Trades: make([]tradeInfo, len(trades))}
	for i, t := range trades {
		resp.Trades[i] = toTradeInfo(t)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request, p Principal) {
	marketID, _ := strconv.ParseInt(r.URL.Query().Get("market_id"), 10, 64)
	filter := storage.OrderFilter{
		MarketID: marketID,
		Status:   core.OrderStatus(r.URL.Query().Get("status")),
	}

	orders, err := s.svc.Orders(r.Context(), p.UserID, filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out := make([]orderInfo, len(orders))
	for i, o := range orders {
		out[i] = toOrderInfo(o)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request, p Principal) {
	order, err := s.svc.CancelOrder(r.Context(), p.UserID, pathID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderInfo(order))
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request, p Principal) {
	marketID, _ := strconv.ParseInt(r.URL.Query().Get("market_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	trades, err := s.svc.Trades(r.Context(), p.UserID, marketID, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out := make([]tradeInfo, len(trades))
	for i, t := range trades {
		out[i] = toTradeInfo(t)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request, p Principal) {
	balance, err := s.svc.Balance(r.Context(), p.UserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceInfo(balance))
}

func (s *Server) handleLedgerHistory(w http.ResponseWriter, r *http.Request, p Principal) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := s.svc.History(r.Context(), p.UserID, limit, offset)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out := make([]ledgerEntryInfo, len(entries))
	for i, e := range entries {
		out[i] = toLedgerEntryInfo(e)
	}
	writeJSON(w, http.StatusOK, out)
}

// Withdrawals

func (s *Server) handleCreateWithdrawal(w http.ResponseWriter, r *http.Request, p Principal) {
	var req createWithdrawalRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	created, err := s.svc.CreateWithdrawal(r.Context(), p.UserID,
		req.TonAddress, core.TonToNanoton(req.AmountTon))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWithdrawalInfo(created))
}

func (s *Server) handleListWithdrawals(w http.ResponseWriter, r *http.Request, p Principal) {
	withdrawals, err := s.svc.Withdrawals(r.Context(), p.UserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalInfos(withdrawals))
}

func (s *Server) handleGetWithdrawal(w http.ResponseWriter, r *http.Request, p Principal) {
	withdrawal, err := s.svc.Withdrawal(r.Context(), p.UserID, pathID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalInfo(withdrawal))
}

func (s *Server) handleCancelWithdrawal(w http.ResponseWriter, r *http.Request, p Principal) {
	cancelled, err := s.svc.CancelWithdrawal(r.Context(), p.UserID, pathID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalInfo(cancelled))
}

// Operator surface

func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	market, err := s.svc.CreateMarket(r.Context(), exchange.CreateMarketInput{
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Deadline:     req.Deadline,
		InitialYesBP: priceToBP(req.InitialYesPrice),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMarketInfo(market))
}

func (s *Server) handleDeleteMarket(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteMarket(r.Context(), pathID(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleResolveMarket(w http.ResponseWriter, r *http.Request) {
	var req resolveMarketRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.svc.ResolveMarket(r.Context(), pathID(r), core.Side(req.Outcome))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResolveMarketResponse(result))
}

func (s *Server) handleAdminListWithdrawals(w http.ResponseWriter, r *http.Request) {
	status := core.WithdrawalStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = core.WithdrawalPending
	}

	withdrawals, err := s.svc.WithdrawalsByStatus(r.Context(), status)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalInfos(withdrawals))
}

func (s *Server) handleCompleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req completeWithdrawalRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	completed, err := s.svc.CompleteWithdrawal(r.Context(), pathID(r), req.TxHash)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalInfo(completed))
}

func (s *Server) handleFailWithdrawal(w http.ResponseWriter, r *http.Request) {
	failed, err := s.svc.FailWithdrawal(r.Context(), pathID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalInfo(failed))
}

func toWithdrawalInfos(ws []*core.WithdrawalRequest) []withdrawalInfo {
	out := make([]withdrawalInfo, len(ws))
	for i, w := range ws {
		out[i] = toWithdrawalInfo(w)
	}
	return out
}
