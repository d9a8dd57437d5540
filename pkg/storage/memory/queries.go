package memory

import (
	"context"
	"sort"
	"time"

	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/storage"
)

// Users

func (m *mem) UpsertUserByTelegramID(ctx context.Context, telegramID int64, username, firstName string) (*core.User, error) {
	for _, u := range m.d.users {
		if u.TelegramID == telegramID {
			if username != "" {
				u.Username = username
			}
			if firstName != "" {
				u.FirstName = firstName
			}
			u.UpdatedAt = now()
			c := *u
			return &c, nil
		}
	}
	u := &core.User{
		ID:         m.d.nextID(),
		TelegramID: telegramID,
		Username:   username,
		FirstName:  firstName,
		CreatedAt:  now(),
		UpdatedAt:  now(),
	}
	m.d.users = append(m.d.users, u)
	c := *u
	return &c, nil
}

func (m *mem) UserByID(ctx context.Context, id int64) (*core.User, error) {
	for _, u := range m.d.users {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, notFound("user")
}

func (m *mem) UserByTelegramID(ctx context.Context, telegramID int64) (*core.User, error) {
	for _, u := range m.d.users {
		if u.TelegramID == telegramID {
			c := *u
			return &c, nil
		}
	}
	return nil, notFound("user")
}

// Markets

func (m *mem) CreateMarket(ctx context.Context, mk *core.Market) (*core.Market, error) {
	c := *mk
	c.ID = m.d.nextID()
	if c.YesPriceBP == 0 {
		c.YesPriceBP = 5000
	}
	if c.NoPriceBP == 0 {
		c.NoPriceBP = 5000
	}
	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt
	m.d.markets = append(m.d.markets, &c)
	out := c
	return &out, nil
}

func (m *mem) marketByID(id int64) *core.Market {
	for _, mk := range m.d.markets {
		if mk.ID == id {
			return mk
		}
	}
	return nil
}

func (m *mem) MarketByID(ctx context.Context, id int64) (*core.Market, error) {
	mk := m.marketByID(id)
	if mk == nil {
		return nil, notFound("market")
	}
	c := *mk
	return &c, nil
}

func (m *mem) MarketByIDForUpdate(ctx context.Context, id int64) (*core.Market, error) {
	return m.MarketByID(ctx, id)
}

func (m *mem) Markets(ctx context.Context, f storage.MarketFilter) ([]*core.Market, error) {
	var out []*core.Market
	for _, mk := range m.d.markets {
		if f.Category != "" && mk.Category != f.Category {
			continue
		}
		if f.Resolved != nil && mk.Resolved != *f.Resolved {
			continue
		}
		c := *mk
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *mem) MarkMarketResolved(ctx context.Context, id int64, outcome core.Side, at time.Time) error {
	mk := m.marketByID(id)
	if mk == nil {
		return notFound("market")
	}
	mk.Resolved = true
	mk.Outcome = outcome
	mk.ResolvedAt = at
	mk.UpdatedAt = now()
	return nil
}

func (m *mem) RecordMarketTrade(ctx context.Context, id int64, yesPriceBP int, amountKopecks int64) error {
	mk := m.marketByID(id)
	if mk == nil {
		return notFound("market")
	}
	mk.YesPriceBP = yesPriceBP
	mk.NoPriceBP = core.PriceScaleBP - yesPriceBP
	mk.VolumeKopecks += amountKopecks
	mk.UpdatedAt = now()
	return nil
}

func (m *mem) MarketHasOrders(ctx context.Context, id int64) (bool, error) {
	for _, o := range m.d.orders {
		if o.MarketID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *mem) DeleteMarket(ctx context.Context, id int64) error {
	for i, mk := range m.d.markets {
		if mk.ID == id {
			m.d.markets = append(m.d.markets[:i], m.d.markets[i+1:]...)
			return nil
		}
	}
	return notFound("market")
}

// Orders

func (m *mem) CreateOrder(ctx context.Context, o *core.Order) (*core.Order, error) {
	c := *o
	c.ID = m.d.nextID()
	c.FilledKopecks = 0
	c.Status = core.OrderOpen
	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt
	m.d.orders = append(m.d.orders, &c)
	out := c
	return &out, nil
}

func (m *mem) orderByID(id int64) *core.Order {
	for _, o := range m.d.orders {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func (m *mem) OrderByID(ctx context.Context, id int64) (*core.Order, error) {
	o := m.orderByID(id)
	if o == nil {
		return nil, notFound("order")
	}
	c := *o
	return &c, nil
}

func (m *mem) OrderByIDForUpdate(ctx context.Context, id int64) (*core.Order, error) {
	return m.OrderByID(ctx, id)
}

func (m *mem) OrdersByUser(ctx context.Context, userID int64, f storage.OrderFilter) ([]*core.Order, error) {
	var out []*core.Order
	for _, o := range m.d.orders {
		if o.UserID != userID {
			continue
		}
		if f.MarketID != 0 && o.MarketID != f.MarketID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		c := *o
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *mem) RestingOrdersByMarket(ctx context.Context, marketID int64) ([]*core.Order, error) {
	var out []*core.Order
	for _, o := range m.d.orders {
		if o.MarketID == marketID && o.Status.Resting() {
			c := *o
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mem) UpdateOrderFill(ctx context.Context, id int64, filledKopecks int64, status core.OrderStatus) error {
	o := m.orderByID(id)
	if o == nil {
		return notFound("order")
	}
	o.FilledKopecks = filledKopecks
	o.Status = status
	o.UpdatedAt = now()
	return nil
}

// BestCounterOrder mirrors the relational ordering: highest price first,
// then insertion order. Row locking has no in-memory equivalent; the
// store lock already serializes matchers.
func (m *mem) BestCounterOrder(ctx context.Context, marketID int64, side core.Side, minPriceBP int, excludeOrderID int64) (*core.Order, error) {
	var best *core.Order
	for _, o := range m.d.orders {
		if o.MarketID != marketID || o.Side != side || !o.Status.Resting() {
			continue
		}
		if o.ID == excludeOrderID {
			continue
		}
		if o.PriceBP < minPriceBP {
			continue
		}
		if best == nil || o.PriceBP > best.PriceBP ||
			(o.PriceBP == best.PriceBP && o.ID < best.ID) {
			best = o
		}
	}
	if best == nil {
		return nil, nil
	}
	c := *best
	return &c, nil
}

func (m *mem) BookLevels(ctx context.Context, marketID int64, side core.Side) ([]core.BookLevel, error) {
	byPrice := map[int]int64{}
	for _, o := range m.d.orders {
		if o.MarketID == marketID && o.Side == side && o.Status.Resting() {
			byPrice[o.PriceBP] += o.Remaining()
		}
	}
	out := make([]core.BookLevel, 0, len(byPrice))
	for bp, rem := range byPrice {
		out = append(out, core.BookLevel{PriceBP: bp, RemainingKopecks: rem})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriceBP > out[j].PriceBP })
	return out, nil
}

// Trades

func (m *mem) CreateTrade(ctx context.Context, t *core.Trade) (*core.Trade, error) {
	if t.YesCostKopecks+t.NoCostKopecks != t.AmountKopecks {
		return nil, core.Errorf(core.KindInvariant, "trade costs do not reconstruct amount")
	}
	c := *t
	c.ID = m.d.nextID()
	c.CreatedAt = now()
	m.d.trades = append(m.d.trades, &c)
	out := c
	return &out, nil
}

func (m *mem) TradesByMarket(ctx context.Context, marketID int64) ([]*core.Trade, error) {
	var out []*core.Trade
	for _, t := range m.d.trades {
		if t.MarketID == marketID {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mem) TradesForUser(ctx context.Context, userID, marketID int64, limit int) ([]*core.Trade, error) {
	owned := map[int64]bool{}
	for _, o := range m.d.orders {
		if o.UserID == userID {
			owned[o.ID] = true
		}
	}
	var out []*core.Trade
	for _, t := range m.d.trades {
		if marketID != 0 && t.MarketID != marketID {
			continue
		}
		if owned[t.YesOrderID] || owned[t.NoOrderID] {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ledger

func (m *mem) AppendLedger(ctx context.Context, e *core.LedgerEntry) (*core.LedgerEntry, error) {
	c := *e
	c.ID = m.d.nextID()
	c.CreatedAt = now()
	m.d.ledger = append(m.d.ledger, &c)
	out := c
	return &out, nil
}

func (m *mem) LedgerSum(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	for _, e := range m.d.ledger {
		if e.UserID == userID {
			sum += e.AmountKopecks
		}
	}
	return sum, nil
}

func (m *mem) LedgerSumForUpdate(ctx context.Context, userID int64) (int64, error) {
	return m.LedgerSum(ctx, userID)
}

func (m *mem) LockedFunds(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	for _, o := range m.d.orders {
		if o.UserID == userID && o.Status.Resting() {
			sum += o.Remaining()
		}
	}
	unresolved := map[int64]bool{}
	for _, mk := range m.d.markets {
		if !mk.Resolved {
			unresolved[mk.ID] = true
		}
	}
	for _, t := range m.d.trades {
		if !unresolved[t.MarketID] {
			continue
		}
		if yes := m.orderByID(t.YesOrderID); yes != nil && yes.UserID == userID {
			sum += t.YesCostKopecks
		}
		if no := m.orderByID(t.NoOrderID); no != nil && no.UserID == userID {
			sum += t.NoCostKopecks
		}
	}
	return sum, nil
}

func (m *mem) LedgerSumForTrades(ctx context.Context, types []core.EntryType, tradeIDs []int64) (int64, error) {
	want := map[core.EntryType]bool{}
	for _, t := range types {
		want[t] = true
	}
	ids := map[int64]bool{}
	for _, id := range tradeIDs {
		ids[id] = true
	}
	var sum int64
	for _, e := range m.d.ledger {
		if want[e.Type] && ids[e.ReferenceID] {
			sum += e.AmountKopecks
		}
	}
	return sum, nil
}

func (m *mem) LedgerEntries(ctx context.Context, userID int64, limit, offset int) ([]*core.LedgerEntry, error) {
	var all []*core.LedgerEntry
	for _, e := range m.d.ledger {
		if e.UserID == userID {
			c := *e
			all = append(all, &c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *mem) LedgerEntryByID(ctx context.Context, id int64) (*core.LedgerEntry, error) {
	for _, e := range m.d.ledger {
		if e.ID == id {
			c := *e
			return &c, nil
		}
	}
	return nil, notFound("ledger entry")
}

func (m *mem) SetLedgerReference(ctx context.Context, entryID, referenceID int64) error {
	for _, e := range m.d.ledger {
		if e.ID == entryID {
			e.ReferenceID = referenceID
			return nil
		}
	}
	return notFound("ledger entry")
}

// Chain deposits

func (m *mem) CreateChainDeposit(ctx context.Context, d *core.ChainDeposit) (*core.ChainDeposit, error) {
	for _, existing := range m.d.deposits {
		if existing.TxHash == d.TxHash {
			return nil, core.Errorf(core.KindConflict, "create chain deposit: duplicate")
		}
	}
	c := *d
	c.ID = m.d.nextID()
	c.CreatedAt = now()
	m.d.deposits = append(m.d.deposits, &c)
	out := c
	return &out, nil
}

func (m *mem) UpdateChainDeposit(ctx context.Context, id int64, status core.DepositStatus, userID, ledgerEntryID int64) error {
	for _, d := range m.d.deposits {
		if d.ID == id {
			d.Status = status
			d.UserID = userID
			d.LedgerEntryID = ledgerEntryID
			return nil
		}
	}
	return notFound("chain deposit")
}

func (m *mem) LastProcessedLT(ctx context.Context) (int64, error) {
	var max int64
	for _, d := range m.d.deposits {
		if d.LT > max {
			max = d.LT
		}
	}
	return max, nil
}

// Withdrawals

func (m *mem) CreateWithdrawal(ctx context.Context, w *core.WithdrawalRequest) (*core.WithdrawalRequest, error) {
	c := *w
	c.ID = m.d.nextID()
	c.CreatedAt = now()
	m.d.withdrawals = append(m.d.withdrawals, &c)
	out := c
	return &out, nil
}

func (m *mem) withdrawalByID(id int64) *core.WithdrawalRequest {
	for _, w := range m.d.withdrawals {
		if w.ID == id {
			return w
		}
	}
	return nil
}

func (m *mem) WithdrawalByID(ctx context.Context, id int64) (*core.WithdrawalRequest, error) {
	w := m.withdrawalByID(id)
	if w == nil {
		return nil, notFound("withdrawal")
	}
	c := *w
	return &c, nil
}

func (m *mem) WithdrawalByIDForUpdate(ctx context.Context, id int64) (*core.WithdrawalRequest, error) {
	return m.WithdrawalByID(ctx, id)
}

func (m *mem) WithdrawalsByUser(ctx context.Context, userID int64) ([]*core.WithdrawalRequest, error) {
	var out []*core.WithdrawalRequest
	for _, w := range m.d.withdrawals {
		if w.UserID == userID {
			c := *w
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *mem) WithdrawalsByStatus(ctx context.Context, status core.WithdrawalStatus) ([]*core.WithdrawalRequest, error) {
	var out []*core.WithdrawalRequest
	for _, w := range m.d.withdrawals {
		if w.Status == status {
			c := *w
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mem) UpdateWithdrawalStatus(ctx context.Context, id int64, status core.WithdrawalStatus, txHash string, processedAt time.Time) error {
	w := m.withdrawalByID(id)
	if w == nil {
		return notFound("withdrawal")
	}
	w.Status = status
	if txHash != "" {
		w.TxHash = txHash
	}
	if !processedAt.IsZero() {
		w.ProcessedAt = processedAt
	}
	return nil
}

func (m *mem) WithdrawalDailyTotal(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var sum int64
	for _, w := range m.d.withdrawals {
		if w.UserID != userID || w.CreatedAt.Before(since) {
			continue
		}
		if w.Status == core.WithdrawalCancelled || w.Status == core.WithdrawalFailed {
			continue
		}
		sum += w.AmountNanoton
	}
	return sum, nil
}
