package core

import "time"

// All monetary state is held in integer minor units: kopecks (1/100 ruble)
// as signed 64-bit values, prices in basis points (10000 bp = 100%).

type Side string

const (
	Yes Side = "yes"
	No  Side = "no"
)

func (s Side) Valid() bool { return s == Yes || s == No }

// Opposite returns the counter side for matching.
func (s Side) Opposite() Side {
	if s == Yes {
		return No
	}
	return Yes
}

type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderPartial   OrderStatus = "partial"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
)

// Resting reports whether the order is still eligible for matching.
func (s OrderStatus) Resting() bool { return s == OrderOpen || s == OrderPartial }

type EntryType string

const (
	EntryDeposit             EntryType = "deposit"
	EntryOrderLock           EntryType = "order_lock"
	EntryOrderUnlock         EntryType = "order_unlock"
	EntryTradeLock           EntryType = "trade_lock"
	EntryPayout              EntryType = "payout"
	EntryFee                 EntryType = "fee"
	EntryWithdrawalPending   EntryType = "withdrawal_pending"
	EntryWithdrawalCancelled EntryType = "withdrawal_cancelled"
)

type DepositStatus string

const (
	DepositPending   DepositStatus = "pending"
	DepositConfirmed DepositStatus = "confirmed"
	DepositCredited  DepositStatus = "credited"
	DepositFailed    DepositStatus = "failed"
)

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalFailed     WithdrawalStatus = "failed"
	WithdrawalCancelled  WithdrawalStatus = "cancelled"
)

func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalPending, WithdrawalProcessing, WithdrawalCompleted, WithdrawalFailed, WithdrawalCancelled:
		return true
	}
	return false
}

// User is mapped from an external Telegram 64-bit id. There is no balance
// column; balances are derived from the ledger.
type User struct {
	ID         int64
	TelegramID int64
	Username   string
	FirstName  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Market struct {
	ID          int64
	Title       string
	Description string
	Category    string
	Deadline    time.Time

	Resolved   bool
	Outcome    Side // zero value until resolved
	ResolvedAt time.Time

	// Informational quote fields, updated from the last trade.
	YesPriceBP     int
	NoPriceBP      int
	VolumeKopecks  int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Order struct {
	ID             int64
	UserID         int64
	MarketID       int64
	Side           Side
	PriceBP        int
	AmountKopecks  int64
	FilledKopecks  int64
	Status         OrderStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Remaining is the unfilled portion still on the book.
func (o *Order) Remaining() int64 { return o.AmountKopecks - o.FilledKopecks }

// Trade records one fill between a YES order and a NO order. PriceBP is
// always the YES price of the resting order. Immutable once written.
type Trade struct {
	ID             int64
	MarketID       int64
	YesOrderID     int64
	NoOrderID      int64
	PriceBP        int
	AmountKopecks  int64
	YesCostKopecks int64
	NoCostKopecks  int64
	CreatedAt      time.Time
}

// LedgerEntry is append-only; entries are never updated or deleted
// (the deposit back-reference fix-up is the one storage-level exception).
type LedgerEntry struct {
	ID             int64
	UserID         int64
	AmountKopecks  int64
	Type           EntryType
	ReferenceID    int64 // order / trade / withdrawal / chain record id, 0 when absent
	CreatedAt      time.Time
}

// ChainDeposit is the record of one inbound chain transfer. The unique
// index on TxHash is the exactly-once gate for crediting.
type ChainDeposit struct {
	ID            int64
	TxHash        string
	LT            int64
	SenderAddress string
	AmountNanoton int64
	TelegramID    int64
	Status        DepositStatus
	UserID        int64
	LedgerEntryID int64
	CreatedAt     time.Time
}

type WithdrawalRequest struct {
	ID            int64
	UserID        int64
	TonAddress    string
	AmountNanoton int64
	Status        WithdrawalStatus
	TxHash        string // outgoing chain tx, unique when set
	LedgerEntryID int64
	CreatedAt     time.Time
	ProcessedAt   time.Time
}

// BookLevel is one aggregated orderbook row: total remaining amount
// resting at a price. Carries no per-user information.
type BookLevel struct {
	PriceBP          int
	RemainingKopecks int64
}

const (
	// PriceScaleBP is full probability in basis points.
	PriceScaleBP = 10000
	// KopecksPerRuble converts boundary major units to ledger minor units.
	KopecksPerRuble = 100
	// NanotonPerTon is the chain's minor-unit scale.
	NanotonPerTon = 1_000_000_000
)

// NanotonToKopecks converts a chain amount using an integer rate
// (kopecks per whole TON), flooring toward zero.
func NanotonToKopecks(nanoton, rateKopecksPerTon int64) int64 {
	return nanoton * rateKopecksPerTon / NanotonPerTon
}

func TonToNanoton(ton float64) int64 { return int64(ton * NanotonPerTon) }

func NanotonToTon(nanoton int64) float64 { return float64(nanoton) / NanotonPerTon }
