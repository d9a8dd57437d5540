package ton

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pefandor/pravda-market/params"
	"github.com/pefandor/pravda-market/pkg/core"
)

// fakeClock fires timers immediately and records the requested delays.
type fakeClock struct {
	now    time.Time
	delays []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.delays = append(c.delays, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func depositBody(opcode uint32, telegramID uint64) string {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], opcode)
	binary.BigEndian.PutUint64(buf[4:12], telegramID)
	return base64.StdEncoding.EncodeToString(buf)
}

type txFixture struct {
	hash       string
	lt         int64
	sender     string
	value      int64
	body       string
	bounceBack bool
}

func toncenterResponse(txs []txFixture) string {
	items := make([]map[string]any, 0, len(txs))
	for _, tx := range txs {
		item := map[string]any{
			"transaction_id": map[string]any{
				"hash": tx.hash,
				"lt":   fmt.Sprintf("%d", tx.lt),
			},
			"utime": 1724400000,
			"in_msg": map[string]any{
				"source":      tx.sender,
				"destination": "EQEscrowAddressEscrowAddressEscrowAddressEscrow0",
				"value":       fmt.Sprintf("%d", tx.value),
				"msg_data":    map[string]any{"body": tx.body},
			},
			"out_msgs": []any{},
		}
		if tx.bounceBack {
			item["out_msgs"] = []any{map[string]any{
				"source":      "EQEscrowAddressEscrowAddressEscrowAddressEscrow0",
				"destination": tx.sender,
				"value":       fmt.Sprintf("%d", tx.value),
			}}
		}
		items = append(items, item)
	}
	out, _ := json.Marshal(map[string]any{"ok": true, "result": items})
	return string(out)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *fakeClock) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := params.Default().Ton
	cfg.APIURL = srv.URL
	cfg.APIKey = "test-key"
	cfg.RetryAttempts = 3
	cfg.RetryDelay = 2 * time.Second

	clock := &fakeClock{now: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}
	return NewClient(cfg, zap.NewNop(), clock), clock
}

func TestGetTransactionsParsesResponse(t *testing.T) {
	body := depositBody(0x00000001, 777)
	var gotKey, gotAddress string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotAddress = r.URL.Query().Get("address")
		fmt.Fprint(w, toncenterResponse([]txFixture{
			{hash: "hash-1", lt: 100, sender: "EQSender1", value: 1_500_000_000, body: body},
			{hash: "hash-2", lt: 90, sender: "EQSender2", value: 500_000_000, bounceBack: true},
		}))
	})

	txs, err := client.GetTransactions(context.Background(), "EQEscrow", 50)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "EQEscrow", gotAddress)

	assert.Equal(t, "hash-1", txs[0].Hash)
	assert.Equal(t, int64(100), txs[0].LT)
	assert.Equal(t, "EQSender1", txs[0].Sender)
	assert.Equal(t, int64(1_500_000_000), txs[0].ValueNanoton)
	assert.True(t, txs[0].Success)
	assert.Len(t, txs[0].Body, 12)

	// A transfer bounced back to its sender is not a successful deposit.
	assert.False(t, txs[1].Success)
}

func TestGetTransactionsSkipsOutbound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Outbound transactions have no in_msg source.
		fmt.Fprint(w, toncenterResponse([]txFixture{
			{hash: "hash-out", lt: 50, sender: "", value: 0},
		}))
	})

	txs, err := client.GetTransactions(context.Background(), "EQEscrow", 50)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestGetTransactionsRetriesRateLimitWithBackoff(t *testing.T) {
	calls := 0
	client, clock := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, toncenterResponse(nil))
	})

	_, err := client.GetTransactions(context.Background(), "EQEscrow", 50)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	// Rate-limit delays grow with the attempt number.
	require.Len(t, clock.delays, 2)
	assert.Equal(t, 4*time.Second, clock.delays[0])
	assert.Equal(t, 6*time.Second, clock.delays[1])
}

func TestGetTransactionsRetriesServerErrorsWithFixedDelay(t *testing.T) {
	calls := 0
	client, clock := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, toncenterResponse(nil))
	})

	_, err := client.GetTransactions(context.Background(), "EQEscrow", 50)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, clock.delays, 1)
	assert.Equal(t, 2*time.Second, clock.delays[0])
}

func TestGetTransactionsAbortsOnClientError(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "wrong address", http.StatusUnprocessableEntity)
	})

	_, err := client.GetTransactions(context.Background(), "EQEscrow", 50)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, core.KindValidation, core.KindOf(err))
}

func TestGetTransactionsGivesUpAfterRetryBudget(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.GetTransactions(context.Background(), "EQEscrow", 50)
	require.Error(t, err)
	assert.Equal(t, 4, calls) // initial try plus three retries
}

func TestParseDepositMemo(t *testing.T) {
	cfg := params.Default().Ton
	client := NewClient(cfg, zap.NewNop(), &fakeClock{})

	valid := make([]byte, 12)
	binary.BigEndian.PutUint32(valid[0:4], cfg.DepositOpcode)
	binary.BigEndian.PutUint64(valid[4:12], 123456789)

	id, ok := client.ParseDepositMemo(valid)
	require.True(t, ok)
	assert.Equal(t, int64(123456789), id)

	// Trailing bytes after the id are tolerated.
	id, ok = client.ParseDepositMemo(append(valid, 0xde, 0xad))
	require.True(t, ok)
	assert.Equal(t, int64(123456789), id)

	_, ok = client.ParseDepositMemo(nil)
	assert.False(t, ok)

	_, ok = client.ParseDepositMemo(valid[:11])
	assert.False(t, ok)

	wrongOpcode := make([]byte, 12)
	binary.BigEndian.PutUint32(wrongOpcode[0:4], 0x000000ff)
	binary.BigEndian.PutUint64(wrongOpcode[4:12], 123456789)
	_, ok = client.ParseDepositMemo(wrongOpcode)
	assert.False(t, ok)

	zeroID := make([]byte, 12)
	binary.BigEndian.PutUint32(zeroID[0:4], cfg.DepositOpcode)
	_, ok = client.ParseDepositMemo(zeroID)
	assert.False(t, ok)
}
