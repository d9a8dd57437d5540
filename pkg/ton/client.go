// Package ton talks to the TON blockchain through the toncenter HTTP API
// and runs the deposit indexer that credits inbound escrow transfers to
// the ledger.
package ton

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pefandor/pravda-market/params"
	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/util"
)

// Transaction is one inbound transfer to the escrow address, already
// reduced to the fields the indexer cares about.
type Transaction struct {
	Hash          string
	LT            int64
	UTime         int64
	Sender        string
	Destination   string
	ValueNanoton  int64
	Body          []byte
	// Success is false when any outgoing message bounces the value back
	// to the sender, which is how a rejected transfer looks on chain.
	Success bool
}

// Client is a minimal toncenter v2 API client. Requests carry the API key
// header when configured; retries follow the upstream's signalling: 429
// backs off progressively, 5xx and transport errors retry after a fixed
// delay, any other 4xx aborts.
type Client struct {
	http  *http.Client
	log   *zap.SugaredLogger
	clock util.Clock

	apiURL        string
	apiKey        string
	retryAttempts int
	retryDelay    time.Duration
	depositOpcode uint32
}

func NewClient(cfg params.Ton, log *zap.Logger, clock util.Clock) *Client {
	return &Client{
		http:          &http.Client{Timeout: 30 * time.Second},
		log:           log.Sugar(),
		clock:         clock,
		apiURL:        cfg.APIURL,
		apiKey:        cfg.APIKey,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		depositOpcode: cfg.DepositOpcode,
	}
}

// toncenter wire types. Only the fields we read.

type apiEnvelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type apiTransaction struct {
	TransactionID struct {
		Hash string `json:"hash"`
		LT   string `json:"lt"`
	} `json:"transaction_id"`
	UTime   int64           `json:"utime"`
	InMsg   *apiMessage     `json:"in_msg"`
	OutMsgs []apiMessage    `json:"out_msgs"`
}

type apiMessage struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Value       string `json:"value"`
	MsgData     struct {
		Body string `json:"body"`
	} `json:"msg_data"`
}

// GetTransactions fetches up to limit recent transactions of the address,
// newest first, parsed into Transaction values. Transactions without an
// inbound message are skipped.
func (c *Client) GetTransactions(ctx context.Context, address string, limit int) ([]Transaction, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("archival", "false")

	raw, err := c.call(ctx, "getTransactions", q)
	if err != nil {
		return nil, err
	}

	var items []apiTransaction
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, core.Wrap(core.KindTransientUpstream, "malformed toncenter response", err)
	}

	txs := make([]Transaction, 0, len(items))
	for _, item := range items {
		tx, ok := parseTransaction(item)
		if !ok {
			continue
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (c *Client) call(ctx context.Context, method string, q url.Values) (json.RawMessage, error) {
	endpoint := c.apiURL + "/" + method + "?" + q.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.retryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, lastErr, attempt); err != nil {
				return nil, err
			}
		}

		raw, retry, err := c.doOnce(ctx, endpoint)
		if err == nil {
			return raw, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
		c.log.Warnw("toncenter request failed, retrying",
			"method", method, "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

// doOnce performs a single request. The second return value reports
// whether the failure is worth retrying.
func (c *Client) doOnce(ctx context.Context, endpoint string) (json.RawMessage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, core.Wrap(core.KindTransientUpstream, "build toncenter request", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, core.Wrap(core.KindTransientUpstream, "toncenter request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, true, core.Wrap(core.KindTransientUpstream, "read toncenter response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, &rateLimited{core.Errorf(core.KindTransientUpstream, "toncenter rate limited")}
	case resp.StatusCode >= 500:
		return nil, true, core.Errorf(core.KindTransientUpstream, "toncenter returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		// Definitive reject: the request itself is wrong, not the upstream.
		return nil, false, core.Errorf(core.KindValidation,
			"toncenter rejected request: %d %s", resp.StatusCode, truncate(body, 200))
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, true, core.Wrap(core.KindTransientUpstream, "decode toncenter envelope", err)
	}
	if !env.OK {
		return nil, true, core.Errorf(core.KindTransientUpstream, "toncenter error: %s", env.Error)
	}
	return env.Result, false, nil
}

// coreError aliases core.Error so the embedded field below is not named
// "Error", which would shadow the promoted Error() method and stop
// *rateLimited from satisfying the error interface.
type coreError = core.Error

type rateLimited struct{ *coreError }

func (c *Client) sleep(ctx context.Context, lastErr error, attempt int) error {
	delay := c.retryDelay
	if _, ok := lastErr.(*rateLimited); ok {
		// Progressive backoff only for rate limiting.
		delay = c.retryDelay * time.Duration(attempt+1)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(delay):
		return nil
	}
}

func parseTransaction(item apiTransaction) (Transaction, bool) {
	if item.InMsg == nil || item.InMsg.Source == "" {
		return Transaction{}, false
	}
	lt, err := strconv.ParseInt(item.TransactionID.LT, 10, 64)
	if err != nil {
		return Transaction{}, false
	}
	value, err := strconv.ParseInt(item.InMsg.Value, 10, 64)
	if err != nil {
		return Transaction{}, false
	}

	tx := Transaction{
		Hash:         item.TransactionID.Hash,
		LT:           lt,
		UTime:        item.UTime,
		Sender:       item.InMsg.Source,
		Destination:  item.InMsg.Destination,
		ValueNanoton: value,
		Success:      true,
	}
	if item.InMsg.MsgData.Body != "" {
		if body, err := base64.StdEncoding.DecodeString(item.InMsg.MsgData.Body); err == nil {
			tx.Body = body
		}
	}
	for _, out := range item.OutMsgs {
		if out.Destination == tx.Sender {
			tx.Success = false
			break
		}
	}
	return tx, true
}

// ParseDepositMemo decodes the deposit payload: a big-endian uint32 opcode
// followed by a big-endian uint64 telegram id. Returns (0, false) for
// anything that does not look like a deposit.
func (c *Client) ParseDepositMemo(body []byte) (int64, bool) {
	if len(body) < 12 {
		return 0, false
	}
	if binary.BigEndian.Uint32(body[0:4]) != c.depositOpcode {
		return 0, false
	}
	telegramID := int64(binary.BigEndian.Uint64(body[4:12]))
	if telegramID <= 0 {
		return 0, false
	}
	return telegramID, true
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return fmt.Sprintf("%s...", b[:n])
}
