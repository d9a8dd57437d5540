package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/pefandor/pravda-market/params"
	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/util"
)

// initDataMaxAge bounds how old a Telegram login payload may be.
const initDataMaxAge = 24 * time.Hour

const authCacheSize = 4096

// Principal is the authenticated Telegram identity the user middleware
// hands to each handler.
type Principal struct {
	UserID     int64
	TelegramID int64
	Username   string
	FirstName  string
}

type telegramUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// Authenticator validates Telegram WebApp init data and the operator
// bearer token. Validated init-data hashes go through a small LRU so
// repeated requests from the same session skip the HMAC work.
type Authenticator struct {
	secret     []byte // HMAC("WebAppData", botToken)
	adminToken string
	clock      util.Clock
	log        *zap.SugaredLogger

	cache *lru.Cache[string, telegramUser]
}

func NewAuthenticator(cfg params.Auth, log *zap.Logger, clock util.Clock) *Authenticator {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(cfg.BotToken))

	cache, _ := lru.New[string, telegramUser](authCacheSize)
	return &Authenticator{
		secret:     mac.Sum(nil),
		adminToken: cfg.AdminToken,
		clock:      clock,
		log:        log.Sugar(),
		cache:      cache,
	}
}

// ValidateInitData checks the HMAC-SHA256 signature and freshness of a raw
// init-data string and returns the embedded Telegram user.
func (a *Authenticator) ValidateInitData(initData string) (telegramUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return telegramUser{}, core.Wrap(core.KindUnauthenticated, "malformed init data", err)
	}

	receivedHash := values.Get("hash")
	if receivedHash == "" {
		return telegramUser{}, core.Errorf(core.KindUnauthenticated, "missing hash in init data")
	}
	if user, ok := a.cache.Get(receivedHash); ok {
		return user, nil
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return telegramUser{}, core.Errorf(core.KindUnauthenticated, "missing auth_date in init data")
	}
	if a.clock.Now().Sub(time.Unix(authDate, 0)) > initDataMaxAge {
		return telegramUser{}, core.Errorf(core.KindUnauthenticated, "init data expired")
	}

	// Data-check-string: every field except hash, sorted, one k=v per line.
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}

	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(strings.Join(pairs, "\n")))
	computed := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(receivedHash)) {
		return telegramUser{}, core.Errorf(core.KindUnauthenticated, "init data signature mismatch")
	}

	var user telegramUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil {
		return telegramUser{}, core.Wrap(core.KindUnauthenticated, "malformed user payload", err)
	}
	if user.ID <= 0 {
		return telegramUser{}, core.Errorf(core.KindUnauthenticated, "missing user id in init data")
	}

	a.cache.Add(receivedHash, user)
	return user, nil
}

// ValidAdminToken compares the presented operator token in constant time.
func (a *Authenticator) ValidAdminToken(token string) bool {
	if a.adminToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.adminToken)) == 1
}

// requireUser authenticates `Authorization: tma <init-data>`, upserts the
// user profile and injects the principal. Failures all map to the same
// generic body.
func (s *Server) requireUser(next func(http.ResponseWriter, *http.Request, Principal)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		initData, ok := strings.CutPrefix(header, "tma ")
		if !ok {
			s.denyAccess(w, r, core.Errorf(core.KindUnauthenticated, "missing tma authorization"))
			return
		}

		tgUser, err := s.auth.ValidateInitData(initData)
		if err != nil {
			s.denyAccess(w, r, err)
			return
		}

		user, err := s.svc.UpsertUser(r.Context(), tgUser.ID, tgUser.Username, tgUser.FirstName)
		if err != nil {
			s.respondError(w, r, err)
			return
		}

		next(w, r, Principal{
			UserID:     user.ID,
			TelegramID: user.TelegramID,
			Username:   user.Username,
			FirstName:  user.FirstName,
		})
	}
}

// requireAdmin authenticates `Authorization: Bearer <token>`.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || !s.auth.ValidAdminToken(token) {
			s.denyAccess(w, r, core.Errorf(core.KindForbidden, "bad admin token"))
			return
		}
		next(w, r)
	}
}

// denyAccess logs the reject and answers with a body that does not leak
// which check failed.
func (s *Server) denyAccess(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Warnw("access denied", "path", r.URL.Path, "error", err)
	status := http.StatusUnauthorized
	if core.KindOf(err) == core.KindForbidden {
		status = http.StatusForbidden
	}
	writeJSON(w, status, errorBody{Error: "access denied"})
}
