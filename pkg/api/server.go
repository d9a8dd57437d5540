// Package api is the HTTP boundary: routing, authentication, request
// decoding in major units, and mapping of domain error kinds to statuses.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/pefandor/pravda-market/params"
	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/exchange"
	"github.com/pefandor/pravda-market/pkg/metrics"
)

type Server struct {
	svc    *exchange.Service
	auth   *Authenticator
	met    *metrics.Collector
	log    *zap.SugaredLogger
	router *mux.Router

	httpSrv *http.Server
}

func NewServer(cfg params.Server, svc *exchange.Service, auth *Authenticator,
	met *metrics.Collector, log *zap.Logger) *Server {
	s := &Server{
		svc:    svc,
		auth:   auth,
		met:    met,
		log:    log.Sugar(),
		router: mux.NewRouter(),
	}
	s.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           c.Handler(s.instrument(s.router)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", s.met.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Public market data
	api.HandleFunc("/markets", s.handleListMarkets).Methods("GET")
	api.HandleFunc("/markets/{id:[0-9]+}", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/markets/{id:[0-9]+}/orderbook", s.handleGetOrderbook).Methods("GET")

	// Betting (authenticated user)
	api.HandleFunc("/bets", s.requireUser(s.handlePlaceBet)).Methods("POST")
	api.HandleFunc("/bets/orders", s.requireUser(s.handleListOrders)).Methods("GET")
	api.HandleFunc("/bets/orders/{id:[0-9]+}", s.requireUser(s.handleCancelOrder)).Methods("DELETE")
	api.HandleFunc("/bets/trades", s.requireUser(s.handleListTrades)).Methods("GET")
	api.HandleFunc("/bets/balance", s.requireUser(s.handleBalance)).Methods("GET")
	api.HandleFunc("/ledger/transactions", s.requireUser(s.handleLedgerHistory)).Methods("GET")

	// Withdrawals (authenticated user)
	api.HandleFunc("/withdrawals", s.requireUser(s.handleCreateWithdrawal)).Methods("POST")
	api.HandleFunc("/withdrawals", s.requireUser(s.handleListWithdrawals)).Methods("GET")
	api.HandleFunc("/withdrawals/{id:[0-9]+}", s.requireUser(s.handleGetWithdrawal)).Methods("GET")
	api.HandleFunc("/withdrawals/{id:[0-9]+}", s.requireUser(s.handleCancelWithdrawal)).Methods("DELETE")

	// Operator surface
	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/markets", s.requireAdmin(s.handleCreateMarket)).Methods("POST")
	admin.HandleFunc("/markets/{id:[0-9]+}", s.requireAdmin(s.handleDeleteMarket)).Methods("DELETE")
	admin.HandleFunc("/markets/{id:[0-9]+}/resolve", s.requireAdmin(s.handleResolveMarket)).Methods("POST")
	admin.HandleFunc("/withdrawals", s.requireAdmin(s.handleAdminListWithdrawals)).Methods("GET")
	admin.HandleFunc("/withdrawals/{id:[0-9]+}/complete", s.requireAdmin(s.handleCompleteWithdrawal)).Methods("POST")
	admin.HandleFunc("/withdrawals/{id:[0-9]+}/fail", s.requireAdmin(s.handleFailWithdrawal)).Methods("POST")
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Infow("api server starting", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Infow("api server shutting down")
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// instrument records per-route latency with the route template as label,
// so path parameters do not explode cardinality.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		var match mux.RouteMatch
		if s.router.Match(r, &match) && match.Route != nil {
			if tmpl, err := match.Route.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.met.ObserveHTTP(route, strconv.Itoa(rec.status), time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError maps domain error kinds to HTTP statuses. Invariant and
// unknown failures get a generic body; the details stay in the logs.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := core.KindOf(err)
	status := statusFor(kind)

	switch {
	case status >= 500:
		s.log.Errorw("request failed", "path", r.URL.Path, "kind", kind.String(), "error", err)
		writeJSON(w, status, errorBody{Error: kind.String(), Message: "internal error, please try again"})
		return
	case kind == core.KindUnauthenticated || kind == core.KindForbidden:
		s.denyAccess(w, r, err)
		return
	}

	s.log.Warnw("request rejected", "path", r.URL.Path, "kind", kind.String(), "error", err)
	msg := ""
	var domainErr *core.Error
	if errors.As(err, &domainErr) {
		msg = domainErr.Msg
	}
	writeJSON(w, status, errorBody{Error: kind.String(), Message: msg})
}

func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindUnauthenticated:
		return http.StatusUnauthorized
	case core.KindForbidden:
		return http.StatusForbidden
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case core.KindStorageUnavailable, core.KindTransientUpstream:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
