// Package httpapi exposes the contest over JSON HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
	"github.com/SAFERMOON/SAFERWINNING/internal/logging"
	"github.com/SAFERMOON/SAFERWINNING/internal/metrics"
	"github.com/SAFERMOON/SAFERWINNING/internal/middleware"
)

// OracleFunder tops up and reports the contest's randomness budget.
type OracleFunder interface {
	Fund(ctx context.Context, consumer string, amount int64) (int64, error)
	Balance(ctx context.Context, consumer string) (int64, error)
}

// Options configures the router.
type Options struct {
	Version           string
	RequireNeoAddress bool
	CORSOrigins       []string
	RateLimit         int
	RateBurst         int
	// PublicKey verifies RS256 bearer tokens. Nil trusts X-User-ID.
	PublicKey interface{}
}

// Server holds the handlers' collaborators.
type Server struct {
	contest *contest.Contest
	asset   contest.Asset
	oracle  OracleFunder
	log     *logging.Logger
	opts    Options
	started time.Time
}

func New(c *contest.Contest, asset contest.Asset, oracle OracleFunder, log *logging.Logger, opts Options) *Server {
	if log == nil {
		log = logging.NewNop()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 20
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = opts.RateLimit * 2
	}
	return &Server{
		contest: c,
		asset:   asset,
		oracle:  oracle,
		log:     log,
		opts:    opts,
		started: time.Now(),
	}
}

// Router builds the route table. Reads are public; writes need an
// authenticated participant, and /admin routes additionally need the owner.
func (s *Server) Router(ctx context.Context) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.NewTracingMiddleware(s.log).Handler)
	router.Use(middleware.NewCORSMiddleware(s.opts.CORSOrigins).Handler)
	router.Use(middleware.MetricsMiddleware())

	limiter := middleware.NewRateLimiter(s.opts.RateLimit, s.opts.RateBurst, s.log)
	limiter.StartCleanup(ctx, 10*time.Minute)

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	public := router.NewRoute().Subrouter()
	public.Use(limiter.Handler)
	public.HandleFunc("/contest", s.handleContest).Methods(http.MethodGet)
	public.HandleFunc("/entries/{id}", s.handleEntries).Methods(http.MethodGet)
	public.HandleFunc("/participants/{index:[0-9]+}", s.handleParticipant).Methods(http.MethodGet)
	public.HandleFunc("/participant-index/{id}", s.handleParticipantIndex).Methods(http.MethodGet)
	public.HandleFunc("/total-entries", s.handleTotalEntries).Methods(http.MethodGet)
	public.HandleFunc("/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)
	public.HandleFunc("/leaderboard/{slot:[0-9]+}", s.handleLeaderboardSlot).Methods(http.MethodGet)
	public.HandleFunc("/balances/{id}", s.handleBalance).Methods(http.MethodGet)
	public.HandleFunc("/winning-index/{value}", s.handleWinningIndex).Methods(http.MethodGet)
	public.HandleFunc("/draws/{id}", s.handleDraw).Methods(http.MethodGet)
	public.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	auth := middleware.NewAuthMiddleware(s.opts.PublicKey, s.log, nil)
	private := router.NewRoute().Subrouter()
	private.Use(auth.Handler, limiter.Handler)
	private.HandleFunc("/deposits", s.handleDeposit).Methods(http.MethodPost)
	private.HandleFunc("/withdrawals", s.handleWithdraw).Methods(http.MethodPost)
	private.HandleFunc("/asset/transfers", s.handleAssetTransfer).Methods(http.MethodPost)
	private.HandleFunc("/asset/balances/{id}", s.handleAssetBalance).Methods(http.MethodGet)
	private.HandleFunc("/admin/min-deposit", s.handleSetMinDeposit).Methods(http.MethodPut)
	private.HandleFunc("/admin/draws", s.handlePickWinner).Methods(http.MethodPost)
	private.HandleFunc("/admin/draws/{id}", s.handleFailDraw).Methods(http.MethodDelete)
	private.HandleFunc("/admin/oracle-funding", s.handleFundOracle).Methods(http.MethodPost)

	return router
}
