package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nftlend/native/lending"
	"nftlend/services/lendingd/indexer"
	"nftlend/services/lendingd/ledger"
)

const requestTimeout = 30 * time.Second

// Options wires the server's collaborators.
type Options struct {
	Ledger    *ledger.Ledger
	Store     *lending.Store
	Indexer   *indexer.Indexer
	Hub       *Hub
	Auth      AuthConfig
	RateLimit RateLimit
	Devnet    bool
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Server exposes the lending registry over HTTP.
type Server struct {
	ledger  *ledger.Ledger
	store   *lending.Store
	indexer *indexer.Indexer
	hub     *Hub
	auth    *Authenticator
	limiter *RateLimiter
	devnet  bool
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs a server. The ledger is required; store, indexer and hub
// are optional and their routes answer 503 when absent.
func New(opts Options) (*Server, error) {
	if opts.Ledger == nil || opts.Ledger.Registry == nil {
		return nil, errors.New("server: ledger required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	auth := NewAuthenticator(opts.Auth, logger)
	auth.now = clock
	return &Server{
		ledger:  opts.Ledger,
		store:   opts.Store,
		indexer: opts.Indexer,
		hub:     opts.Hub,
		auth:    auth,
		limiter: NewRateLimiter(opts.RateLimit),
		devnet:  opts.Devnet,
		logger:  logger,
		now:     clock,
	}, nil
}

// Authenticator exposes the token verifier, used to mint devnet tokens.
func (s *Server) Authenticator() *Authenticator { return s.auth }

// Handler builds the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Get("/events/stream", s.handleEventStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Get("/protocol/params", s.handleProtocolParams)
			r.Get("/fees/{asset}", s.handleFeeBalance)
			r.Get("/pools", s.handleListPools)
			r.Get("/pools/{id}", s.handleGetPool)
			r.Get("/pools/{id}/quote", s.handleQuote)
			r.Get("/pools/{id}/loans", s.handleListLoans)
			r.Get("/pools/{id}/loans/{loanID}", s.handleGetLoan)
			r.Get("/records/pools/{id}/loans/{loanID}", s.handleStoredLoan)
			r.Get("/claims", s.handleListClaims)
			r.Get("/claims/{claimID}", s.handleGetClaim)
			r.Get("/events", s.handleEvents)
		})

		r.Group(func(w chi.Router) {
			w.Use(middleware.Timeout(requestTimeout))
			w.Use(s.auth.Middleware)

			w.Route("/admin", func(a chi.Router) {
				a.Post("/assets", s.handleAssetListing)
				a.Post("/collaterals", s.handleCollateralListing)
				a.Post("/pause", s.handlePauseProtocol)
				a.Post("/reenable", s.handleReEnableProtocol)
				a.Post("/fees/withdraw", s.handleWithdrawFees)
				a.Post("/staleness", s.handleStaleness)
				a.Post("/claims", s.handleClaimRegistry)
				a.Post("/ownership", s.handleTransferOwnership)
			})

			w.Post("/pools", s.handleCreatePool)
			w.Post("/pools/{id}/deposit", s.handleDeposit)
			w.Post("/pools/{id}/withdraw", s.handleWithdraw)
			w.Post("/pools/{id}/pause", s.handlePauseBasket)
			w.Post("/pools/{id}/activate", s.handleActivateBasket)
			w.Post("/pools/{id}/rates", s.handleUpdateRates)
			w.Post("/pools/{id}/loans", s.handleCreateLoan)
			w.Post("/pools/{id}/loans/{loanID}/pay", s.handlePay)
			w.Post("/pools/{id}/loans/{loanID}/claim", s.handleClaimNFT)
			w.Post("/claims/{claimID}/transfer", s.handleTransferClaim)
			w.Post("/claims/{claimID}/approve", s.handleApproveClaim)

			if s.devnet {
				w.Route("/devnet", func(d chi.Router) {
					d.Post("/tokens/{addr}/mint", s.handleMintToken)
					d.Post("/tokens/{addr}/approve", s.handleApproveToken)
					d.Post("/collections/{addr}/mint", s.handleMintNFT)
					d.Post("/collections/{addr}/approve", s.handleApproveNFT)
					d.Post("/oracles/{addr}", s.handleOraclePrice)
				})
			}
		})
	})

	return otelhttp.NewHandler(r, "lendingd")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"paused": s.ledger.Registry.Paused(),
	})
}
