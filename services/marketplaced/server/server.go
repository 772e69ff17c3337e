package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nftmarket/core"
	"nftmarket/gateway/middleware"
	"nftmarket/native/collectible"
	"nftmarket/native/marketplace"
)

// Backend is the marketplace processor as seen by the HTTP layer.
type Backend interface {
	List(ctx context.Context, contract common.Address, tokenID, price *uint256.Int, caller common.Address) error
	UpdateListing(ctx context.Context, contract common.Address, tokenID, price *uint256.Int, caller common.Address) error
	CancelListing(ctx context.Context, contract common.Address, tokenID *uint256.Int, caller common.Address) error
	Buy(ctx context.Context, contract common.Address, tokenID, payment *uint256.Int, buyer common.Address) error
	Withdraw(ctx context.Context, caller common.Address) (*uint256.Int, error)
	GetListing(contract common.Address, tokenID *uint256.Int) (*marketplace.Listing, bool, error)
	GetProceeds(addr common.Address) (*uint256.Int, error)

	RegisterCollection(ctx context.Context, name, symbol, tokenURI string, creator common.Address) (*collectible.Collection, error)
	Mint(ctx context.Context, contract, caller, to common.Address) (*uint256.Int, error)
	Approve(ctx context.Context, contract common.Address, tokenID *uint256.Int, caller, approved common.Address) error
	SetApprovalForAll(ctx context.Context, contract, caller, operator common.Address, approved bool) error
	TransferToken(ctx context.Context, contract common.Address, tokenID *uint256.Int, caller, from, to common.Address) error
	Token(contract common.Address, tokenID *uint256.Int) (*core.TokenInfo, error)
	Collection(contract common.Address) (*collectible.Collection, error)

	Deposit(ctx context.Context, to common.Address, amount *uint256.Int) error
	Balance(addr common.Address) (*uint256.Int, error)

	Pause(ctx context.Context, module string) error
	Resume(ctx context.Context, module string) error
	IsPaused(module string) bool

	Events(after uint64, limit int) []core.EventUpdate
	Subscribe(ctx context.Context, cursor string) (<-chan core.EventUpdate, func(), []core.EventUpdate, error)

	Operator() common.Address
	Vault() common.Address
}

// EventHistory answers typed event queries from durable storage, reaching
// further back than the processor's in-memory history.
type EventHistory interface {
	ByType(ctx context.Context, eventType string, after uint64, limit int) ([]core.EventUpdate, error)
}

type Config struct {
	Backend       Backend
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	// Idempotency replays writes that repeat an Idempotency-Key. Nil disables
	// replay.
	Idempotency    func(http.Handler) http.Handler
	CORS           middleware.CORSConfig
	AdminScope     string
	Metrics        bool
	StreamOrigins  []string
	MaxEventsLimit int
	// History serves /v1/events?type= when set; otherwise the in-memory
	// history is filtered.
	History EventHistory
	Logger  *slog.Logger
}

type Server struct {
	backend     Backend
	logger      *slog.Logger
	adminScope  string
	origins     []string
	eventsLimit int
	history     EventHistory
}

// New builds the HTTP API.
func New(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		backend:     cfg.Backend,
		logger:      logger.With("component", "api"),
		adminScope:  cfg.AdminScope,
		origins:     cfg.StreamOrigins,
		eventsLimit: cfg.MaxEventsLimit,
		history:     cfg.History,
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	if s.eventsLimit <= 0 {
		s.eventsLimit = 500
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))

	r.Get("/healthz", s.handleHealth)
	if cfg.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	// route wraps a handler with the per-route middleware chain. Writes are
	// authenticated before rate limiting so callers are keyed by address.
	route := func(module, name string, write bool, scopes []string, h http.HandlerFunc) http.Handler {
		var handler http.Handler = h
		if write && cfg.Idempotency != nil {
			handler = cfg.Idempotency(handler)
		}
		if cfg.Observability != nil {
			handler = cfg.Observability.Middleware(module, name)(handler)
		}
		if cfg.RateLimiter != nil {
			handler = cfg.RateLimiter.Middleware(module)(handler)
		}
		if write && cfg.Authenticator != nil {
			handler = cfg.Authenticator.Middleware(scopes...)(handler)
		}
		return handler
	}
	var admin []string
	if s.adminScope != "" {
		admin = []string{s.adminScope}
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Method(http.MethodPost, "/listings", route("listings", "list", true, nil, s.handleList))
		v1.Method(http.MethodGet, "/listings/{contract}/{tokenId}", route("listings", "get_listing", false, nil, s.handleGetListing))
		v1.Method(http.MethodPatch, "/listings/{contract}/{tokenId}", route("listings", "update", true, nil, s.handleUpdate))
		v1.Method(http.MethodDelete, "/listings/{contract}/{tokenId}", route("listings", "cancel", true, nil, s.handleCancel))
		v1.Method(http.MethodPost, "/listings/{contract}/{tokenId}/buy", route("listings", "buy", true, nil, s.handleBuy))

		v1.Method(http.MethodPost, "/proceeds/withdraw", route("proceeds", "withdraw", true, nil, s.handleWithdraw))
		v1.Method(http.MethodGet, "/proceeds/{address}", route("proceeds", "get_proceeds", false, nil, s.handleGetProceeds))

		v1.Method(http.MethodPost, "/collections", route("collections", "register", true, nil, s.handleRegisterCollection))
		v1.Method(http.MethodGet, "/collections/{contract}", route("collections", "get_collection", false, nil, s.handleGetCollection))
		v1.Method(http.MethodPost, "/collections/{contract}/mint", route("collections", "mint", true, nil, s.handleMint))
		v1.Method(http.MethodPost, "/collections/{contract}/operators", route("collections", "set_operator", true, nil, s.handleSetOperator))
		v1.Method(http.MethodGet, "/collections/{contract}/{tokenId}", route("collections", "get_token", false, nil, s.handleGetToken))
		v1.Method(http.MethodPost, "/collections/{contract}/{tokenId}/approve", route("collections", "approve", true, nil, s.handleApprove))
		v1.Method(http.MethodPost, "/collections/{contract}/{tokenId}/transfer", route("collections", "transfer", true, nil, s.handleTransferToken))

		v1.Method(http.MethodGet, "/accounts/{address}", route("accounts", "get_balance", false, nil, s.handleGetBalance))
		v1.Method(http.MethodPost, "/accounts/{address}/deposit", route("accounts", "deposit", true, admin, s.handleDeposit))

		v1.Method(http.MethodGet, "/admin/pauses", route("admin", "pauses", false, nil, s.handlePauses))
		v1.Method(http.MethodPost, "/admin/pause", route("admin", "pause", true, admin, s.handlePause))
		v1.Method(http.MethodPost, "/admin/resume", route("admin", "resume", true, admin, s.handleResume))

		v1.Method(http.MethodGet, "/events", route("events", "events", false, nil, s.handleEvents))
		v1.Method(http.MethodGet, "/events/stream", route("events", "stream", false, nil, s.handleEventStream))
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"operator": s.backend.Operator().Hex(),
		"vault":    s.backend.Vault().Hex(),
	})
}
