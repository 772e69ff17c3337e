package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	coreerrors "nftmarket/core/errors"
	"nftmarket/core/events"
	"nftmarket/core/state"
	"nftmarket/native/bank"
	"nftmarket/native/collectible"
	"nftmarket/native/marketplace"
	"nftmarket/observability"
	"nftmarket/storage"
)

// EventSink receives every batch of committed events in commit order.
type EventSink interface {
	Persist(ctx context.Context, updates []EventUpdate) error
}

// Config wires the fixed addresses of the marketplace.
type Config struct {
	// Operator is the address owners approve so the marketplace can move
	// sold tokens.
	Operator common.Address
	// Vault holds buyer payments until sellers withdraw them.
	Vault        common.Address
	HistoryLimit int
}

// Processor is the single writer over marketplace state. Every mutating call
// runs as one unit of work: the engines write into a journaled overlay that
// is committed atomically on success and discarded on failure, and the
// events raised along the way are published only after the commit.
type Processor struct {
	mu sync.RWMutex

	db     storage.Database
	state  *state.Manager
	buffer *events.Buffer
	stream *eventStream

	market       *marketplace.Engine
	collectibles *collectible.Engine
	bank         *bank.Engine

	sinks   []EventSink
	logger  *slog.Logger
	metrics *observability.MarketplaceMetrics
	now     func() time.Time
}

// NewProcessor builds the engines over db.
func NewProcessor(db storage.Database, cfg Config, logger *slog.Logger) (*Processor, error) {
	if db == nil {
		return nil, fmt.Errorf("processor: database required")
	}
	if cfg.Operator == (common.Address{}) {
		return nil, fmt.Errorf("processor: operator address required")
	}
	if cfg.Vault == (common.Address{}) {
		return nil, fmt.Errorf("processor: vault address required")
	}
	if cfg.Operator == cfg.Vault {
		return nil, fmt.Errorf("processor: operator and vault must differ")
	}
	if logger == nil {
		logger = slog.Default()
	}
	mgr := state.NewManager(db)
	buffer := &events.Buffer{}

	nft := collectible.NewEngine()
	nft.SetState(mgr)
	nft.SetPauses(mgr)
	nft.SetEmitter(buffer)

	ledger := bank.NewEngine(cfg.Vault)
	ledger.SetState(mgr)
	ledger.SetEmitter(buffer)

	market := marketplace.NewEngine(cfg.Operator)
	market.SetState(mgr)
	market.SetRegistry(collectible.NewRegistry(nft, cfg.Operator))
	market.SetReleaser(ledger)
	market.SetPauses(mgr)
	market.SetEmitter(buffer)

	p := &Processor{
		db:           db,
		state:        mgr,
		buffer:       buffer,
		stream:       newEventStream(cfg.HistoryLimit),
		market:       market,
		collectibles: nft,
		bank:         ledger,
		logger:       logger.With("component", "processor"),
		metrics:      observability.Marketplace(),
		now:          time.Now,
	}
	for _, module := range []string{marketplace.ModuleName, collectible.ModuleName} {
		p.metrics.SetPause(module, mgr.IsPaused(module))
	}
	return p, nil
}

// AddSink registers a sink for committed events.
func (p *Processor) AddSink(sink EventSink) {
	if sink == nil {
		return
	}
	p.mu.Lock()
	p.sinks = append(p.sinks, sink)
	p.mu.Unlock()
}

// RestoreEvents seeds the event stream, typically from a persisted journal.
func (p *Processor) RestoreEvents(updates []EventUpdate) {
	p.stream.restore(updates)
}

// Operator returns the address owners must approve before listing.
func (p *Processor) Operator() common.Address { return p.market.Operator() }

// Vault returns the marketplace vault account.
func (p *Processor) Vault() common.Address { return p.bank.Vault() }

func (p *Processor) execute(ctx context.Context, op string, fn func() error) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	start := p.now()

	p.mu.Lock()
	err := fn()
	if err == nil {
		err = p.state.Commit()
	}
	var published []EventUpdate
	if err != nil {
		p.state.Discard()
		p.buffer.Reset()
	} else {
		published = p.stream.publish(p.buffer.Drain(), p.now().Unix())
		p.persist(ctx, published)
		if vault, vaultErr := p.bank.Balance(p.bank.Vault()); vaultErr == nil {
			p.metrics.RecordVaultBalance(vault)
		}
	}
	p.mu.Unlock()

	class := coreerrors.Classify(err)
	p.metrics.Observe(op, string(class), p.now().Sub(start))
	switch {
	case err == nil:
		p.logger.Debug("operation committed", "op", op, "events", len(published))
	case class == marketplace.ClassInternal:
		p.logger.Error("operation failed", "op", op, "error", err)
	default:
		p.logger.Info("operation rejected", "op", op, "class", string(class), "error", err)
	}
	return err
}

func (p *Processor) persist(ctx context.Context, updates []EventUpdate) {
	if len(updates) == 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range p.sinks {
		if err := sink.Persist(context.WithoutCancel(ctx), updates); err != nil {
			p.logger.Error("persist events", "error", err, "first_sequence", updates[0].Sequence)
		}
	}
}

// requireParticipants rejects the vault and operator accounts acting as
// buyers, sellers or token holders.
func (p *Processor) requireParticipants(addrs ...common.Address) error {
	for _, addr := range addrs {
		if addr == p.Vault() || addr == p.Operator() {
			return fmt.Errorf("%w: %s is a reserved marketplace account", coreerrors.ErrUnauthorized, strings.ToLower(addr.Hex()))
		}
	}
	return nil
}

func (p *Processor) read(fn func() error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return fn()
}

// List offers a token for sale.
func (p *Processor) List(ctx context.Context, contract common.Address, tokenID, price *uint256.Int, caller common.Address) error {
	return p.execute(ctx, "list", func() error {
		if err := p.requireParticipants(caller); err != nil {
			return err
		}
		return p.market.List(contract, tokenID, price, caller)
	})
}

// UpdateListing changes the price of an active listing.
func (p *Processor) UpdateListing(ctx context.Context, contract common.Address, tokenID, price *uint256.Int, caller common.Address) error {
	return p.execute(ctx, "update", func() error {
		if err := p.requireParticipants(caller); err != nil {
			return err
		}
		return p.market.Update(contract, tokenID, price, caller)
	})
}

// CancelListing withdraws an active listing.
func (p *Processor) CancelListing(ctx context.Context, contract common.Address, tokenID *uint256.Int, caller common.Address) error {
	return p.execute(ctx, "cancel", func() error {
		if err := p.requireParticipants(caller); err != nil {
			return err
		}
		return p.market.Cancel(contract, tokenID, caller)
	})
}

// Buy fulfils the listing and collects the payment from the buyer's account
// into the vault. Any failure, including an underfunded buyer, leaves every
// balance and the listing untouched.
func (p *Processor) Buy(ctx context.Context, contract common.Address, tokenID, payment *uint256.Int, buyer common.Address) error {
	return p.execute(ctx, "buy", func() error {
		if err := p.requireParticipants(buyer); err != nil {
			return err
		}
		if err := p.market.Buy(contract, tokenID, payment, buyer); err != nil {
			return err
		}
		if payment == nil || payment.IsZero() {
			return nil
		}
		return p.bank.Collect(buyer, payment)
	})
}

// Withdraw pays out the caller's proceeds to their account.
func (p *Processor) Withdraw(ctx context.Context, caller common.Address) (*uint256.Int, error) {
	var amount *uint256.Int
	err := p.execute(ctx, "withdraw", func() error {
		if err := p.requireParticipants(caller); err != nil {
			return err
		}
		var err error
		amount, err = p.market.Withdraw(caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}

// GetListing returns the committed listing for the asset.
func (p *Processor) GetListing(contract common.Address, tokenID *uint256.Int) (*marketplace.Listing, bool, error) {
	var (
		listing *marketplace.Listing
		ok      bool
	)
	err := p.read(func() error {
		var err error
		listing, ok, err = p.market.GetListing(contract, tokenID)
		return err
	})
	return listing, ok, err
}

// GetProceeds returns the committed proceeds balance of addr.
func (p *Processor) GetProceeds(addr common.Address) (*uint256.Int, error) {
	var amount *uint256.Int
	err := p.read(func() error {
		var err error
		amount, err = p.market.GetProceeds(addr)
		return err
	})
	return amount, err
}

// RegisterCollection creates a new token collection.
func (p *Processor) RegisterCollection(ctx context.Context, name, symbol, tokenURI string, creator common.Address) (*collectible.Collection, error) {
	var col *collectible.Collection
	err := p.execute(ctx, "register_collection", func() error {
		if err := p.requireParticipants(creator); err != nil {
			return err
		}
		var err error
		col, err = p.collectibles.RegisterCollection(name, symbol, tokenURI, creator)
		return err
	})
	return col, err
}

// Mint creates the next token of a collection for to. Only the collection
// creator may mint.
func (p *Processor) Mint(ctx context.Context, contract, caller, to common.Address) (*uint256.Int, error) {
	var id *uint256.Int
	err := p.execute(ctx, "mint", func() error {
		if err := p.requireParticipants(caller, to); err != nil {
			return err
		}
		col, err := p.collectibles.Collection(contract)
		if err != nil {
			return err
		}
		if col.Creator != caller {
			return fmt.Errorf("%w: only the collection creator may mint", coreerrors.ErrUnauthorized)
		}
		id, err = p.collectibles.Mint(contract, to)
		return err
	})
	return id, err
}

// Approve sets the single-token approval of a token.
func (p *Processor) Approve(ctx context.Context, contract common.Address, tokenID *uint256.Int, caller, approved common.Address) error {
	return p.execute(ctx, "approve", func() error {
		if err := p.requireParticipants(caller); err != nil {
			return err
		}
		return p.collectibles.Approve(contract, tokenID, caller, approved)
	})
}

// SetApprovalForAll toggles an operator approval for every token the caller
// owns in the collection.
func (p *Processor) SetApprovalForAll(ctx context.Context, contract, caller, operator common.Address, approved bool) error {
	return p.execute(ctx, "approve_all", func() error {
		if err := p.requireParticipants(caller); err != nil {
			return err
		}
		return p.collectibles.SetApprovalForAll(contract, caller, operator, approved)
	})
}

// TransferToken moves a token directly, outside of any sale. The operator
// cannot use its listing approval here.
func (p *Processor) TransferToken(ctx context.Context, contract common.Address, tokenID *uint256.Int, caller, from, to common.Address) error {
	return p.execute(ctx, "transfer_token", func() error {
		if err := p.requireParticipants(caller, to); err != nil {
			return err
		}
		return p.collectibles.TransferFrom(contract, tokenID, caller, from, to)
	})
}

// TokenInfo describes a minted token.
type TokenInfo struct {
	Contract common.Address
	TokenID  *uint256.Int
	Owner    common.Address
	Approved common.Address
	TokenURI string
}

// Token returns the committed ownership record of a token.
func (p *Processor) Token(contract common.Address, tokenID *uint256.Int) (*TokenInfo, error) {
	var info *TokenInfo
	err := p.read(func() error {
		owner, err := p.collectibles.OwnerOf(contract, tokenID)
		if err != nil {
			return err
		}
		approved, err := p.collectibles.GetApproved(contract, tokenID)
		if err != nil {
			return err
		}
		uri, err := p.collectibles.TokenURI(contract, tokenID)
		if err != nil {
			return err
		}
		info = &TokenInfo{
			Contract: contract,
			TokenID:  new(uint256.Int).Set(tokenID),
			Owner:    owner,
			Approved: approved,
			TokenURI: uri,
		}
		return nil
	})
	return info, err
}

// Collection returns a registered collection.
func (p *Processor) Collection(contract common.Address) (*collectible.Collection, error) {
	var col *collectible.Collection
	err := p.read(func() error {
		var err error
		col, err = p.collectibles.Collection(contract)
		return err
	})
	return col, err
}

// Deposit credits funds to an account.
func (p *Processor) Deposit(ctx context.Context, to common.Address, amount *uint256.Int) error {
	return p.execute(ctx, "deposit", func() error {
		return p.bank.Deposit(to, amount)
	})
}

// Balance returns the committed payment account balance of addr.
func (p *Processor) Balance(addr common.Address) (*uint256.Int, error) {
	var balance *uint256.Int
	err := p.read(func() error {
		var err error
		balance, err = p.bank.Balance(addr)
		return err
	})
	return balance, err
}

func normalizeModule(module string) (string, error) {
	module = strings.ToLower(strings.TrimSpace(module))
	switch module {
	case marketplace.ModuleName, collectible.ModuleName:
		return module, nil
	default:
		return "", fmt.Errorf("%w: unknown module %q", coreerrors.ErrInvalidInput, module)
	}
}

// Pause stops every mutating operation of module except proceeds
// withdrawals.
func (p *Processor) Pause(ctx context.Context, module string) error {
	return p.setPaused(ctx, module, true)
}

// Resume lifts a pause.
func (p *Processor) Resume(ctx context.Context, module string) error {
	return p.setPaused(ctx, module, false)
}

func (p *Processor) setPaused(ctx context.Context, module string, paused bool) error {
	name, err := normalizeModule(module)
	if err != nil {
		return err
	}
	op := "resume"
	if paused {
		op = "pause"
	}
	if err := p.execute(ctx, op, func() error {
		return p.state.SetPaused(name, paused)
	}); err != nil {
		return err
	}
	p.metrics.SetPause(name, paused)
	p.logger.Warn("module pause toggled", "module", name, "paused", paused)
	return nil
}

// IsPaused reports the committed pause flag of module.
func (p *Processor) IsPaused(module string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.IsPaused(module)
}

// Events returns retained committed events after the cursor.
func (p *Processor) Events(after uint64, limit int) []EventUpdate {
	return p.stream.since(after, limit)
}

// Subscribe streams committed events after cursor. The returned cancel
// function must be called once the subscriber is done.
func (p *Processor) Subscribe(ctx context.Context, cursor string) (<-chan EventUpdate, func(), []EventUpdate, error) {
	updates, cancel, backlog, err := p.stream.subscribe(ctx, cursor)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", coreerrors.ErrInvalidInput, err)
	}
	return updates, cancel, backlog, nil
}

// Close releases the underlying database.
func (p *Processor) Close() error {
	if p == nil || p.db == nil {
		return errors.New("processor: not initialised")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Discard()
	p.db.Close()
	return nil
}
