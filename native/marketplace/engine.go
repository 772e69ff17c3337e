package marketplace

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/core/events"
	nativecommon "nftmarket/native/common"
)

type engineState interface {
	MarketplaceListing(contract common.Address, tokenID *uint256.Int) (*Listing, bool, error)
	PutMarketplaceListing(contract common.Address, tokenID *uint256.Int, listing *Listing) error
	DeleteMarketplaceListing(contract common.Address, tokenID *uint256.Int) error
	MarketplaceProceeds(addr common.Address) (*uint256.Int, error)
	PutMarketplaceProceeds(addr common.Address, amount *uint256.Int) error
	Snapshot() int
	RevertToSnapshot(id int) error
}

// AssetRegistry is the external component that tracks asset ownership. Every
// answer is fetched fresh inside the operation that needs it.
type AssetRegistry interface {
	OwnerOf(contract common.Address, tokenID *uint256.Int) (common.Address, error)
	IsApprovedForTransfer(contract common.Address, tokenID *uint256.Int, operator common.Address) (bool, error)
	Transfer(contract common.Address, tokenID *uint256.Int, from, to common.Address) error
}

// FundsReleaser pays withdrawn proceeds out of the marketplace.
type FundsReleaser interface {
	Release(to common.Address, amount *uint256.Int) error
}

// Engine implements the listing lifecycle and the proceeds ledger. It keeps
// no state of its own: listings and balances live in the configured state
// backend, and the engine holds no lock, so a collaborator that calls back
// into it during Buy sees the already-finalised key.
type Engine struct {
	state    engineState
	registry AssetRegistry
	releaser FundsReleaser
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	operator common.Address
}

// NewEngine creates a marketplace engine with a no-op emitter. The operator
// is the address the asset registry must have approved to move listed assets.
func NewEngine(operator common.Address) *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		operator: operator,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry configures the asset registry collaborator.
func (e *Engine) SetRegistry(registry AssetRegistry) { e.registry = registry }

// SetReleaser configures the mechanism that pays out withdrawn proceeds.
func (e *Engine) SetReleaser(releaser FundsReleaser) { e.releaser = releaser }

// SetPauses wires the pause view consulted before every mutating operation
// except Withdraw.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Operator returns the marketplace operator address.
func (e *Engine) Operator() common.Address { return e.operator }

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// checkpoint marks the emitter so a reverted step can drop the events its
// collaborators raised. Emitters without checkpoints are left untouched.
func (e *Engine) checkpoint() func() {
	cp, ok := e.emitter.(events.Checkpointer)
	if !ok {
		return func() {}
	}
	mark := cp.Mark()
	return func() { cp.Truncate(mark) }
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.registry == nil {
		return errNilRegistry
	}
	return nil
}

func (e *Engine) loadActive(contract common.Address, tokenID *uint256.Int) (*Listing, error) {
	listing, ok, err := e.state.MarketplaceListing(contract, tokenID)
	if err != nil {
		return nil, err
	}
	if !ok || !listing.Active() {
		return nil, ErrNotListed
	}
	return listing, nil
}

// List offers an asset for sale at price. The caller must currently own the
// asset and the marketplace operator must be approved to move it.
func (e *Engine) List(contract common.Address, tokenID, price *uint256.Int, caller common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if caller == (common.Address{}) {
		return ErrInvalidAddress
	}
	tokenID = amountOrZero(tokenID)
	owner, err := e.registry.OwnerOf(contract, tokenID)
	if err != nil {
		return fmt.Errorf("%w: owner of %s: %v", ErrRegistry, NewAssetKey(contract, tokenID), err)
	}
	if owner != caller {
		return ErrNotOwner
	}
	if price == nil || price.IsZero() {
		return ErrPriceMustBePositive
	}
	if _, err := e.loadActive(contract, tokenID); err == nil {
		return ErrAlreadyListed
	} else if err != ErrNotListed {
		return err
	}
	approved, err := e.registry.IsApprovedForTransfer(contract, tokenID, e.operator)
	if err != nil {
		return fmt.Errorf("%w: approval of %s: %v", ErrRegistry, NewAssetKey(contract, tokenID), err)
	}
	if !approved {
		return ErrNotApproved
	}
	listing := &Listing{Seller: caller, Price: amountOrZero(price)}
	if err := e.state.PutMarketplaceListing(contract, tokenID, listing); err != nil {
		return err
	}
	e.emit(events.ItemListed{
		Seller:   caller,
		Contract: contract,
		TokenID:  tokenID,
		Price:    amountOrZero(price),
	})
	return nil
}

// Update replaces the price of an active listing. Only the seller may update.
func (e *Engine) Update(contract common.Address, tokenID, newPrice *uint256.Int, caller common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	tokenID = amountOrZero(tokenID)
	listing, err := e.loadActive(contract, tokenID)
	if err != nil {
		return err
	}
	if listing.Seller != caller {
		return ErrNotOwner
	}
	if newPrice == nil || newPrice.IsZero() {
		return ErrPriceMustBePositive
	}
	listing.Price = amountOrZero(newPrice)
	if err := e.state.PutMarketplaceListing(contract, tokenID, listing); err != nil {
		return err
	}
	e.emit(events.ItemListingUpdated{
		Seller:   listing.Seller,
		Contract: contract,
		TokenID:  tokenID,
		NewPrice: amountOrZero(newPrice),
	})
	return nil
}

// Cancel withdraws the sale offer. The asset itself is never touched.
func (e *Engine) Cancel(contract common.Address, tokenID *uint256.Int, caller common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	tokenID = amountOrZero(tokenID)
	listing, err := e.loadActive(contract, tokenID)
	if err != nil {
		return err
	}
	if listing.Seller != caller {
		return ErrNotOwner
	}
	if err := e.state.DeleteMarketplaceListing(contract, tokenID); err != nil {
		return err
	}
	e.emit(events.ItemCancelled{
		Seller:   listing.Seller,
		Contract: contract,
		TokenID:  tokenID,
	})
	return nil
}

// Buy fulfils an active listing. The listing is cleared and the seller
// credited before the asset registry is asked to move the asset; if that
// transfer fails every effect of the call is reverted. Payment above the
// price is kept as seller proceeds.
func (e *Engine) Buy(contract common.Address, tokenID, payment *uint256.Int, buyer common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if buyer == (common.Address{}) {
		return ErrInvalidAddress
	}
	tokenID = amountOrZero(tokenID)
	listing, err := e.loadActive(contract, tokenID)
	if err != nil {
		return err
	}
	paid := amountOrZero(payment)
	if paid.Lt(listing.Price) {
		return ErrPriceNotMet
	}

	snap := e.state.Snapshot()
	dropEvents := e.checkpoint()
	if err := e.buyLocked(contract, tokenID, listing, paid, buyer); err != nil {
		dropEvents()
		if revertErr := e.state.RevertToSnapshot(snap); revertErr != nil {
			return fmt.Errorf("%w (revert failed: %v)", err, revertErr)
		}
		return err
	}
	e.emit(events.ItemBought{
		Buyer:    buyer,
		Seller:   listing.Seller,
		Contract: contract,
		TokenID:  tokenID,
		Price:    amountOrZero(listing.Price),
	})
	return nil
}

func (e *Engine) buyLocked(contract common.Address, tokenID *uint256.Int, listing *Listing, paid *uint256.Int, buyer common.Address) error {
	if err := e.state.DeleteMarketplaceListing(contract, tokenID); err != nil {
		return err
	}
	if err := e.credit(listing.Seller, paid); err != nil {
		return err
	}
	if err := e.registry.Transfer(contract, tokenID, listing.Seller, buyer); err != nil {
		return fmt.Errorf("%w: %s to %s: %v", ErrTransferFailed, NewAssetKey(contract, tokenID), buyer.Hex(), err)
	}
	return nil
}

// GetListing returns a copy of the active listing for the key.
func (e *Engine) GetListing(contract common.Address, tokenID *uint256.Int) (*Listing, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	listing, err := e.loadActive(contract, amountOrZero(tokenID))
	if err == ErrNotListed {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return listing.Clone(), true, nil
}
