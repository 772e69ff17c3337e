package collectible

import (
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"nftmarket/core/events"
	nativecommon "nftmarket/native/common"
)

type engineState interface {
	CollectibleCollection(addr common.Address) (*Collection, bool, error)
	PutCollectibleCollection(c *Collection) error
	CollectibleToken(contract common.Address, tokenID *uint256.Int) (*Token, bool, error)
	PutCollectibleToken(contract common.Address, tokenID *uint256.Int, token *Token) error
	CollectibleOperator(contract, owner, operator common.Address) (bool, error)
	PutCollectibleOperator(contract, owner, operator common.Address, approved bool) error
	CollectibleBalance(contract, owner common.Address) (uint64, error)
	PutCollectibleBalance(contract, owner common.Address, balance uint64) error
	CollectibleNonce(creator common.Address) (uint64, error)
	PutCollectibleNonce(creator common.Address, nonce uint64) error
}

// Engine is an in-process ERC-721 style registry. Token ownership lives in
// the same state backend as marketplace listings so a rolled back purchase
// also rolls back the token transfer.
type Engine struct {
	state   engineState
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

// NewEngine creates a collectible engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses wires the pause view consulted before mint and transfer.
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

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

// RegisterCollection creates a new collection owned by creator. The contract
// address is derived from the creator and its registration count the same
// way an EVM derives contract addresses.
func (e *Engine) RegisterCollection(name, symbol, tokenURI string, creator common.Address) (*Collection, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	col, err := SanitizeCollection(&Collection{Creator: creator, Name: name, Symbol: symbol, TokenURI: tokenURI})
	if err != nil {
		return nil, err
	}
	nonce, err := e.state.CollectibleNonce(creator)
	if err != nil {
		return nil, err
	}
	col.Address = crypto.CreateAddress(creator, nonce)
	if _, exists, err := e.state.CollectibleCollection(col.Address); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrCollectionExists
	}
	if err := e.state.PutCollectibleNonce(creator, nonce+1); err != nil {
		return nil, err
	}
	if err := e.state.PutCollectibleCollection(col); err != nil {
		return nil, err
	}
	e.emit(events.CollectionRegistered{
		Contract: col.Address,
		Creator:  creator,
		Name:     col.Name,
		Symbol:   col.Symbol,
	})
	return col.Clone(), nil
}

// Collection returns the registered collection at addr.
func (e *Engine) Collection(addr common.Address) (*Collection, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	col, ok, err := e.state.CollectibleCollection(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownCollection
	}
	return col, nil
}

// Mint creates the next token of the collection for to and returns its id.
// Ids are sequential starting at zero.
func (e *Engine) Mint(contract, to common.Address) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if to == (common.Address{}) {
		return nil, ErrInvalidAddress
	}
	col, err := e.Collection(contract)
	if err != nil {
		return nil, err
	}
	if col.TokenCounter == math.MaxUint64 {
		return nil, ErrTokenCounterOverrun
	}
	tokenID := uint256.NewInt(col.TokenCounter)
	if err := e.state.PutCollectibleToken(contract, tokenID, &Token{Owner: to}); err != nil {
		return nil, err
	}
	if err := e.adjustBalance(contract, to, 1); err != nil {
		return nil, err
	}
	col.TokenCounter++
	if err := e.state.PutCollectibleCollection(col); err != nil {
		return nil, err
	}
	e.emit(events.TokenTransfer{Contract: contract, To: to, TokenID: new(uint256.Int).Set(tokenID)})
	return tokenID, nil
}

// TokenCounter returns the number of tokens minted so far.
func (e *Engine) TokenCounter(contract common.Address) (uint64, error) {
	col, err := e.Collection(contract)
	if err != nil {
		return 0, err
	}
	return col.TokenCounter, nil
}

// TokenURI returns the metadata URI of a minted token.
func (e *Engine) TokenURI(contract common.Address, tokenID *uint256.Int) (string, error) {
	col, err := e.Collection(contract)
	if err != nil {
		return "", err
	}
	if _, err := e.token(contract, tokenID); err != nil {
		return "", err
	}
	return col.TokenURI, nil
}

func (e *Engine) token(contract common.Address, tokenID *uint256.Int) (*Token, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if tokenID == nil {
		return nil, ErrInvalidToken
	}
	tok, ok, err := e.state.CollectibleToken(contract, tokenID)
	if err != nil {
		return nil, err
	}
	if !ok || tok.Owner == (common.Address{}) {
		return nil, ErrInvalidToken
	}
	return tok, nil
}

// OwnerOf returns the current owner of the token.
func (e *Engine) OwnerOf(contract common.Address, tokenID *uint256.Int) (common.Address, error) {
	tok, err := e.token(contract, tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return tok.Owner, nil
}

// BalanceOf returns how many tokens of the collection owner holds.
func (e *Engine) BalanceOf(contract, owner common.Address) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if owner == (common.Address{}) {
		return 0, ErrInvalidAddress
	}
	return e.state.CollectibleBalance(contract, owner)
}

// GetApproved returns the single-token approval, or the zero address.
func (e *Engine) GetApproved(contract common.Address, tokenID *uint256.Int) (common.Address, error) {
	tok, err := e.token(contract, tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return tok.Approved, nil
}

// IsApprovedForAll reports whether operator may manage every token owner
// holds in the collection.
func (e *Engine) IsApprovedForAll(contract, owner, operator common.Address) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.state.CollectibleOperator(contract, owner, operator)
}

// Approve grants approved the right to transfer a single token. The caller
// must own the token or be an operator of the owner.
func (e *Engine) Approve(contract common.Address, tokenID *uint256.Int, caller, approved common.Address) error {
	tok, err := e.token(contract, tokenID)
	if err != nil {
		return err
	}
	if approved == tok.Owner {
		return ErrApproveToOwner
	}
	if caller != tok.Owner {
		ok, err := e.state.CollectibleOperator(contract, tok.Owner, caller)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotOwnerOrApproved
		}
	}
	tok.Approved = approved
	if err := e.state.PutCollectibleToken(contract, tokenID, tok); err != nil {
		return err
	}
	e.emit(events.TokenApproval{
		Contract: contract,
		Owner:    tok.Owner,
		Approved: approved,
		TokenID:  new(uint256.Int).Set(tokenID),
	})
	return nil
}

// SetApprovalForAll toggles operator rights of operator over every token owner
// holds in the collection.
func (e *Engine) SetApprovalForAll(contract, owner, operator common.Address, approved bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if owner == operator {
		return ErrApproveToCaller
	}
	if _, err := e.Collection(contract); err != nil {
		return err
	}
	if err := e.state.PutCollectibleOperator(contract, owner, operator, approved); err != nil {
		return err
	}
	e.emit(events.ApprovalForAll{Contract: contract, Owner: owner, Operator: operator, Approved: approved})
	return nil
}

// IsApprovedOrOwner reports whether spender may move the token.
func (e *Engine) IsApprovedOrOwner(contract common.Address, tokenID *uint256.Int, spender common.Address) (bool, error) {
	tok, err := e.token(contract, tokenID)
	if err != nil {
		return false, err
	}
	if spender == tok.Owner || (spender != (common.Address{}) && spender == tok.Approved) {
		return true, nil
	}
	return e.state.CollectibleOperator(contract, tok.Owner, spender)
}

// TransferFrom moves a token from its owner to another address. The caller
// must own the token, hold its approval, or be an operator of the owner. Any
// single-token approval is cleared.
func (e *Engine) TransferFrom(contract common.Address, tokenID *uint256.Int, caller, from, to common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	ok, err := e.IsApprovedOrOwner(contract, tokenID, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotOwnerOrApproved
	}
	if to == (common.Address{}) {
		return ErrInvalidAddress
	}
	tok, err := e.token(contract, tokenID)
	if err != nil {
		return err
	}
	if tok.Owner != from {
		return ErrIncorrectOwner
	}
	if err := e.adjustBalance(contract, from, -1); err != nil {
		return err
	}
	if err := e.adjustBalance(contract, to, 1); err != nil {
		return err
	}
	tok.Owner = to
	tok.Approved = common.Address{}
	if err := e.state.PutCollectibleToken(contract, tokenID, tok); err != nil {
		return err
	}
	e.emit(events.TokenTransfer{Contract: contract, From: from, To: to, TokenID: new(uint256.Int).Set(tokenID)})
	return nil
}

func (e *Engine) adjustBalance(contract, owner common.Address, delta int) error {
	current, err := e.state.CollectibleBalance(contract, owner)
	if err != nil {
		return err
	}
	switch {
	case delta < 0 && current == 0:
		return ErrIncorrectOwner
	case delta < 0:
		current--
	default:
		current++
	}
	return e.state.PutCollectibleBalance(contract, owner, current)
}
