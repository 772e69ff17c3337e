package bank

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/core/events"
)

var (
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrInvalidAmount     = errors.New("bank: amount must be positive")
	ErrInvalidAddress    = errors.New("bank: invalid address")
	ErrBalanceOverflow   = errors.New("bank: balance overflow")
	// ErrVaultAccount rejects deposits, transfers and collections that treat the vault as a payer or payee.
	ErrVaultAccount = errors.New("bank: vault account is reserved")

	errNilState = errors.New("bank: state not configured")
)

type engineState interface {
	BankBalance(addr common.Address) (*uint256.Int, error)
	PutBankBalance(addr common.Address, amount *uint256.Int) error
}

// Engine keeps payment account balances. One account, the vault, holds every
// payment collected for purchases until it is released to a seller.
type Engine struct {
	state   engineState
	emitter events.Emitter
	vault   common.Address
}

// NewEngine creates a bank whose marketplace vault lives at vault.
func NewEngine(vault common.Address) *Engine {
	return &Engine{emitter: events.NoopEmitter{}, vault: vault}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Vault returns the address of the marketplace vault account.
func (e *Engine) Vault() common.Address { return e.vault }

// Balance returns the spendable balance of addr.
func (e *Engine) Balance(addr common.Address) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	balance, err := e.state.BankBalance(addr)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Set(balance), nil
}

// Deposit credits newly issued funds to addr.
func (e *Engine) Deposit(to common.Address, amount *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if to == (common.Address{}) {
		return ErrInvalidAddress
	}
	if to == e.vault {
		return ErrVaultAccount
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if err := e.credit(to, amount); err != nil {
		return err
	}
	e.emitter.Emit(events.Transfer{To: to, Amount: new(uint256.Int).Set(amount), Reason: "deposit"})
	return nil
}

func (e *Engine) credit(addr common.Address, amount *uint256.Int) error {
	balance, err := e.Balance(addr)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return ErrBalanceOverflow
	}
	return e.state.PutBankBalance(addr, next)
}

func (e *Engine) debit(addr common.Address, amount *uint256.Int) error {
	balance, err := e.Balance(addr)
	if err != nil {
		return err
	}
	next, underflow := new(uint256.Int).SubOverflow(balance, amount)
	if underflow {
		return ErrInsufficientFunds
	}
	return e.state.PutBankBalance(addr, next)
}
