package bank

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/core/events"
)

const (
	ReasonTransfer = "transfer"
	ReasonCollect  = "marketplace.collect"
	ReasonRelease  = "marketplace.release"
)

// Transfer moves amount from one account to another. The debit happens first
// so an underfunded sender leaves both balances untouched. The vault is only
// reachable through Collect and Release.
func (e *Engine) Transfer(from, to common.Address, amount *uint256.Int) error {
	if from == e.vault || to == e.vault {
		return ErrVaultAccount
	}
	return e.transfer(from, to, amount, ReasonTransfer)
}

// Collect moves a buyer's payment into the marketplace vault.
func (e *Engine) Collect(from common.Address, amount *uint256.Int) error {
	if from == e.vault {
		return ErrVaultAccount
	}
	return e.transfer(from, e.vault, amount, ReasonCollect)
}

// Release pays amount out of the vault to a seller withdrawing proceeds.
func (e *Engine) Release(to common.Address, amount *uint256.Int) error {
	if to == e.vault {
		return fmt.Errorf("bank: release to %s: %w", to.Hex(), ErrVaultAccount)
	}
	if err := e.transfer(e.vault, to, amount, ReasonRelease); err != nil {
		return fmt.Errorf("bank: release to %s: %w", to.Hex(), err)
	}
	return nil
}

func (e *Engine) transfer(from, to common.Address, amount *uint256.Int, reason string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrInvalidAddress
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if from == to {
		balance, err := e.Balance(from)
		if err != nil {
			return err
		}
		if balance.Lt(amount) {
			return ErrInsufficientFunds
		}
		return nil
	}
	if err := e.debit(from, amount); err != nil {
		return err
	}
	if err := e.credit(to, amount); err != nil {
		return err
	}
	e.emitter.Emit(events.Transfer{From: from, To: to, Amount: new(uint256.Int).Set(amount), Reason: reason})
	return nil
}
