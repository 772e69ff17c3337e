package marketplace

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/core/events"
)

func (e *Engine) credit(seller common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	current, err := e.state.MarketplaceProceeds(seller)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(amountOrZero(current), amount)
	if overflow {
		return ErrBalanceOverflow
	}
	return e.state.PutMarketplaceProceeds(seller, next)
}

// Withdraw pays the caller's whole proceeds balance through the configured
// releaser. The balance is zeroed before the release is attempted and
// restored if the release fails.
func (e *Engine) Withdraw(caller common.Address) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.releaser == nil {
		return nil, errNilReleaser
	}
	balance, err := e.state.MarketplaceProceeds(caller)
	if err != nil {
		return nil, err
	}
	if balance == nil || balance.IsZero() {
		return nil, ErrNothingToWithdraw
	}
	amount := amountOrZero(balance)

	snap := e.state.Snapshot()
	dropEvents := e.checkpoint()
	if err := e.state.PutMarketplaceProceeds(caller, new(uint256.Int)); err != nil {
		return nil, err
	}
	if err := e.releaser.Release(caller, amountOrZero(amount)); err != nil {
		dropEvents()
		if revertErr := e.state.RevertToSnapshot(snap); revertErr != nil {
			return nil, fmt.Errorf("%w: %v (revert failed: %v)", ErrReleaseFailed, err, revertErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrReleaseFailed, err)
	}
	e.emit(events.ProceedsWithdrawn{Seller: caller, Amount: amountOrZero(amount)})
	return amount, nil
}

// GetProceeds returns the withdrawable balance of addr, zero when none.
func (e *Engine) GetProceeds(addr common.Address) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	balance, err := e.state.MarketplaceProceeds(addr)
	if err != nil {
		return nil, err
	}
	return amountOrZero(balance), nil
}
