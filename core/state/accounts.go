package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BankBalance returns the payment account balance of addr.
func (m *Manager) BankBalance(addr common.Address) (*uint256.Int, error) {
	return m.amount(prefixedKey(bankBalancePrefix, addr.Bytes()))
}

// PutBankBalance stores the payment account balance of addr.
func (m *Manager) PutBankBalance(addr common.Address, amount *uint256.Int) error {
	return m.putAmount(prefixedKey(bankBalancePrefix, addr.Bytes()), amount)
}
