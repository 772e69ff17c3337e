package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/core/types"
)

const (
	// TypeTransfer is emitted for every payment account balance movement,
	// including deposits (zero From) and vault collections/releases.
	TypeTransfer = "bank.transfer"
)

type Transfer struct {
	From   common.Address
	To     common.Address
	Amount *uint256.Int
	Reason string
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{
		"from":   formatAddress(e.From),
		"to":     formatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}
	if e.Reason != "" {
		attrs["reason"] = e.Reason
	}
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}
