package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/core/types"
)

const (
	TypeCollectionRegistered = "collectible.collection_registered"
	TypeTokenTransfer        = "collectible.transfer"
	TypeTokenApproval        = "collectible.approval"
	TypeApprovalForAll       = "collectible.approval_for_all"
)

type CollectionRegistered struct {
	Contract common.Address
	Creator  common.Address
	Name     string
	Symbol   string
}

func (CollectionRegistered) EventType() string { return TypeCollectionRegistered }

func (e CollectionRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypeCollectionRegistered,
		Attributes: map[string]string{
			"contract": formatAddress(e.Contract),
			"creator":  formatAddress(e.Creator),
			"name":     e.Name,
			"symbol":   e.Symbol,
		},
	}
}

// TokenTransfer mirrors the ERC-721 Transfer log. A mint has a zero From.
type TokenTransfer struct {
	Contract common.Address
	From     common.Address
	To       common.Address
	TokenID  *uint256.Int
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenTransfer,
		Attributes: map[string]string{
			"contract": formatAddress(e.Contract),
			"from":     formatAddress(e.From),
			"to":       formatAddress(e.To),
			"tokenId":  formatAmount(e.TokenID),
		},
	}
}

type TokenApproval struct {
	Contract common.Address
	Owner    common.Address
	Approved common.Address
	TokenID  *uint256.Int
}

func (TokenApproval) EventType() string { return TypeTokenApproval }

func (e TokenApproval) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenApproval,
		Attributes: map[string]string{
			"contract": formatAddress(e.Contract),
			"owner":    formatAddress(e.Owner),
			"approved": formatAddress(e.Approved),
			"tokenId":  formatAmount(e.TokenID),
		},
	}
}

type ApprovalForAll struct {
	Contract common.Address
	Owner    common.Address
	Operator common.Address
	Approved bool
}

func (ApprovalForAll) EventType() string { return TypeApprovalForAll }

func (e ApprovalForAll) Event() *types.Event {
	approved := "false"
	if e.Approved {
		approved = "true"
	}
	return &types.Event{
		Type: TypeApprovalForAll,
		Attributes: map[string]string{
			"contract": formatAddress(e.Contract),
			"owner":    formatAddress(e.Owner),
			"operator": formatAddress(e.Operator),
			"approved": approved,
		},
	}
}
