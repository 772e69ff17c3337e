package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/core/types"
)

const (
	TypeItemListed         = "marketplace.item_listed"
	TypeItemListingUpdated = "marketplace.item_listing_updated"
	TypeItemCancelled      = "marketplace.item_cancelled"
	TypeItemBought         = "marketplace.item_bought"
	TypeProceedsWithdrawn  = "marketplace.proceeds_withdrawn"
)

type ItemListed struct {
	Seller   common.Address
	Contract common.Address
	TokenID  *uint256.Int
	Price    *uint256.Int
}

func (ItemListed) EventType() string { return TypeItemListed }

func (e ItemListed) Event() *types.Event {
	return &types.Event{
		Type: TypeItemListed,
		Attributes: map[string]string{
			"seller":   formatAddress(e.Seller),
			"contract": formatAddress(e.Contract),
			"tokenId":  formatAmount(e.TokenID),
			"price":    formatAmount(e.Price),
		},
	}
}

type ItemListingUpdated struct {
	Seller   common.Address
	Contract common.Address
	TokenID  *uint256.Int
	NewPrice *uint256.Int
}

func (ItemListingUpdated) EventType() string { return TypeItemListingUpdated }

func (e ItemListingUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeItemListingUpdated,
		Attributes: map[string]string{
			"seller":   formatAddress(e.Seller),
			"contract": formatAddress(e.Contract),
			"tokenId":  formatAmount(e.TokenID),
			"newPrice": formatAmount(e.NewPrice),
		},
	}
}

type ItemCancelled struct {
	Seller   common.Address
	Contract common.Address
	TokenID  *uint256.Int
}

func (ItemCancelled) EventType() string { return TypeItemCancelled }

func (e ItemCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeItemCancelled,
		Attributes: map[string]string{
			"seller":   formatAddress(e.Seller),
			"contract": formatAddress(e.Contract),
			"tokenId":  formatAmount(e.TokenID),
		},
	}
}

// ItemBought reports the listing price. Payment above the price is visible
// through the seller's proceeds, not through this event.
type ItemBought struct {
	Buyer    common.Address
	Seller   common.Address
	Contract common.Address
	TokenID  *uint256.Int
	Price    *uint256.Int
}

func (ItemBought) EventType() string { return TypeItemBought }

func (e ItemBought) Event() *types.Event {
	return &types.Event{
		Type: TypeItemBought,
		Attributes: map[string]string{
			"buyer":    formatAddress(e.Buyer),
			"seller":   formatAddress(e.Seller),
			"contract": formatAddress(e.Contract),
			"tokenId":  formatAmount(e.TokenID),
			"price":    formatAmount(e.Price),
		},
	}
}

type ProceedsWithdrawn struct {
	Seller common.Address
	Amount *uint256.Int
}

func (ProceedsWithdrawn) EventType() string { return TypeProceedsWithdrawn }

func (e ProceedsWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeProceedsWithdrawn,
		Attributes: map[string]string{
			"seller": formatAddress(e.Seller),
			"amount": formatAmount(e.Amount),
		},
	}
}
