package marketplace

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ModuleName identifies the marketplace for pause control and metrics.
const ModuleName = "marketplace"

// Listing is an active sale offer for a single asset. A listing only exists
// while Price is strictly positive; the zero value means "not listed".
type Listing struct {
	Seller common.Address
	Price  *uint256.Int
}

// Active reports whether the listing represents a live offer.
func (l *Listing) Active() bool {
	return l != nil && l.Price != nil && !l.Price.IsZero()
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := &Listing{Seller: l.Seller, Price: new(uint256.Int)}
	if l.Price != nil {
		clone.Price.Set(l.Price)
	}
	return clone
}

// AssetKey is the composite identifier of a listed asset.
type AssetKey struct {
	Contract common.Address
	TokenID  *uint256.Int
}

// NewAssetKey builds a key, treating a nil token id as zero.
func NewAssetKey(contract common.Address, tokenID *uint256.Int) AssetKey {
	id := new(uint256.Int)
	if tokenID != nil {
		id.Set(tokenID)
	}
	return AssetKey{Contract: contract, TokenID: id}
}

// String renders the key as "<contract>/<tokenId>".
func (k AssetKey) String() string {
	id := "0"
	if k.TokenID != nil {
		id = k.TokenID.Dec()
	}
	return k.Contract.Hex() + "/" + id
}

func amountOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
