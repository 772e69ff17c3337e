package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/native/marketplace"
)

type storedListing struct {
	Seller common.Address
	Price  *big.Int
}

type storedAmount struct {
	Amount *big.Int
}

func marketplaceListingKey(contract common.Address, tokenID *uint256.Int) []byte {
	id := tokenIDBytes(tokenID)
	return prefixedKey(marketplaceListingPrefix, contract.Bytes(), id[:])
}

func marketplaceProceedsKey(addr common.Address) []byte {
	return prefixedKey(marketplaceProceedsPrefix, addr.Bytes())
}

func tokenIDBytes(tokenID *uint256.Int) [32]byte {
	if tokenID == nil {
		return [32]byte{}
	}
	return tokenID.Bytes32()
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("state: stored amount %s exceeds 256 bits", v)
	}
	return out, nil
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

// MarketplaceListing loads the listing stored for the asset.
func (m *Manager) MarketplaceListing(contract common.Address, tokenID *uint256.Int) (*marketplace.Listing, bool, error) {
	var stored storedListing
	ok, err := m.KVGet(marketplaceListingKey(contract, tokenID), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	price, err := toUint256(stored.Price)
	if err != nil {
		return nil, false, err
	}
	return &marketplace.Listing{Seller: stored.Seller, Price: price}, true, nil
}

// PutMarketplaceListing stores the listing. An inactive listing removes the
// entry so absence and a zero price never coexist.
func (m *Manager) PutMarketplaceListing(contract common.Address, tokenID *uint256.Int, listing *marketplace.Listing) error {
	if !listing.Active() {
		return m.DeleteMarketplaceListing(contract, tokenID)
	}
	return m.KVPut(marketplaceListingKey(contract, tokenID), storedListing{
		Seller: listing.Seller,
		Price:  toBig(listing.Price),
	})
}

// DeleteMarketplaceListing removes the listing for the asset.
func (m *Manager) DeleteMarketplaceListing(contract common.Address, tokenID *uint256.Int) error {
	return m.KVDelete(marketplaceListingKey(contract, tokenID))
}

// MarketplaceProceeds returns the withdrawable balance of addr, zero when
// nothing is recorded.
func (m *Manager) MarketplaceProceeds(addr common.Address) (*uint256.Int, error) {
	return m.amount(marketplaceProceedsKey(addr))
}

// PutMarketplaceProceeds records the balance. A zero balance deletes the key.
func (m *Manager) PutMarketplaceProceeds(addr common.Address, amount *uint256.Int) error {
	return m.putAmount(marketplaceProceedsKey(addr), amount)
}

func (m *Manager) amount(key []byte) (*uint256.Int, error) {
	var stored storedAmount
	ok, err := m.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return toUint256(stored.Amount)
}

func (m *Manager) putAmount(key []byte, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return m.KVDelete(key)
	}
	return m.KVPut(key, storedAmount{Amount: amount.ToBig()})
}
