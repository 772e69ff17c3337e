package state

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	marketplaceListingPrefix  = []byte("marketplace/listing/")
	marketplaceProceedsPrefix = []byte("marketplace/proceeds/")

	collectibleCollectionPrefix = []byte("collectible/collection/")
	collectibleTokenPrefix      = []byte("collectible/token/")
	collectibleOperatorPrefix   = []byte("collectible/operator/")
	collectibleBalancePrefix    = []byte("collectible/balance/")
	collectibleNoncePrefix      = []byte("collectible/nonce/")

	bankBalancePrefix = []byte("bank/balance/")
	pausePrefix       = []byte("admin/paused/")
)

// prefixedKey joins the prefix with the keccak hash of the concatenated
// parts, keeping every composite key at a fixed length.
func prefixedKey(prefix []byte, parts ...[]byte) []byte {
	digest := ethcrypto.Keccak256(parts...)
	buf := make([]byte, len(prefix)+len(digest))
	copy(buf, prefix)
	copy(buf[len(prefix):], digest)
	return buf
}
