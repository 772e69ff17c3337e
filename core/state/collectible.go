package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/native/collectible"
)

type storedCollection struct {
	Creator      common.Address
	Name         string
	Symbol       string
	TokenURI     string
	TokenCounter uint64
}

type storedToken struct {
	Owner    common.Address
	Approved common.Address
}

type storedCounter struct {
	Value uint64
}

func collectibleTokenKey(contract common.Address, tokenID *uint256.Int) []byte {
	id := tokenIDBytes(tokenID)
	return prefixedKey(collectibleTokenPrefix, contract.Bytes(), id[:])
}

func (m *Manager) CollectibleCollection(addr common.Address) (*collectible.Collection, bool, error) {
	var stored storedCollection
	ok, err := m.KVGet(prefixedKey(collectibleCollectionPrefix, addr.Bytes()), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &collectible.Collection{
		Address:      addr,
		Creator:      stored.Creator,
		Name:         stored.Name,
		Symbol:       stored.Symbol,
		TokenURI:     stored.TokenURI,
		TokenCounter: stored.TokenCounter,
	}, true, nil
}

func (m *Manager) PutCollectibleCollection(c *collectible.Collection) error {
	return m.KVPut(prefixedKey(collectibleCollectionPrefix, c.Address.Bytes()), storedCollection{
		Creator:      c.Creator,
		Name:         c.Name,
		Symbol:       c.Symbol,
		TokenURI:     c.TokenURI,
		TokenCounter: c.TokenCounter,
	})
}

func (m *Manager) CollectibleToken(contract common.Address, tokenID *uint256.Int) (*collectible.Token, bool, error) {
	var stored storedToken
	ok, err := m.KVGet(collectibleTokenKey(contract, tokenID), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &collectible.Token{Owner: stored.Owner, Approved: stored.Approved}, true, nil
}

func (m *Manager) PutCollectibleToken(contract common.Address, tokenID *uint256.Int, token *collectible.Token) error {
	return m.KVPut(collectibleTokenKey(contract, tokenID), storedToken{Owner: token.Owner, Approved: token.Approved})
}

func (m *Manager) CollectibleOperator(contract, owner, operator common.Address) (bool, error) {
	var stored storedCounter
	ok, err := m.KVGet(prefixedKey(collectibleOperatorPrefix, contract.Bytes(), owner.Bytes(), operator.Bytes()), &stored)
	if err != nil || !ok {
		return false, err
	}
	return stored.Value == 1, nil
}

func (m *Manager) PutCollectibleOperator(contract, owner, operator common.Address, approved bool) error {
	key := prefixedKey(collectibleOperatorPrefix, contract.Bytes(), owner.Bytes(), operator.Bytes())
	if !approved {
		return m.KVDelete(key)
	}
	return m.KVPut(key, storedCounter{Value: 1})
}

func (m *Manager) CollectibleBalance(contract, owner common.Address) (uint64, error) {
	return m.counter(prefixedKey(collectibleBalancePrefix, contract.Bytes(), owner.Bytes()))
}

func (m *Manager) PutCollectibleBalance(contract, owner common.Address, balance uint64) error {
	return m.putCounter(prefixedKey(collectibleBalancePrefix, contract.Bytes(), owner.Bytes()), balance)
}

func (m *Manager) CollectibleNonce(creator common.Address) (uint64, error) {
	return m.counter(prefixedKey(collectibleNoncePrefix, creator.Bytes()))
}

func (m *Manager) PutCollectibleNonce(creator common.Address, nonce uint64) error {
	return m.putCounter(prefixedKey(collectibleNoncePrefix, creator.Bytes()), nonce)
}

func (m *Manager) counter(key []byte) (uint64, error) {
	var stored storedCounter
	if _, err := m.KVGet(key, &stored); err != nil {
		return 0, err
	}
	return stored.Value, nil
}

func (m *Manager) putCounter(key []byte, value uint64) error {
	if value == 0 {
		return m.KVDelete(key)
	}
	return m.KVPut(key, storedCounter{Value: value})
}

