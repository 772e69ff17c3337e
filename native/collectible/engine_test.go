package collectible

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"nftmarket/core/events"
)

const dogURI = "ipfs://bafybeig37ioir76s7mg5oobetncojcm3c3hxasyd4rvid4jqhy4gkaheg4/?filename=0-PUG.json"

type operatorKey struct {
	contract, owner, operator common.Address
}

type balanceKey struct {
	contract, owner common.Address
}

type mockState struct {
	collections map[common.Address]*Collection
	tokens      map[string]*Token
	operators   map[operatorKey]bool
	balances    map[balanceKey]uint64
	nonces      map[common.Address]uint64
}

func newMockState() *mockState {
	return &mockState{
		collections: make(map[common.Address]*Collection),
		tokens:      make(map[string]*Token),
		operators:   make(map[operatorKey]bool),
		balances:    make(map[balanceKey]uint64),
		nonces:      make(map[common.Address]uint64),
	}
}

func tokenKey(contract common.Address, id *uint256.Int) string {
	return contract.Hex() + "/" + id.Dec()
}

func (m *mockState) CollectibleCollection(addr common.Address) (*Collection, bool, error) {
	c, ok := m.collections[addr]
	if !ok {
		return nil, false, nil
	}
	return c.Clone(), true, nil
}

func (m *mockState) PutCollectibleCollection(c *Collection) error {
	m.collections[c.Address] = c.Clone()
	return nil
}

func (m *mockState) CollectibleToken(contract common.Address, id *uint256.Int) (*Token, bool, error) {
	t, ok := m.tokens[tokenKey(contract, id)]
	if !ok {
		return nil, false, nil
	}
	return t.Clone(), true, nil
}

func (m *mockState) PutCollectibleToken(contract common.Address, id *uint256.Int, t *Token) error {
	m.tokens[tokenKey(contract, id)] = t.Clone()
	return nil
}

func (m *mockState) CollectibleOperator(contract, owner, operator common.Address) (bool, error) {
	return m.operators[operatorKey{contract, owner, operator}], nil
}

func (m *mockState) PutCollectibleOperator(contract, owner, operator common.Address, approved bool) error {
	m.operators[operatorKey{contract, owner, operator}] = approved
	return nil
}

func (m *mockState) CollectibleBalance(contract, owner common.Address) (uint64, error) {
	return m.balances[balanceKey{contract, owner}], nil
}

func (m *mockState) PutCollectibleBalance(contract, owner common.Address, balance uint64) error {
	m.balances[balanceKey{contract, owner}] = balance
	return nil
}

func (m *mockState) CollectibleNonce(creator common.Address) (uint64, error) {
	return m.nonces[creator], nil
}

func (m *mockState) PutCollectibleNonce(creator common.Address, nonce uint64) error {
	m.nonces[creator] = nonce
	return nil
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func newTestAddress(fill byte) common.Address {
	return common.BytesToAddress(bytes.Repeat([]byte{fill}, 20))
}

func newTestEngine(t *testing.T) (*Engine, *captureEmitter, *Collection) {
	t.Helper()
	engine := NewEngine()
	engine.SetState(newMockState())
	emitter := &captureEmitter{}
	engine.SetEmitter(emitter)
	col, err := engine.RegisterCollection("Dogie", "DOG", dogURI, newTestAddress(0x0D))
	if err != nil {
		t.Fatalf("register collection: %v", err)
	}
	return engine, emitter, col
}

func TestRegisterCollectionDerivesAddress(t *testing.T) {
	engine, _, col := newTestEngine(t)
	creator := newTestAddress(0x0D)
	if col.Address != crypto.CreateAddress(creator, 0) {
		t.Fatalf("unexpected collection address %s", col.Address.Hex())
	}
	second, err := engine.RegisterCollection("Dogie", "DOG", dogURI, creator)
	if err != nil {
		t.Fatalf("register second: %v", err)
	}
	if second.Address == col.Address {
		t.Fatalf("second collection reused address")
	}
	if _, err := engine.RegisterCollection("  ", "DOG", dogURI, creator); !errors.Is(err, ErrInvalidCollection) {
		t.Fatalf("expected invalid collection, got %v", err)
	}
}

func TestRegisterCollectionNormalisesText(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	col, err := engine.RegisterCollection(" Ｄｏｇｉｅ ", "ＤＯＧ", dogURI, newTestAddress(0x0E))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if col.Name != "Dogie" || col.Symbol != "DOG" {
		t.Fatalf("text not normalised: %q %q", col.Name, col.Symbol)
	}
	if _, err := engine.RegisterCollection("Dogie", "\u3000", dogURI, newTestAddress(0x0E)); !errors.Is(err, ErrInvalidCollection) {
		t.Fatalf("ideographic space symbol should be rejected, got %v", err)
	}
}

func TestMintAssignsSequentialIDs(t *testing.T) {
	engine, emitter, col := newTestEngine(t)
	owner := newTestAddress(0x11)

	counter, err := engine.TokenCounter(col.Address)
	if err != nil || counter != 0 {
		t.Fatalf("initial counter %d err %v", counter, err)
	}
	for want := uint64(0); want < 3; want++ {
		id, err := engine.Mint(col.Address, owner)
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		if id.Uint64() != want {
			t.Fatalf("expected id %d, got %s", want, id)
		}
	}
	counter, _ = engine.TokenCounter(col.Address)
	if counter != 3 {
		t.Fatalf("expected counter 3, got %d", counter)
	}
	balance, _ := engine.BalanceOf(col.Address, owner)
	if balance != 3 {
		t.Fatalf("expected balance 3, got %d", balance)
	}
	uri, err := engine.TokenURI(col.Address, uint256.NewInt(0))
	if err != nil || uri != dogURI {
		t.Fatalf("unexpected token uri %q err %v", uri, err)
	}
	mint, ok := emitter.events[len(emitter.events)-1].(events.TokenTransfer)
	if !ok || mint.From != (common.Address{}) || mint.To != owner {
		t.Fatalf("unexpected mint event %#v", emitter.events[len(emitter.events)-1])
	}
}

func TestOwnerOfUnknownToken(t *testing.T) {
	engine, _, col := newTestEngine(t)
	if _, err := engine.OwnerOf(col.Address, uint256.NewInt(0)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if _, err := engine.Mint(newTestAddress(0x99), newTestAddress(0x11)); !errors.Is(err, ErrUnknownCollection) {
		t.Fatalf("expected unknown collection, got %v", err)
	}
}

func TestApproveAndTransfer(t *testing.T) {
	engine, _, col := newTestEngine(t)
	owner := newTestAddress(0x11)
	spender := newTestAddress(0x22)
	recipient := newTestAddress(0x33)
	id, err := engine.Mint(col.Address, owner)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := engine.TransferFrom(col.Address, id, spender, owner, recipient); !errors.Is(err, ErrNotOwnerOrApproved) {
		t.Fatalf("expected unauthorised transfer to fail, got %v", err)
	}
	if err := engine.Approve(col.Address, id, spender, spender); !errors.Is(err, ErrNotOwnerOrApproved) {
		t.Fatalf("non-owner approve should fail, got %v", err)
	}
	if err := engine.Approve(col.Address, id, owner, owner); !errors.Is(err, ErrApproveToOwner) {
		t.Fatalf("expected approve to owner error, got %v", err)
	}
	if err := engine.Approve(col.Address, id, owner, spender); err != nil {
		t.Fatalf("approve: %v", err)
	}
	approved, _ := engine.GetApproved(col.Address, id)
	if approved != spender {
		t.Fatalf("unexpected approval %s", approved.Hex())
	}
	if err := engine.TransferFrom(col.Address, id, spender, recipient, spender); !errors.Is(err, ErrIncorrectOwner) {
		t.Fatalf("expected incorrect owner, got %v", err)
	}
	if err := engine.TransferFrom(col.Address, id, spender, owner, recipient); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	newOwner, _ := engine.OwnerOf(col.Address, id)
	if newOwner != recipient {
		t.Fatalf("owner not updated: %s", newOwner.Hex())
	}
	approved, _ = engine.GetApproved(col.Address, id)
	if approved != (common.Address{}) {
		t.Fatalf("approval not cleared on transfer")
	}
	if bal, _ := engine.BalanceOf(col.Address, owner); bal != 0 {
		t.Fatalf("sender balance %d", bal)
	}
	if bal, _ := engine.BalanceOf(col.Address, recipient); bal != 1 {
		t.Fatalf("recipient balance %d", bal)
	}
}

func TestOperatorApproval(t *testing.T) {
	engine, _, col := newTestEngine(t)
	owner := newTestAddress(0x11)
	operator := newTestAddress(0x44)
	id, _ := engine.Mint(col.Address, owner)

	if err := engine.SetApprovalForAll(col.Address, owner, owner, true); !errors.Is(err, ErrApproveToCaller) {
		t.Fatalf("expected approve to caller, got %v", err)
	}
	if err := engine.SetApprovalForAll(col.Address, owner, operator, true); err != nil {
		t.Fatalf("set approval for all: %v", err)
	}
	ok, _ := engine.IsApprovedForAll(col.Address, owner, operator)
	if !ok {
		t.Fatalf("operator approval not stored")
	}
	// Operators may grant single-token approvals on the owner's behalf.
	if err := engine.Approve(col.Address, id, operator, newTestAddress(0x55)); err != nil {
		t.Fatalf("operator approve: %v", err)
	}
	if err := engine.TransferFrom(col.Address, id, operator, owner, operator); err != nil {
		t.Fatalf("operator transfer: %v", err)
	}
}

func TestRegistryAdapter(t *testing.T) {
	engine, _, col := newTestEngine(t)
	owner := newTestAddress(0x11)
	buyer := newTestAddress(0x22)
	marketplace := newTestAddress(0xEE)
	registry := NewRegistry(engine, marketplace)
	id, _ := engine.Mint(col.Address, owner)

	ok, err := registry.IsApprovedForTransfer(col.Address, id, marketplace)
	if err != nil || ok {
		t.Fatalf("unexpected approval before approve: ok=%v err=%v", ok, err)
	}
	if err := registry.Transfer(col.Address, id, owner, buyer); !errors.Is(err, ErrNotOwnerOrApproved) {
		t.Fatalf("unapproved registry transfer should fail, got %v", err)
	}
	if err := engine.Approve(col.Address, id, owner, marketplace); err != nil {
		t.Fatalf("approve marketplace: %v", err)
	}
	ok, _ = registry.IsApprovedForTransfer(col.Address, id, marketplace)
	if !ok {
		t.Fatalf("marketplace approval not visible")
	}
	if err := registry.Transfer(col.Address, id, owner, buyer); err != nil {
		t.Fatalf("registry transfer: %v", err)
	}
	got, _ := registry.OwnerOf(col.Address, id)
	if got != buyer {
		t.Fatalf("unexpected owner %s", got.Hex())
	}
}
