package state

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/native/marketplace"
	"nftmarket/storage"
)

type failingBatchDB struct {
	*storage.MemDB
}

type failingBatch struct {
	storage.Batch
}

func (f failingBatch) Write() error { return errors.New("disk full") }

func (f failingBatchDB) NewBatch() storage.Batch {
	return failingBatch{Batch: f.MemDB.NewBatch()}
}

func TestManagerKVRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	type record struct {
		Name  string
		Count uint64
	}
	if err := mgr.KVPut([]byte("rec"), record{Name: "dog", Count: 3}); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out record
	ok, err := mgr.KVGet([]byte("rec"), &out)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if out.Name != "dog" || out.Count != 3 {
		t.Fatalf("unexpected record %+v", out)
	}
	if db.Len() != 0 {
		t.Fatalf("write reached storage before commit")
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if db.Len() != 1 {
		t.Fatalf("expected one stored key, got %d", db.Len())
	}

	fresh := NewManager(db)
	ok, err = fresh.KVGet([]byte("rec"), &out)
	if err != nil || !ok {
		t.Fatalf("committed value missing: ok=%v err=%v", ok, err)
	}
	if _, err := mgr.KVGet(nil, &out); err == nil {
		t.Fatalf("expected empty key error")
	}
}

func TestManagerSnapshotRevert(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	seller := common.HexToAddress("0x1111111111111111111111111111111111111111")

	if err := mgr.PutMarketplaceProceeds(seller, uint256.NewInt(10)); err != nil {
		t.Fatalf("put: %v", err)
	}
	snap := mgr.Snapshot()
	if err := mgr.PutMarketplaceProceeds(seller, uint256.NewInt(99)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mgr.KVPut([]byte("other"), uint64(1)); err != nil {
		t.Fatalf("put other: %v", err)
	}
	if err := mgr.RevertToSnapshot(snap); err != nil {
		t.Fatalf("revert: %v", err)
	}
	got, err := mgr.MarketplaceProceeds(seller)
	if err != nil {
		t.Fatalf("proceeds: %v", err)
	}
	if got.Uint64() != 10 {
		t.Fatalf("expected reverted balance 10, got %s", got)
	}
	if ok, _ := mgr.KVGet([]byte("other"), nil); ok {
		t.Fatalf("write after snapshot survived revert")
	}
	if err := mgr.RevertToSnapshot(snap + 5); err == nil {
		t.Fatalf("expected invalid snapshot error")
	}
}

func TestManagerDiscardDropsPending(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	if err := mgr.KVPut([]byte("k"), uint64(7)); err != nil {
		t.Fatalf("put: %v", err)
	}
	mgr.Discard()
	if mgr.Pending() != 0 {
		t.Fatalf("pending writes after discard: %d", mgr.Pending())
	}
	if ok, _ := mgr.KVGet([]byte("k"), nil); ok {
		t.Fatalf("discarded write still visible")
	}
}

func TestManagerCommitFailureKeepsPending(t *testing.T) {
	db := failingBatchDB{MemDB: storage.NewMemDB()}
	mgr := NewManager(db)
	if err := mgr.KVPut([]byte("k"), uint64(7)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mgr.Commit(); err == nil {
		t.Fatalf("expected commit failure")
	}
	if mgr.Pending() != 1 {
		t.Fatalf("expected pending write to survive failed commit")
	}
	if db.Len() != 0 {
		t.Fatalf("failed commit leaked into storage")
	}
}

func TestManagerDeleteCommitted(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	contract := common.HexToAddress("0xC0C0C0C0C0C0C0C0C0C0C0C0C0C0C0C0C0C0C0C0")
	seller := common.HexToAddress("0x1111111111111111111111111111111111111111")
	id := uint256.NewInt(4)

	if err := mgr.PutMarketplaceListing(contract, id, &marketplace.Listing{Seller: seller, Price: uint256.NewInt(100)}); err != nil {
		t.Fatalf("put listing: %v", err)
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := mgr.DeleteMarketplaceListing(contract, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := mgr.MarketplaceListing(contract, id); ok {
		t.Fatalf("deleted listing visible before commit")
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit delete: %v", err)
	}
	if db.Len() != 0 {
		t.Fatalf("expected empty store, got %d keys", db.Len())
	}
}
