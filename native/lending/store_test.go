package lending

import (
	"testing"

	"github.com/holiman/uint256"

	"nftlend/storage"
)

func TestStorePersistsCommittedRecords(t *testing.T) {
	f := newFixture(t)
	store := NewStore(storage.NewMemDB())
	f.registry.SetStore(store)

	pool := f.createPool(defaultPoolParams())
	f.deposit(pool, 10_000)
	loan := f.borrow(pool, 30, 1_000, 1)

	registry, ok, err := store.GetRegistry()
	if err != nil || !ok {
		t.Fatalf("registry record missing: %v", err)
	}
	if registry.Owner != protocolOwner || registry.LastPoolID != 1 || registry.ClaimRegistry != claimsAddr {
		t.Fatalf("unexpected registry record %+v", registry)
	}
	if registry.FloorPriceStaleness != DefaultFloorPriceStaleness || registry.AssetPriceStaleness != DefaultAssetPriceStaleness {
		t.Fatalf("unexpected staleness windows %+v", registry)
	}

	record, ok, err := store.GetPool(pool.ID())
	if err != nil || !ok {
		t.Fatalf("basket record missing: %v", err)
	}
	if record.Address != pool.Address() || record.Liquidity.Uint64() != 9_000 || record.LastLoanID != 1 {
		t.Fatalf("unexpected basket record %+v", record)
	}
	if len(record.Tiers) != 1 || record.Tiers[0] != (InterestTier{Duration: 30, Rate: 2, Enabled: true}) {
		t.Fatalf("unexpected tiers %+v", record.Tiers)
	}

	stored, ok, err := store.GetLoan(pool.ID(), loan.ID)
	if err != nil || !ok {
		t.Fatalf("loan record missing: %v", err)
	}
	if stored.Principal.Uint64() != 1_000 || stored.InterestAmount.Uint64() != 20 || stored.Status != LoanStatusActive {
		t.Fatalf("unexpected loan record %+v", stored)
	}
	if !stored.CollateralTokenID.Eq(uint256.NewInt(1)) || stored.LenderClaimID != loan.LenderClaimID {
		t.Fatalf("unexpected loan identifiers %+v", stored)
	}

	fees, err := store.GetFees(tokenAddr)
	if err != nil || fees.Uint64() != 20 {
		t.Fatalf("expected 20 in fees, got %s %v", fees, err)
	}
}

func TestStoreSkipsRejectedOperations(t *testing.T) {
	f := newFixture(t)
	store := NewStore(storage.NewMemDB())
	f.registry.SetStore(store)
	pool := f.createPool(defaultPoolParams())

	if _, err := pool.CreateLoan(borrowerAddr, 30, uint256.NewInt(10), f.collateral(pool, 1)); err == nil {
		t.Fatalf("expected liquidity failure")
	}
	if _, ok, err := store.GetLoan(pool.ID(), 1); err != nil || ok {
		t.Fatalf("rejected loan must not be persisted: ok=%v err=%v", ok, err)
	}
	fees, err := store.GetFees(tokenAddr)
	if err != nil || !fees.IsZero() {
		t.Fatalf("expected no fees, got %s %v", fees, err)
	}
}

func TestStoreRequiresDatabase(t *testing.T) {
	var store *Store
	if err := store.PutFees(tokenAddr, uint256.NewInt(1)); err == nil {
		t.Fatalf("expected error from nil store")
	}
	if _, _, err := NewStore(nil).GetPool(1); err == nil {
		t.Fatalf("expected error without database")
	}
}
