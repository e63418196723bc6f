package claims

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"nftlend/core/events"
)

var (
	registryAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	poolAddr     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	otherPool    = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	alice        = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	bob          = common.HexToAddress("0x00000000000000000000000000000000000000c2")
)

func newAgreement(t *testing.T) *Agreement {
	t.Helper()
	a := NewAgreement(common.HexToAddress("0x00000000000000000000000000000000000000ee"), registryAddr)
	if err := a.AddToWhitelist(registryAddr, poolAddr); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	return a
}

func TestAddToWhitelistOnlyRegistry(t *testing.T) {
	a := NewAgreement(common.Address{0xee}, registryAddr)
	if err := a.AddToWhitelist(alice, poolAddr); !errors.Is(err, ErrNotRegistry) {
		t.Fatalf("expected ErrNotRegistry, got %v", err)
	}
	if a.AllowedToMint(poolAddr) {
		t.Fatalf("pool must not be allowed after rejected whitelist")
	}
	if err := a.AddToWhitelist(registryAddr, poolAddr); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	if !a.AllowedToMint(poolAddr) {
		t.Fatalf("expected pool to be allowed")
	}
}

func TestMintSequenceAndRoles(t *testing.T) {
	a := newAgreement(t)
	rec := &events.Recorder{}
	a.SetEmitter(rec)

	if err := a.MintLender(otherPool, alice, 1, nil); !errors.Is(err, ErrNotAllowedToMint) {
		t.Fatalf("expected ErrNotAllowedToMint, got %v", err)
	}
	if err := a.MintLender(poolAddr, alice, 2, nil); !errors.Is(err, ErrUnexpectedClaimID) {
		t.Fatalf("expected ErrUnexpectedClaimID, got %v", err)
	}
	if err := a.MintLender(poolAddr, alice, a.NextID(), nil); err != nil {
		t.Fatalf("mint lender: %v", err)
	}
	if err := a.MintBorrower(poolAddr, bob, a.NextID(), nil); err != nil {
		t.Fatalf("mint borrower: %v", err)
	}
	if a.NextID() != 3 {
		t.Fatalf("expected next id 3, got %d", a.NextID())
	}
	lender, err := a.Claim(1)
	if err != nil || lender.Role != RoleLender || lender.Owner != alice || lender.Pool != poolAddr {
		t.Fatalf("unexpected lender claim %+v err=%v", lender, err)
	}
	borrower, err := a.Claim(2)
	if err != nil || borrower.Role != RoleBorrower || borrower.Owner != bob {
		t.Fatalf("unexpected borrower claim %+v err=%v", borrower, err)
	}
	if got := len(rec.OfType(EventTypeClaimMinted)); got != 2 {
		t.Fatalf("expected 2 mint events, got %d", got)
	}
}

func TestTransferMovesAuthority(t *testing.T) {
	a := newAgreement(t)
	if err := a.MintBorrower(poolAddr, alice, 1, nil); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := a.Transfer(bob, bob, 1); !errors.Is(err, ErrNotOwnerOrApproved) {
		t.Fatalf("expected ErrNotOwnerOrApproved, got %v", err)
	}
	if err := a.Approve(alice, bob, 1); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := a.Transfer(bob, bob, 1); err != nil {
		t.Fatalf("approved transfer: %v", err)
	}
	owner, err := a.OwnerOf(1)
	if err != nil || owner != bob {
		t.Fatalf("expected bob to own claim, got %s err=%v", owner.Hex(), err)
	}
	if claims := a.ClaimsOf(bob); len(claims) != 1 || claims[0].Approved != (common.Address{}) {
		t.Fatalf("expected approval cleared after transfer: %+v", claims)
	}
}

func TestBurnRestrictedToMintingPool(t *testing.T) {
	a := newAgreement(t)
	if err := a.AddToWhitelist(registryAddr, otherPool); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	if err := a.MintLender(poolAddr, alice, 1, nil); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := a.Burn(otherPool, 1, nil); !errors.Is(err, ErrWrongPool) {
		t.Fatalf("expected ErrWrongPool, got %v", err)
	}
	if err := a.Burn(poolAddr, 1, nil); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if _, err := a.OwnerOf(1); !errors.Is(err, ErrClaimNotFound) {
		t.Fatalf("expected burned claim to be gone, got %v", err)
	}
	if err := a.Burn(poolAddr, 1, nil); !errors.Is(err, ErrClaimNotFound) {
		t.Fatalf("expected ErrClaimNotFound on double burn, got %v", err)
	}
}

func TestSinkReceivesMintAndBurnNotifications(t *testing.T) {
	a := newAgreement(t)
	configured := &events.Recorder{}
	a.SetEmitter(configured)
	sink := &events.Recorder{}

	if err := a.MintLender(poolAddr, alice, 1, sink); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := a.Burn(poolAddr, 1, sink); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if len(sink.OfType(EventTypeClaimMinted)) != 1 || len(sink.OfType(EventTypeClaimBurned)) != 1 {
		t.Fatalf("unexpected sink events %+v", sink.Events())
	}
	if len(configured.Events()) != 0 {
		t.Fatalf("configured emitter must not see sink events, got %+v", configured.Events())
	}
}

func TestRevertMintRewindsSequence(t *testing.T) {
	a := newAgreement(t)
	rec := &events.Recorder{}
	a.SetEmitter(rec)
	if err := a.MintLender(poolAddr, alice, 1, nil); err != nil {
		t.Fatalf("mint lender: %v", err)
	}
	if err := a.MintBorrower(poolAddr, bob, 2, nil); err != nil {
		t.Fatalf("mint borrower: %v", err)
	}
	if err := a.RevertMint(poolAddr, 1); !errors.Is(err, ErrUnexpectedClaimID) {
		t.Fatalf("only the latest mint can be reverted, got %v", err)
	}
	if err := a.RevertMint(otherPool, 2); !errors.Is(err, ErrWrongPool) {
		t.Fatalf("expected ErrWrongPool, got %v", err)
	}
	emitted := len(rec.Events())
	for _, id := range []uint64{2, 1} {
		if err := a.RevertMint(poolAddr, id); err != nil {
			t.Fatalf("revert mint %d: %v", id, err)
		}
	}
	if a.NextID() != 1 {
		t.Fatalf("expected next id 1, got %d", a.NextID())
	}
	if _, err := a.OwnerOf(1); !errors.Is(err, ErrClaimNotFound) {
		t.Fatalf("reverted claim must be gone, got %v", err)
	}
	if len(rec.Events()) != emitted {
		t.Fatalf("revert must not emit")
	}
	if err := a.MintLender(poolAddr, alice, 1, nil); err != nil {
		t.Fatalf("id 1 must be reusable: %v", err)
	}
}

func TestRevertBurnReinstatesHolder(t *testing.T) {
	a := newAgreement(t)
	if err := a.MintBorrower(poolAddr, alice, 1, nil); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := a.Transfer(alice, bob, 1); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := a.RevertBurn(poolAddr, 1); !errors.Is(err, ErrClaimNotFound) {
		t.Fatalf("live claim cannot be reinstated, got %v", err)
	}
	if err := a.Burn(poolAddr, 1, nil); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if err := a.RevertBurn(otherPool, 1); !errors.Is(err, ErrWrongPool) {
		t.Fatalf("expected ErrWrongPool, got %v", err)
	}
	if err := a.RevertBurn(poolAddr, 1); err != nil {
		t.Fatalf("revert burn: %v", err)
	}
	claim, err := a.Claim(1)
	if err != nil || claim.Owner != bob || claim.Role != RoleBorrower {
		t.Fatalf("unexpected reinstated claim %+v err=%v", claim, err)
	}
	if err := a.RevertBurn(poolAddr, 1); !errors.Is(err, ErrClaimNotFound) {
		t.Fatalf("expected ErrClaimNotFound on second revert, got %v", err)
	}
}
