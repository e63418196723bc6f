package lending

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftlend/core/events"
	"nftlend/native/assets"
	"nftlend/native/claims"
)

var (
	registryAddr    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	protocolOwner   = common.HexToAddress("0x1000000000000000000000000000000000000002")
	tokenAddr       = common.HexToAddress("0x2000000000000000000000000000000000000001")
	collectionAddr  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	assetOracleAddr = common.HexToAddress("0x2000000000000000000000000000000000000003")
	floorOracleAddr = common.HexToAddress("0x2000000000000000000000000000000000000004")
	claimsAddr      = common.HexToAddress("0x2000000000000000000000000000000000000005")
	lenderAddr      = common.HexToAddress("0x3000000000000000000000000000000000000001")
	borrowerAddr    = common.HexToAddress("0x3000000000000000000000000000000000000002")
	strangerAddr    = common.HexToAddress("0x3000000000000000000000000000000000000003")
	treasuryAddr    = common.HexToAddress("0x3000000000000000000000000000000000000004")
)

const fixtureStart int64 = 1_700_000_000

// 8 decimal feeds: ETH at 1600 and a floor of 100000, so with an 18 decimal
// asset and a 2% floor percent the ceiling is 1.25e18.
var (
	assetPrice = uint256.NewInt(1600_00000000)
	floorPrice = uint256.NewInt(100000_00000000)
)

type fixture struct {
	t          *testing.T
	registry   *Registry
	directory  *Directory
	token      *assets.Token
	collection *assets.Collection
	assetFeed  *assets.PriceFeed
	floorFeed  *assets.PriceFeed
	claims     *claims.Agreement
	events     *events.Recorder
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:          t,
		registry:   NewRegistry(registryAddr, protocolOwner, Config{}),
		directory:  NewDirectory(),
		token:      assets.NewToken(tokenAddr, "WETH", 18),
		collection: assets.NewCollection(collectionAddr, "Apes"),
		assetFeed:  assets.NewPriceFeed(assetPrice, uint64(fixtureStart)),
		floorFeed:  assets.NewPriceFeed(floorPrice, uint64(fixtureStart)),
		claims:     claims.NewAgreement(claimsAddr, registryAddr),
		events:     &events.Recorder{},
		now:        time.Unix(fixtureStart, 0),
	}
	f.directory.RegisterToken(tokenAddr, f.token)
	f.directory.RegisterCollection(collectionAddr, f.collection)
	f.directory.RegisterOracle(assetOracleAddr, f.assetFeed)
	f.directory.RegisterOracle(floorOracleAddr, f.floorFeed)
	f.directory.RegisterClaims(claimsAddr, f.claims)
	f.registry.SetResolver(f.directory)
	f.registry.SetClock(func() time.Time { return f.now })
	f.registry.SetEmitter(f.events)

	if err := f.registry.ChangeAssetWhitelist(protocolOwner, true, 2, tokenAddr, assetOracleAddr); err != nil {
		t.Fatalf("whitelist asset: %v", err)
	}
	if err := f.registry.ChangeCollateralWhitelist(protocolOwner, true, collectionAddr, floorOracleAddr); err != nil {
		t.Fatalf("whitelist collateral: %v", err)
	}
	if err := f.registry.SetClaimRegistry(protocolOwner, claimsAddr); err != nil {
		t.Fatalf("set claim registry: %v", err)
	}
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) unix() uint64 { return uint64(f.now.Unix()) }

func defaultPoolParams() PoolParams {
	return PoolParams{
		Asset:             tokenAddr,
		Collection:        collectionAddr,
		FloorPricePercent: 2,
		Durations:         []uint64{30},
		Rates:             []uint64{2},
	}
}

// createPool opens a basket owned by lenderAddr.
func (f *fixture) createPool(params PoolParams) *Pool {
	f.t.Helper()
	id, _, err := f.registry.CreatePool(lenderAddr, params)
	if err != nil {
		f.t.Fatalf("create pool: %v", err)
	}
	pool, err := f.registry.Pool(id)
	if err != nil {
		f.t.Fatalf("lookup pool: %v", err)
	}
	return pool
}

func (f *fixture) fund(holder common.Address, amount uint64) {
	f.t.Helper()
	if err := f.token.Mint(holder, uint256.NewInt(amount)); err != nil {
		f.t.Fatalf("mint: %v", err)
	}
}

func (f *fixture) deposit(pool *Pool, amount uint64) {
	f.t.Helper()
	f.fund(lenderAddr, amount)
	if err := f.token.Approve(lenderAddr, pool.Address(), uint256.NewInt(amount)); err != nil {
		f.t.Fatalf("approve: %v", err)
	}
	if err := pool.DepositLiquidity(lenderAddr, uint256.NewInt(amount)); err != nil {
		f.t.Fatalf("deposit: %v", err)
	}
}

// collateral mints tokenID to borrowerAddr and approves pool to move it.
func (f *fixture) collateral(pool *Pool, tokenID uint64) *uint256.Int {
	f.t.Helper()
	id := uint256.NewInt(tokenID)
	if err := f.collection.Mint(borrowerAddr, id); err != nil {
		f.t.Fatalf("mint collateral: %v", err)
	}
	if err := f.collection.Approve(borrowerAddr, pool.Address(), id); err != nil {
		f.t.Fatalf("approve collateral: %v", err)
	}
	return id
}

func (f *fixture) borrow(pool *Pool, duration, amount, tokenID uint64) *Loan {
	f.t.Helper()
	id := f.collateral(pool, tokenID)
	loanID, err := pool.CreateLoan(borrowerAddr, duration, uint256.NewInt(amount), id)
	if err != nil {
		f.t.Fatalf("create loan: %v", err)
	}
	loan, err := pool.Loan(loanID)
	if err != nil {
		f.t.Fatalf("lookup loan: %v", err)
	}
	return loan
}

func (f *fixture) approvePayment(holder common.Address, pool *Pool, amount uint64) {
	f.t.Helper()
	if err := f.token.Approve(holder, pool.Address(), uint256.NewInt(amount)); err != nil {
		f.t.Fatalf("approve payment: %v", err)
	}
}

// assertConservation checks that the basket's token balance equals its
// liquidity plus escrowed repayments and that the registry holds exactly
// the tracked fees.
func (f *fixture) assertConservation(pool *Pool) {
	f.t.Helper()
	info := pool.Info()
	expected := new(uint256.Int).Add(info.Liquidity, info.Escrowed)
	if balance := f.token.BalanceOf(pool.Address()); !balance.Eq(expected) {
		f.t.Fatalf("basket balance %s != liquidity %s + escrowed %s", balance, info.Liquidity, info.Escrowed)
	}
	if fees, held := f.registry.FeeBalance(tokenAddr), f.token.BalanceOf(registryAddr); !fees.Eq(held) {
		f.t.Fatalf("registry holds %s but tracks %s fees", held, fees)
	}
}

func mustAmount(t *testing.T, dec string) *uint256.Int {
	t.Helper()
	v, err := uint256.FromDecimal(dec)
	if err != nil {
		t.Fatalf("parse %q: %v", dec, err)
	}
	return v
}
