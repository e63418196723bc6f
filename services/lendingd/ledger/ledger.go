package ledger

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nftlend/config"
	"nftlend/core/events"
	"nftlend/native/assets"
	"nftlend/native/claims"
	nativecommon "nftlend/native/common"
	"nftlend/native/lending"
)

const pauseModule = "lending"

// Ledger is the devnet world the lending registry runs against: in-memory
// token, collection and oracle ledgers, the claim agreement and the registry
// itself.
type Ledger struct {
	Registry    *lending.Registry
	Directory   *lending.Directory
	Claims      *claims.Agreement
	Pauses      *nativecommon.Switchboard
	Tokens      map[common.Address]*assets.Token
	Collections map[common.Address]*assets.Collection
	Oracles     map[common.Address]*assets.PriceFeed
	Owner       common.Address
}

// Options wires the ambient collaborators into the registry.
type Options struct {
	Emitter events.Emitter
	Store   *lending.Store
	Logger  *slog.Logger
	Clock   func() time.Time
}

// Bootstrap builds the ledgers described by genesis and configures the
// registry the way its owner would: whitelists first, then the claim
// registry.
func Bootstrap(genesis *config.Config, opts Options) (*Ledger, error) {
	if genesis == nil {
		return nil, fmt.Errorf("ledger: genesis required")
	}
	if err := genesis.Validate(); err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	now := uint64(clock().Unix())

	l := &Ledger{
		Directory:   lending.NewDirectory(),
		Pauses:      nativecommon.NewSwitchboard(),
		Tokens:      make(map[common.Address]*assets.Token),
		Collections: make(map[common.Address]*assets.Collection),
		Oracles:     make(map[common.Address]*assets.PriceFeed),
		Owner:       config.Address(genesis.Owner),
	}
	for _, seed := range genesis.Tokens {
		addr := config.Address(seed.Address)
		token := assets.NewToken(addr, seed.Symbol, seed.Decimals)
		l.Tokens[addr] = token
		l.Directory.RegisterToken(addr, token)
	}
	for _, seed := range genesis.Collections {
		addr := config.Address(seed.Address)
		collection := assets.NewCollection(addr, seed.Name)
		l.Collections[addr] = collection
		l.Directory.RegisterCollection(addr, collection)
	}
	for _, seed := range genesis.Oracles {
		addr := config.Address(seed.Address)
		price, err := config.Amount(seed.Price)
		if err != nil {
			return nil, fmt.Errorf("ledger: oracle %s: %w", seed.Address, err)
		}
		updatedAt := seed.UpdatedAt
		if updatedAt == 0 {
			updatedAt = now
		}
		feed := assets.NewPriceFeed(price, updatedAt)
		l.Oracles[addr] = feed
		l.Directory.RegisterOracle(addr, feed)
	}
	for _, seed := range genesis.Balances {
		amount, err := config.Amount(seed.Amount)
		if err != nil {
			return nil, fmt.Errorf("ledger: balance: %w", err)
		}
		if err := l.Tokens[config.Address(seed.Token)].Mint(config.Address(seed.Holder), amount); err != nil {
			return nil, fmt.Errorf("ledger: credit %s: %w", seed.Holder, err)
		}
	}
	for _, seed := range genesis.NFTs {
		id, err := config.Amount(seed.TokenID)
		if err != nil {
			return nil, fmt.Errorf("ledger: nft: %w", err)
		}
		if err := l.Collections[config.Address(seed.Collection)].Mint(config.Address(seed.Owner), id); err != nil {
			return nil, fmt.Errorf("ledger: mint %s #%s: %w", seed.Collection, seed.TokenID, err)
		}
	}

	registryAddr := config.Address(genesis.Registry)
	l.Claims = claims.NewAgreement(config.Address(genesis.Claims), registryAddr)
	l.Directory.RegisterClaims(l.Claims.Address(), l.Claims)
	if genesis.Pauses.Lending {
		l.Pauses.Set(pauseModule, true)
	}

	l.Registry = lending.NewRegistry(registryAddr, l.Owner, genesis.Lending)
	l.Registry.SetResolver(l.Directory)
	l.Registry.SetPauses(l.Pauses)
	if opts.Logger != nil {
		l.Registry.SetLogger(opts.Logger)
	}
	if opts.Clock != nil {
		l.Registry.SetClock(opts.Clock)
	}
	if opts.Store != nil {
		l.Registry.SetStore(opts.Store)
	}
	if opts.Emitter != nil {
		l.Registry.SetEmitter(opts.Emitter)
		l.Claims.SetEmitter(opts.Emitter)
	}

	for _, listing := range genesis.Assets {
		if err := l.Registry.ChangeAssetWhitelist(l.Owner, listing.Enabled, listing.PlatformFee,
			config.Address(listing.Asset), config.Address(listing.Oracle)); err != nil {
			return nil, fmt.Errorf("ledger: list asset %s: %w", listing.Asset, err)
		}
	}
	for _, listing := range genesis.Collaterals {
		if err := l.Registry.ChangeCollateralWhitelist(l.Owner, listing.Enabled,
			config.Address(listing.Collection), config.Address(listing.Oracle)); err != nil {
			return nil, fmt.Errorf("ledger: list collateral %s: %w", listing.Collection, err)
		}
	}
	if err := l.Registry.SetClaimRegistry(l.Owner, l.Claims.Address()); err != nil {
		return nil, fmt.Errorf("ledger: claim registry: %w", err)
	}
	return l, nil
}

// Token returns the devnet token ledger at addr.
func (l *Ledger) Token(addr common.Address) (*assets.Token, bool) {
	token, ok := l.Tokens[addr]
	return token, ok
}

// Collection returns the devnet collection ledger at addr.
func (l *Ledger) Collection(addr common.Address) (*assets.Collection, bool) {
	collection, ok := l.Collections[addr]
	return collection, ok
}

// Oracle returns the devnet price feed at addr.
func (l *Ledger) Oracle(addr common.Address) (*assets.PriceFeed, bool) {
	feed, ok := l.Oracles[addr]
	return feed, ok
}

// TokenAddresses lists the known token ledgers in address order.
func (l *Ledger) TokenAddresses() []common.Address {
	out := make([]common.Address, 0, len(l.Tokens))
	for addr := range l.Tokens {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}
