package lending

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"nftlend/core/events"
	"nftlend/core/types"
	nativecommon "nftlend/native/common"
	"nftlend/observability/metrics"
)

const moduleName = "lending"

// Registry is the protocol-wide configuration aggregate: asset and collateral
// whitelists, the pause switch, staleness windows, the basket table and the
// platform fee ledger. Every mutation on the registry or on any of its baskets
// is serialised through mu.
type Registry struct {
	mu sync.RWMutex

	address     common.Address
	owner       common.Address
	paused      bool
	cfg         Config
	assets      map[common.Address]AssetEntry
	collaterals map[common.Address]CollateralEntry
	pools       map[uint64]*Pool
	byAddress   map[common.Address]*Pool
	lastPoolID  uint64
	fees        map[common.Address]*uint256.Int
	factory     *Factory
	claimsAddr  common.Address
	claims      ClaimRegistry

	resolver Resolver
	emitter  events.Emitter
	store    *Store
	pauses   nativecommon.PauseView
	logger   *slog.Logger
	clock    func() time.Time
}

// NewRegistry constructs a registry at address owned by owner. A basket
// factory derived from the registry address is installed by default.
func NewRegistry(address, owner common.Address, cfg Config) *Registry {
	r := &Registry{
		address:     address,
		owner:       owner,
		cfg:         cfg.normalized(),
		assets:      make(map[common.Address]AssetEntry),
		collaterals: make(map[common.Address]CollateralEntry),
		pools:       make(map[uint64]*Pool),
		byAddress:   make(map[common.Address]*Pool),
		fees:        make(map[common.Address]*uint256.Int),
		emitter:     events.NoopEmitter{},
		logger:      slog.Default(),
		clock:       time.Now,
	}
	r.factory = NewFactory(crypto.CreateAddress(address, 0), address)
	return r
}

// SetResolver wires the collaborator lookup used to reach tokens, collections,
// oracles and claim registries.
func (r *Registry) SetResolver(resolver Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolver = resolver
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
// Events are emitted while the ledger lock is held, so emitters must not call
// back into the registry.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetStore enables write-through persistence of committed records.
func (r *Registry) SetStore(store *Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = store
}

// SetPauses installs an external pause switch consulted alongside the
// registry's own pause flag.
func (r *Registry) SetPauses(p nativecommon.PauseView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauses = p
}

func (r *Registry) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// SetClock overrides the time source for deterministic testing.
func (r *Registry) SetClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
}

func (r *Registry) Address() common.Address { return r.address }

func (r *Registry) Owner() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

func (r *Registry) now() uint64 {
	ts := r.clock().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (r *Registry) protocolPaused() bool {
	return r.paused || nativecommon.Guard(r.pauses, moduleName) != nil
}

func (r *Registry) onlyOwner(caller common.Address) error {
	if caller != r.owner {
		return ErrNotOwner
	}
	return nil
}

func (r *Registry) emit(evt *types.Event) {
	if r.emitter == nil || evt == nil {
		return
	}
	r.emitter.Emit(lendingEvent{evt: evt})
}

// exec runs fn as one ledger operation: all or nothing.
func (r *Registry) exec(op string, fn func(tx *txn) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := newTxn()
	if err := fn(tx); err != nil {
		if len(tx.undo) > 0 {
			metrics.Lending().RecordRollback(op)
		}
		if rbErr := tx.rollback(); rbErr != nil {
			r.logger.Error("lending rollback failed", slog.String("op", op), slog.Any("error", rbErr))
			return errors.Join(err, fmt.Errorf("lending: rollback %s: %w", op, rbErr))
		}
		return err
	}
	r.persist(tx)
	r.observe(tx)
	for _, evt := range tx.events {
		r.emit(evt)
	}
	return nil
}

func (r *Registry) observe(tx *txn) {
	m := metrics.Lending()
	if tx.registry {
		m.SetPause(r.paused)
	}
	for asset := range tx.fees {
		m.RecordFees(asset.Hex(), r.fees[asset])
	}
	for _, pool := range tx.pools {
		active := 0
		for _, loan := range pool.loans {
			if loan.Status == LoanStatusActive {
				active++
			}
		}
		m.RecordPool(pool.id, pool.liquidity, pool.escrowed, active)
	}
}

func (r *Registry) requireResolver() (Resolver, error) {
	if r.resolver == nil {
		return nil, ErrDirectoryNotSet
	}
	return r.resolver, nil
}

func (r *Registry) token(asset common.Address) (FungibleToken, error) {
	resolver, err := r.requireResolver()
	if err != nil {
		return nil, err
	}
	token, err := resolver.Token(asset)
	if err != nil {
		return nil, fmt.Errorf("lending: asset %s: %w", asset.Hex(), err)
	}
	return token, nil
}

// ChangeAssetWhitelist adds or updates a fungible asset entry.
func (r *Registry) ChangeAssetWhitelist(caller common.Address, enabled bool, feePercent uint64, asset, oracle common.Address) error {
	return r.exec("change_asset_whitelist", func(tx *txn) error {
		if err := r.onlyOwner(caller); err != nil {
			return err
		}
		if feePercent == 0 || feePercent > percentDenominator {
			return ErrPlatformFeeOutOfRange
		}
		if asset == (common.Address{}) {
			return ErrZeroAddress
		}
		entry := AssetEntry{Asset: asset, Enabled: enabled, PlatformFee: feePercent, Oracle: oracle}
		previous, existed := r.assets[asset]
		r.assets[asset] = entry
		tx.onRollback(func() error {
			if existed {
				r.assets[asset] = previous
			} else {
				delete(r.assets, asset)
			}
			return nil
		})
		tx.touchRegistry()
		tx.emit(newAssetWhitelistEvent(entry))
		return nil
	})
}

// ChangeCollateralWhitelist adds or updates a collateral collection entry.
func (r *Registry) ChangeCollateralWhitelist(caller common.Address, enabled bool, collection, oracle common.Address) error {
	return r.exec("change_collateral_whitelist", func(tx *txn) error {
		if err := r.onlyOwner(caller); err != nil {
			return err
		}
		if collection == (common.Address{}) {
			return ErrZeroAddress
		}
		entry := CollateralEntry{Collection: collection, Enabled: enabled, Oracle: oracle}
		previous, existed := r.collaterals[collection]
		r.collaterals[collection] = entry
		tx.onRollback(func() error {
			if existed {
				r.collaterals[collection] = previous
			} else {
				delete(r.collaterals, collection)
			}
			return nil
		})
		tx.touchRegistry()
		tx.emit(newCollateralWhitelistEvent(entry))
		return nil
	})
}

func validatePoolParams(params PoolParams) error {
	if params.FloorPricePercent == 0 || params.FloorPricePercent > percentDenominator {
		return ErrFloorPercentOutOfRange
	}
	if len(params.Durations) == 0 || len(params.Rates) == 0 {
		if len(params.Durations) != len(params.Rates) {
			return &LengthMismatchError{Durations: len(params.Durations), Rates: len(params.Rates)}
		}
		return ErrTiersEmpty
	}
	if len(params.Durations) != len(params.Rates) {
		return &LengthMismatchError{Durations: len(params.Durations), Rates: len(params.Rates)}
	}
	for i, duration := range params.Durations {
		if duration == 0 {
			return ErrTierDurationZero
		}
		rate := params.Rates[i]
		if rate == 0 {
			return ErrTierRateZero
		}
		if rate > percentDenominator {
			return ErrTierRateTooHigh
		}
	}
	return nil
}

// CreatePool deploys a basket for the (asset, collection) pair owned by the
// caller and returns its identifier and address.
func (r *Registry) CreatePool(caller common.Address, params PoolParams) (uint64, common.Address, error) {
	var created *Pool
	err := r.exec("create_pool", func(tx *txn) error {
		if r.protocolPaused() {
			return ErrProtocolPaused
		}
		if entry, ok := r.assets[params.Asset]; !ok || !entry.Enabled {
			return ErrAssetNotEnabled
		}
		if entry, ok := r.collaterals[params.Collection]; !ok || !entry.Enabled {
			return ErrCollateralNotEnabled
		}
		if err := validatePoolParams(params); err != nil {
			return err
		}
		if r.claims == nil {
			return ErrClaimRegistryNotSet
		}
		if r.factory == nil {
			return ErrFactoryNotSet
		}
		id := r.lastPoolID + 1
		pool, err := r.factory.Deploy(r.address, r, id, caller, params)
		if err != nil {
			return err
		}
		r.lastPoolID = id
		r.pools[id] = pool
		r.byAddress[pool.address] = pool
		tx.onRollback(func() error {
			r.lastPoolID = id - 1
			delete(r.pools, id)
			delete(r.byAddress, pool.address)
			return nil
		})
		if err := r.claims.AddToWhitelist(r.address, pool.address); err != nil {
			return fmt.Errorf("lending: authorise basket %d: %w", id, err)
		}
		tx.touchRegistry()
		tx.touchPool(pool)
		tx.emit(newPoolCreatedEvent(pool, params))
		created = pool
		return nil
	})
	if err != nil {
		return 0, common.Address{}, err
	}
	return created.id, created.address, nil
}

// PauseProtocol sets the global pause flag.
func (r *Registry) PauseProtocol(caller common.Address) error {
	return r.setPaused(caller, true)
}

// ReEnableProtocol clears the global pause flag.
func (r *Registry) ReEnableProtocol(caller common.Address) error {
	return r.setPaused(caller, false)
}

func (r *Registry) setPaused(caller common.Address, paused bool) error {
	return r.exec("set_paused", func(tx *txn) error {
		if err := r.onlyOwner(caller); err != nil {
			return err
		}
		if r.paused == paused {
			if paused {
				return ErrProtocolPaused
			}
			return ErrProtocolNotPaused
		}
		r.paused = paused
		tx.onRollback(func() error {
			r.paused = !paused
			return nil
		})
		tx.touchRegistry()
		tx.emit(newProtocolPauseEvent(paused, caller))
		return nil
	})
}

// WithdrawFees transfers the whole tracked fee balance of asset to to.
func (r *Registry) WithdrawFees(caller, asset, to common.Address) (*uint256.Int, error) {
	var withdrawn *uint256.Int
	err := r.exec("withdraw_fees", func(tx *txn) error {
		if err := r.onlyOwner(caller); err != nil {
			return err
		}
		if to == (common.Address{}) {
			return ErrZeroAddress
		}
		balance := r.fees[asset]
		if balance == nil || balance.IsZero() {
			return ErrInsufficientFees
		}
		token, err := r.token(asset)
		if err != nil {
			return err
		}
		r.fees[asset] = new(uint256.Int)
		tx.onRollback(func() error {
			r.fees[asset] = balance
			return nil
		})
		tx.touchFees(asset)
		if err := token.Transfer(r.address, to, balance); err != nil {
			return fmt.Errorf("lending: withdraw fees: %w", err)
		}
		withdrawn = new(uint256.Int).Set(balance)
		tx.emit(newFeesWithdrawnEvent(asset, to, balance))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return withdrawn, nil
}

// SetClaimRegistry points the registry at the claim registry deployed at
// claims. The address must resolve through the configured resolver.
func (r *Registry) SetClaimRegistry(caller, claims common.Address) error {
	return r.exec("set_claim_registry", func(tx *txn) error {
		if err := r.onlyOwner(caller); err != nil {
			return err
		}
		if claims == (common.Address{}) {
			return ErrZeroAddress
		}
		if claims == r.address {
			return ErrClaimRegistrySelf
		}
		resolver, err := r.requireResolver()
		if err != nil {
			return err
		}
		registry, err := resolver.Claims(claims)
		if err != nil {
			return fmt.Errorf("lending: claim registry %s: %w", claims.Hex(), err)
		}
		prevAddr, prev := r.claimsAddr, r.claims
		r.claimsAddr, r.claims = claims, registry
		tx.onRollback(func() error {
			r.claimsAddr, r.claims = prevAddr, prev
			return nil
		})
		tx.touchRegistry()
		tx.emit(newAddressUpdatedEvent(EventTypeClaimRegistryUpdated, "claims", claims))
		return nil
	})
}

// SetFloorPriceStaleness updates the accepted age of floor price readings.
func (r *Registry) SetFloorPriceStaleness(caller common.Address, window uint64) error {
	return r.SetPriceStaleness(caller, &window, nil)
}

// SetAssetPriceStaleness updates the accepted age of asset price readings.
func (r *Registry) SetAssetPriceStaleness(caller common.Address, window uint64) error {
	return r.SetPriceStaleness(caller, nil, &window)
}

// SetPriceStaleness updates the floor and asset windows together; a nil
// window is left unchanged. Either both updates apply or neither does.
func (r *Registry) SetPriceStaleness(caller common.Address, floor, asset *uint64) error {
	return r.exec("set_staleness", func(tx *txn) error {
		if err := r.onlyOwner(caller); err != nil {
			return err
		}
		if (floor != nil && *floor == 0) || (asset != nil && *asset == 0) {
			return ErrStalenessZero
		}
		if floor != nil {
			r.applyStaleness(tx, *floor, &r.cfg.FloorPriceStaleness, EventTypeFloorStalenessUpdated)
		}
		if asset != nil {
			r.applyStaleness(tx, *asset, &r.cfg.AssetPriceStaleness, EventTypeAssetStalenessUpdated)
		}
		return nil
	})
}

func (r *Registry) applyStaleness(tx *txn, window uint64, target *uint64, eventType string) {
	previous := *target
	*target = window
	tx.onRollback(func() error {
		*target = previous
		return nil
	})
	tx.touchRegistry()
	tx.emit(newStalenessEvent(eventType, window))
}

// SetPoolFactory replaces the basket factory. The factory must be bound to
// this registry.
func (r *Registry) SetPoolFactory(caller common.Address, factory *Factory) error {
	return r.exec("set_pool_factory", func(tx *txn) error {
		if err := r.onlyOwner(caller); err != nil {
			return err
		}
		if factory == nil {
			return ErrFactoryNotSet
		}
		if factory.Registry() != r.address {
			return ErrFactoryRegistryMismatch
		}
		previous := r.factory
		r.factory = factory
		tx.onRollback(func() error {
			r.factory = previous
			return nil
		})
		tx.touchRegistry()
		tx.emit(newAddressUpdatedEvent(EventTypeFactoryUpdated, "factory", factory.Address()))
		return nil
	})
}

// TransferOwnership hands the protocol owner role to next.
func (r *Registry) TransferOwnership(caller, next common.Address) error {
	return r.exec("transfer_ownership", func(tx *txn) error {
		if err := r.onlyOwner(caller); err != nil {
			return err
		}
		if next == (common.Address{}) {
			return ErrZeroAddress
		}
		previous := r.owner
		r.owner = next
		tx.onRollback(func() error {
			r.owner = previous
			return nil
		})
		tx.touchRegistry()
		tx.emit(newOwnershipEvent(previous, next))
		return nil
	})
}

// ProtocolParams returns the gates and feeds a basket for (asset,
// collection) consults.
func (r *Registry) ProtocolParams(asset, collection common.Address) ProtocolParams {
	r.mu.RLock()
	defer r.mu.RUnlock()
	params := ProtocolParams{
		Paused:              r.protocolPaused(),
		FloorPriceStaleness: r.cfg.FloorPriceStaleness,
		AssetPriceStaleness: r.cfg.AssetPriceStaleness,
	}
	if entry, ok := r.assets[asset]; ok {
		params.PlatformFee = entry.PlatformFee
		params.AssetEnabled = entry.Enabled
		params.AssetOracle = entry.Oracle
	}
	if entry, ok := r.collaterals[collection]; ok {
		params.CollateralEnabled = entry.Enabled
		params.CollateralOracle = entry.Oracle
	}
	return params
}

// Paused reports whether the protocol is paused.
func (r *Registry) Paused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.protocolPaused()
}

func (r *Registry) AssetEntry(asset common.Address) (AssetEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.assets[asset]
	return entry, ok
}

func (r *Registry) CollateralEntry(collection common.Address) (CollateralEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.collaterals[collection]
	return entry, ok
}

// FeeBalance returns the tracked platform fee balance for asset.
func (r *Registry) FeeBalance(asset common.Address) *uint256.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return new(uint256.Int).Set(amountOrZero(r.fees[asset]))
}

// ClaimRegistryAddress returns the configured claim registry address.
func (r *Registry) ClaimRegistryAddress() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.claimsAddr
}

func (r *Registry) Factory() *Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.factory
}

// Pool returns the basket with the given identifier.
func (r *Registry) Pool(id uint64) (*Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pool, ok := r.pools[id]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return pool, nil
}

// PoolByAddress returns the basket deployed at address.
func (r *Registry) PoolByAddress(address common.Address) (*Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pool, ok := r.byAddress[address]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return pool, nil
}

// Pools returns every basket ordered by identifier.
func (r *Registry) Pools() []*Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Pool, 0, len(r.pools))
	for _, pool := range r.pools {
		out = append(out, pool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (r *Registry) persist(tx *txn) {
	if r.store == nil {
		return
	}
	if tx.registry {
		if err := r.store.PutRegistry(r.snapshot()); err != nil {
			r.logger.Error("persist registry", slog.Any("error", err))
		}
	}
	for asset := range tx.fees {
		if err := r.store.PutFees(asset, amountOrZero(r.fees[asset])); err != nil {
			r.logger.Error("persist fees", slog.String("asset", asset.Hex()), slog.Any("error", err))
		}
	}
	for _, pool := range tx.pools {
		if err := r.store.PutPool(pool.snapshot()); err != nil {
			r.logger.Error("persist basket", slog.Uint64("pool", pool.id), slog.Any("error", err))
		}
	}
	for pool, loans := range tx.loans {
		for _, loan := range loans {
			if err := r.store.PutLoan(pool.id, loan); err != nil {
				r.logger.Error("persist loan", slog.Uint64("pool", pool.id), slog.Uint64("loan", loan.ID), slog.Any("error", err))
			}
		}
	}
}

// RegistryRecord is the persisted form of the registry configuration.
type RegistryRecord struct {
	Address             common.Address
	Owner               common.Address
	Paused              bool
	FloorPriceStaleness uint64
	AssetPriceStaleness uint64
	LastPoolID          uint64
	ClaimRegistry       common.Address
	Factory             common.Address
	Assets              []AssetEntry
	Collaterals         []CollateralEntry
}

func (r *Registry) snapshot() *RegistryRecord {
	record := &RegistryRecord{
		Address:             r.address,
		Owner:               r.owner,
		Paused:              r.paused,
		FloorPriceStaleness: r.cfg.FloorPriceStaleness,
		AssetPriceStaleness: r.cfg.AssetPriceStaleness,
		LastPoolID:          r.lastPoolID,
		ClaimRegistry:       r.claimsAddr,
	}
	if r.factory != nil {
		record.Factory = r.factory.Address()
	}
	for _, entry := range r.assets {
		record.Assets = append(record.Assets, entry)
	}
	sort.Slice(record.Assets, func(i, j int) bool {
		return record.Assets[i].Asset.Cmp(record.Assets[j].Asset) < 0
	})
	for _, entry := range r.collaterals {
		record.Collaterals = append(record.Collaterals, entry)
	}
	sort.Slice(record.Collaterals, func(i, j int) bool {
		return record.Collaterals[i].Collection.Cmp(record.Collaterals[j].Collection) < 0
	})
	return record
}
