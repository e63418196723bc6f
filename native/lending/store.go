package lending

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"nftlend/storage"
)

var (
	registryKey = []byte("lending/registry")
	poolPrefix  = "lending/pool/"
	loanPrefix  = "lending/loan/"
	feesPrefix  = "lending/fees/"
)

func poolKey(id uint64) []byte { return []byte(fmt.Sprintf("%s%d", poolPrefix, id)) }

func loanKey(poolID, loanID uint64) []byte {
	return []byte(fmt.Sprintf("%s%d/%d", loanPrefix, poolID, loanID))
}

func feesKey(asset common.Address) []byte { return []byte(feesPrefix + asset.Hex()) }

type storedTier struct {
	Duration uint64
	Rate     uint64
	Enabled  bool
}

type storedPool struct {
	ID                uint64
	Address           common.Address
	Owner             common.Address
	Asset             common.Address
	Collection        common.Address
	FloorPricePercent uint64
	Tiers             []storedTier
	Liquidity         string
	Escrowed          string
	Status            uint8
	AutomaticApproval bool
	AcceptRefinance   bool
	LastLoanID        uint64
}

type storedLoan struct {
	ID                uint64
	CollateralTokenID string
	Principal         string
	AmountPaid        string
	Duration          uint64
	InterestPercent   uint64
	InterestAmount    string
	PlatformFee       string
	BorrowerClaimID   uint64
	LenderClaimID     uint64
	Status            uint8
	CreatedAt         uint64
	ResolvedAt        uint64
}

type storedRegistry struct {
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

// Store persists committed registry, basket, loan and fee records as RLP
// into a key-value database.
type Store struct {
	db storage.Database
}

// NewStore constructs a Store backed by db.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func (s *Store) put(key []byte, value interface{}) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("lending: store not initialised")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return s.db.Put(key, encoded)
}

func (s *Store) get(key []byte, out interface{}) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("lending: store not initialised")
	}
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func parseAmount(value string) (*uint256.Int, error) {
	if value == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(value)
}

// PutRegistry persists the registry configuration.
func (s *Store) PutRegistry(record *RegistryRecord) error {
	if record == nil {
		return fmt.Errorf("lending: registry record must not be nil")
	}
	return s.put(registryKey, &storedRegistry{
		Address:             record.Address,
		Owner:               record.Owner,
		Paused:              record.Paused,
		FloorPriceStaleness: record.FloorPriceStaleness,
		AssetPriceStaleness: record.AssetPriceStaleness,
		LastPoolID:          record.LastPoolID,
		ClaimRegistry:       record.ClaimRegistry,
		Factory:             record.Factory,
		Assets:              record.Assets,
		Collaterals:         record.Collaterals,
	})
}

// GetRegistry loads the registry configuration.
func (s *Store) GetRegistry() (*RegistryRecord, bool, error) {
	var stored storedRegistry
	ok, err := s.get(registryKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &RegistryRecord{
		Address:             stored.Address,
		Owner:               stored.Owner,
		Paused:              stored.Paused,
		FloorPriceStaleness: stored.FloorPriceStaleness,
		AssetPriceStaleness: stored.AssetPriceStaleness,
		LastPoolID:          stored.LastPoolID,
		ClaimRegistry:       stored.ClaimRegistry,
		Factory:             stored.Factory,
		Assets:              stored.Assets,
		Collaterals:         stored.Collaterals,
	}, true, nil
}

// PutPool persists a basket record.
func (s *Store) PutPool(record *PoolRecord) error {
	if record == nil {
		return fmt.Errorf("lending: basket record must not be nil")
	}
	stored := storedPool{
		ID:                record.ID,
		Address:           record.Address,
		Owner:             record.Owner,
		Asset:             record.Asset,
		Collection:        record.Collection,
		FloorPricePercent: record.FloorPricePercent,
		Liquidity:         decString(record.Liquidity),
		Escrowed:          decString(record.Escrowed),
		Status:            uint8(record.Status),
		AutomaticApproval: record.AutomaticApproval,
		AcceptRefinance:   record.AcceptRefinance,
		LastLoanID:        record.LastLoanID,
	}
	for _, tier := range record.Tiers {
		stored.Tiers = append(stored.Tiers, storedTier{Duration: tier.Duration, Rate: tier.Rate, Enabled: tier.Enabled})
	}
	return s.put(poolKey(record.ID), &stored)
}

// GetPool loads the basket record with id.
func (s *Store) GetPool(id uint64) (*PoolRecord, bool, error) {
	var stored storedPool
	ok, err := s.get(poolKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	liquidity, err := parseAmount(stored.Liquidity)
	if err != nil {
		return nil, false, fmt.Errorf("lending: basket %d liquidity: %w", id, err)
	}
	escrowed, err := parseAmount(stored.Escrowed)
	if err != nil {
		return nil, false, fmt.Errorf("lending: basket %d escrowed: %w", id, err)
	}
	record := &PoolRecord{
		ID:                stored.ID,
		Address:           stored.Address,
		Owner:             stored.Owner,
		Asset:             stored.Asset,
		Collection:        stored.Collection,
		FloorPricePercent: stored.FloorPricePercent,
		Liquidity:         liquidity,
		Escrowed:          escrowed,
		Status:            PoolStatus(stored.Status),
		AutomaticApproval: stored.AutomaticApproval,
		AcceptRefinance:   stored.AcceptRefinance,
		LastLoanID:        stored.LastLoanID,
	}
	for _, tier := range stored.Tiers {
		record.Tiers = append(record.Tiers, InterestTier{Duration: tier.Duration, Rate: tier.Rate, Enabled: tier.Enabled})
	}
	return record, true, nil
}

// PutLoan persists a loan record under its basket.
func (s *Store) PutLoan(poolID uint64, loan *Loan) error {
	if loan == nil {
		return fmt.Errorf("lending: loan must not be nil")
	}
	return s.put(loanKey(poolID, loan.ID), &storedLoan{
		ID:                loan.ID,
		CollateralTokenID: decString(loan.CollateralTokenID),
		Principal:         decString(loan.Principal),
		AmountPaid:        decString(loan.AmountPaid),
		Duration:          loan.Duration,
		InterestPercent:   loan.InterestPercent,
		InterestAmount:    decString(loan.InterestAmount),
		PlatformFee:       decString(loan.PlatformFee),
		BorrowerClaimID:   loan.BorrowerClaimID,
		LenderClaimID:     loan.LenderClaimID,
		Status:            uint8(loan.Status),
		CreatedAt:         loan.CreatedAt,
		ResolvedAt:        loan.ResolvedAt,
	})
}

// GetLoan loads a loan record.
func (s *Store) GetLoan(poolID, loanID uint64) (*Loan, bool, error) {
	var stored storedLoan
	ok, err := s.get(loanKey(poolID, loanID), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	loan := &Loan{
		ID:              stored.ID,
		Duration:        stored.Duration,
		InterestPercent: stored.InterestPercent,
		BorrowerClaimID: stored.BorrowerClaimID,
		LenderClaimID:   stored.LenderClaimID,
		Status:          LoanStatus(stored.Status),
		CreatedAt:       stored.CreatedAt,
		ResolvedAt:      stored.ResolvedAt,
	}
	fields := []struct {
		raw string
		dst **uint256.Int
	}{
		{stored.CollateralTokenID, &loan.CollateralTokenID},
		{stored.Principal, &loan.Principal},
		{stored.AmountPaid, &loan.AmountPaid},
		{stored.InterestAmount, &loan.InterestAmount},
		{stored.PlatformFee, &loan.PlatformFee},
	}
	for _, field := range fields {
		value, err := parseAmount(field.raw)
		if err != nil {
			return nil, false, fmt.Errorf("lending: loan %d/%d: %w", poolID, loanID, err)
		}
		*field.dst = value
	}
	return loan, true, nil
}

// PutFees persists the tracked fee balance of asset.
func (s *Store) PutFees(asset common.Address, amount *uint256.Int) error {
	return s.put(feesKey(asset), decString(amount))
}

// GetFees loads the tracked fee balance of asset.
func (s *Store) GetFees(asset common.Address) (*uint256.Int, error) {
	var raw string
	ok, err := s.get(feesKey(asset), &raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return parseAmount(raw)
}
