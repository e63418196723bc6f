package assets

import (
	"sync"

	"github.com/holiman/uint256"
)

// PriceFeed is a manually pushed price oracle.
type PriceFeed struct {
	mu        sync.RWMutex
	price     *uint256.Int
	updatedAt uint64
}

// NewPriceFeed returns a feed reporting price observed at updatedAt.
func NewPriceFeed(price *uint256.Int, updatedAt uint64) *PriceFeed {
	feed := &PriceFeed{price: new(uint256.Int)}
	if price != nil {
		feed.price.Set(price)
	}
	feed.updatedAt = updatedAt
	return feed
}

// Set records a new reading.
func (f *PriceFeed) Set(price *uint256.Int, updatedAt uint64) error {
	if price == nil {
		return ErrInvalidPrice
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = new(uint256.Int).Set(price)
	f.updatedAt = updatedAt
	return nil
}

// LatestPrice returns the last reading and when it was observed.
func (f *PriceFeed) LatestPrice() (*uint256.Int, uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return new(uint256.Int).Set(f.price), f.updatedAt, nil
}
