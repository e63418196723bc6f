package lending

import (
	"github.com/ethereum/go-ethereum/common"

	"nftlend/core/events"
	"nftlend/core/types"
)

// txn collects the compensations, events and dirty records of one ledger
// operation. Compensations run in reverse order when the operation fails;
// events are only released once it succeeds.
type txn struct {
	undo     []func() error
	events   []*types.Event
	pools    map[uint64]*Pool
	loans    map[*Pool][]*Loan
	fees     map[common.Address]struct{}
	registry bool
}

func newTxn() *txn {
	return &txn{
		pools: make(map[uint64]*Pool),
		loans: make(map[*Pool][]*Loan),
		fees:  make(map[common.Address]struct{}),
	}
}

// onRollback registers a compensating step.
func (tx *txn) onRollback(fn func() error) {
	tx.undo = append(tx.undo, fn)
}

func (tx *txn) emit(evt *types.Event) {
	if evt != nil {
		tx.events = append(tx.events, evt)
	}
}

// relay buffers collaborator events alongside the operation's own.
func (tx *txn) relay() events.Emitter {
	return events.EmitterFunc(func(evt events.Event) {
		if payload, ok := evt.(events.Payload); ok {
			tx.emit(payload.Event())
		}
	})
}

func (tx *txn) touchPool(p *Pool) { tx.pools[p.id] = p }

func (tx *txn) touchLoan(p *Pool, loan *Loan) {
	tx.pools[p.id] = p
	tx.loans[p] = append(tx.loans[p], loan)
}

func (tx *txn) touchFees(asset common.Address) { tx.fees[asset] = struct{}{} }

func (tx *txn) touchRegistry() { tx.registry = true }

// rollback runs the compensations and returns the first failure, if any.
func (tx *txn) rollback() error {
	var first error
	for i := len(tx.undo) - 1; i >= 0; i-- {
		if err := tx.undo[i](); err != nil && first == nil {
			first = err
		}
	}
	tx.undo = nil
	tx.events = nil
	return first
}
