package indexer

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"nftlend/core/types"
)

type payload struct{ evt *types.Event }

func (p payload) EventType() string { return p.evt.Type }
func (p payload) Event() *types.Event { return p.evt }

type bare struct{}

func (bare) EventType() string { return "bare" }

func newTestIndexer(t *testing.T) (*Indexer, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	idx, err := New(db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx, db
}

func TestEmitIndexesPayloads(t *testing.T) {
	idx, _ := newTestIndexer(t)
	idx.Emit(payload{evt: &types.Event{Type: "lending.pool.created", Attributes: map[string]string{"poolId": "1"}}})
	idx.Emit(payload{evt: &types.Event{Type: "lending.loan.created", Attributes: map[string]string{"poolId": "1", "loanId": "1"}}})
	idx.Emit(payload{evt: &types.Event{Type: "lending.pool.created", Attributes: map[string]string{"poolId": "2"}}})
	idx.Emit(bare{})

	all, err := idx.Query(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, []uint64{1, 2, 3}, []uint64{all[0].Seq, all[1].Seq, all[2].Seq})
	require.NotEqual(t, uuid.Nil, all[0].ID)

	loans, err := idx.Query(context.Background(), Filter{Type: "lending.loan.created"})
	require.NoError(t, err)
	require.Len(t, loans, 1)
	require.NotNil(t, loans[0].LoanID)
	require.Equal(t, uint64(1), *loans[0].LoanID)
	evt, err := loans[0].Event()
	require.NoError(t, err)
	require.Equal(t, "1", evt.Attributes["loanId"])

	pool := uint64(1)
	byPool, err := idx.Query(context.Background(), Filter{PoolID: &pool})
	require.NoError(t, err)
	require.Len(t, byPool, 2)

	page, err := idx.Query(context.Background(), Filter{After: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, uint64(2), page[0].Seq)
}

func TestNewResumesSequence(t *testing.T) {
	idx, db := newTestIndexer(t)
	_, err := idx.Append(context.Background(), &types.Event{Type: "lending.protocol.paused"})
	require.NoError(t, err)

	resumed, err := New(db, nil)
	require.NoError(t, err)
	record, err := resumed.Append(context.Background(), &types.Event{Type: "lending.protocol.unpaused"})
	require.NoError(t, err)
	require.Equal(t, uint64(2), record.Seq)
}

func TestDialectorFor(t *testing.T) {
	_, err := dialectorFor("postgres://lend@localhost:5432/lending")
	require.NoError(t, err)
	_, err = dialectorFor("sqlite:/tmp/events.db")
	require.NoError(t, err)
	_, err = dialectorFor("sqlite:")
	require.Error(t, err)
	_, err = dialectorFor("mysql://root@localhost/lending")
	require.Error(t, err)
}
