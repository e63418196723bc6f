package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("lending/pool/1"), []byte("basket")))
	value, err := db.Get([]byte("lending/pool/1"))
	require.NoError(t, err)
	require.Equal(t, []byte("basket"), value)

	require.NoError(t, db.Put([]byte("lending/pool/1"), []byte("updated")))
	value, err = db.Get([]byte("lending/pool/1"))
	require.NoError(t, err)
	require.Equal(t, []byte("updated"), value)

	require.NoError(t, db.Delete([]byte("lending/pool/1")))
	_, err = db.Get([]byte("lending/pool/1"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	buf := []byte("value")
	require.NoError(t, db.Put([]byte("k"), buf))
	buf[0] = 'X'
	value, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), value)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "ldb"))
	require.NoError(t, err)
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestBoltDB(t *testing.T) {
	db, err := NewBoltDB(filepath.Join(t.TempDir(), "records.db"), nil)
	require.NoError(t, err)
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestBoltDBPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	db, err := NewBoltDB(path, nil)
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("lending/fees/x"), []byte("42")))
	require.NoError(t, db.Close())

	reopened, err := NewBoltDB(path, nil)
	require.NoError(t, err)
	defer reopened.Close()
	value, err := reopened.Get([]byte("lending/fees/x"))
	require.NoError(t, err)
	require.Equal(t, []byte("42"), value)
}
