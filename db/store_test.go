package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	stores := map[string]Store{}

	sqlite, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	stores["sqlite"] = sqlite

	if uri := os.Getenv("MONGO_URI"); uri != "" {
		mongo, err := NewMongoStore(ctx, uri, fmt.Sprintf("song_recognition_test_%d", time.Now().UnixNano()))
		require.NoError(t, err)
		stores["mongo"] = mongo
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		host, port, err := net.SplitHostPort(addr)
		require.NoError(t, err)
		redis, err := NewRedisStore(ctx, host, port, "", 15)
		require.NoError(t, err)
		stores["redis"] = redis
	}

	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func uniqueTable(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func TestTableRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			table, err := store.Table(ctx, uniqueTable("round_trip"))
			require.NoError(t, err)

			require.NoError(t, table.Update(ctx, func(tx WriteTx) error {
				require.NoError(t, tx.Put("b", []byte("2")))
				require.NoError(t, tx.Put("a", []byte("1")))
				require.NoError(t, tx.Put("c", []byte("3")))

				// writes are visible inside the transaction
				v, ok, err := tx.Get("a")
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, []byte("1"), v)
				return nil
			}))

			require.NoError(t, table.View(ctx, func(tx ReadTx) error {
				entries, err := tx.All()
				require.NoError(t, err)
				require.Len(t, entries, 3)
				assert.Equal(t, "a", entries[0].Key)
				assert.Equal(t, "b", entries[1].Key)
				assert.Equal(t, "c", entries[2].Key)

				n, err := tx.Count()
				require.NoError(t, err)
				assert.Equal(t, 3, n)

				_, ok, err := tx.Get("missing")
				require.NoError(t, err)
				assert.False(t, ok)
				return nil
			}))

			require.NoError(t, table.Update(ctx, func(tx WriteTx) error {
				require.NoError(t, tx.Put("a", []byte("updated")))
				return tx.Delete("b")
			}))

			require.NoError(t, table.View(ctx, func(tx ReadTx) error {
				entries, err := tx.All()
				require.NoError(t, err)
				require.Len(t, entries, 2)
				assert.Equal(t, Entry{Key: "a", Value: []byte("updated")}, entries[0])
				assert.Equal(t, "c", entries[1].Key)
				return nil
			}))
		})
	}
}

func TestUpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	failure := errors.New("boom")

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			table, err := store.Table(ctx, uniqueTable("rollback"))
			require.NoError(t, err)

			require.NoError(t, table.Update(ctx, func(tx WriteTx) error {
				return tx.Put("keep", []byte("1"))
			}))

			err = table.Update(ctx, func(tx WriteTx) error {
				require.NoError(t, tx.Put("new", []byte("x")))
				require.NoError(t, tx.Delete("keep"))
				return failure
			})
			assert.ErrorIs(t, err, failure)

			require.NoError(t, table.View(ctx, func(tx ReadTx) error {
				entries, err := tx.All()
				require.NoError(t, err)
				require.Len(t, entries, 1)
				assert.Equal(t, "keep", entries[0].Key)
				return nil
			}))
		})
	}
}

func TestInvalidTableName(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	for _, name := range []string{"", "1abc", `bad"name`, "drop table; --"} {
		_, err := store.Table(context.Background(), name)
		assert.Error(t, err, name)
	}
}

func TestSQLiteFilePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "recordings.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)

	table, err := store.Table(ctx, "recordings")
	require.NoError(t, err)
	require.NoError(t, table.Update(ctx, func(tx WriteTx) error {
		return tx.Put("k", []byte("v"))
	}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	table, err = reopened.Table(ctx, "recordings")
	require.NoError(t, err)
	require.NoError(t, table.View(ctx, func(tx ReadTx) error {
		v, ok, err := tx.Get("k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("v"), v)
		return nil
	}))
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore(context.Background(), Config{Type: "cassandra"})
	assert.Error(t, err)

	store, err := NewStore(context.Background(), Config{Type: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	store.Close()
}

func TestBufferedTxOverlay(t *testing.T) {
	base := map[string][]byte{"a": []byte("1"), "b": []byte("2")}
	tx := newBufferedTx(
		func(k string) ([]byte, bool, error) { v, ok := base[k]; return v, ok, nil },
		func() ([]Entry, error) { return sortedEntries(base), nil },
	)

	require.NoError(t, tx.Delete("a"))
	require.NoError(t, tx.Put("c", []byte("3")))
	require.NoError(t, tx.Put("a", []byte("again")))
	require.NoError(t, tx.Delete("c"))

	entries, err := tx.All()
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Key: "a", Value: []byte("again")}, {Key: "b", Value: []byte("2")}}, entries)

	_, ok, err := tx.Get("c")
	require.NoError(t, err)
	assert.False(t, ok)
}
