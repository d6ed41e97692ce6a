package recognizer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"song-recognition/db"
	"song-recognition/models"
	"song-recognition/provider"
)

type itemsChange struct {
	position, removed, added int
}

type changeLog struct {
	mu      sync.Mutex
	changes []itemsChange
}

func (l *changeLog) record(position, removed, added int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, itemsChange{position, removed, added})
}

func (l *changeLog) all() []itemsChange {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]itemsChange(nil), l.changes...)
}

func newTestStore(t *testing.T) db.Store {
	t.Helper()
	store, err := db.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestRecordings(t *testing.T) (*Recordings, db.Store) {
	t.Helper()
	store := newTestStore(t)
	recordings, err := LoadRecordings(context.Background(), store)
	require.NoError(t, err)
	return recordings, store
}

func storeCount(t *testing.T, store db.Store) int {
	t.Helper()
	ctx := context.Background()

	table, err := store.Table(ctx, recordingsTable)
	require.NoError(t, err)

	var n int
	require.NoError(t, table.View(ctx, func(tx db.ReadTx) error {
		var err error
		n, err = tx.Count()
		return err
	}))
	return n
}

// assertInSync checks the list against the stored rows one by one.
func assertInSync(t *testing.T, recordings *Recordings, store db.Store) {
	t.Helper()
	ctx := context.Background()

	table, err := store.Table(ctx, recordingsTable)
	require.NoError(t, err)

	require.NoError(t, table.View(ctx, func(tx db.ReadTx) error {
		n, err := tx.Count()
		require.NoError(t, err)
		require.Equal(t, recordings.Len(), n)

		for i := 0; i < recordings.Len(); i++ {
			rec, ok := recordings.at(i)
			require.True(t, ok)

			stored, found, err := tx.Get(rec.Key())
			require.NoError(t, err)
			require.True(t, found)

			expected, err := json.Marshal(rec)
			require.NoError(t, err)
			assert.JSONEq(t, string(expected), string(stored))
		}
		return nil
	}))
}

func testRecording(b string) *Recording {
	return NewRecording([]byte(b), time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
}

func insertAll(t *testing.T, recordings *Recordings, names ...string) []*Recording {
	t.Helper()
	var recs []*Recording
	for _, name := range names {
		rec := testRecording(name)
		require.NoError(t, recordings.Insert(context.Background(), rec))
		recs = append(recs, rec)
	}
	return recs
}

func TestLoadRecordings(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	table, err := store.Table(ctx, recordingsTable)
	require.NoError(t, err)

	song := models.NewSong(models.UidFrom("Test", "1"), "Title", "Artist", "Album")
	a := testRecording("a")
	b := testRecording("b")
	b.applyAttempt(song, nil)

	require.NoError(t, table.Update(ctx, func(tx db.WriteTx) error {
		for key, rec := range map[string]*Recording{"0002": b, "0001": a} {
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := tx.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	}))

	recordings, err := LoadRecordings(ctx, store)
	require.NoError(t, err)
	require.Equal(t, 2, recordings.Len())

	first, _ := recordings.at(0)
	second, _ := recordings.at(1)
	assert.Equal(t, "0001", first.Key())
	assert.Equal(t, []byte("a"), first.Bytes())
	assert.Nil(t, first.RecognizeResult())
	assert.Equal(t, "0002", second.Key())
	assert.True(t, second.IsReadyToTake())
	assert.Equal(t, "Title", second.RecognizeResult().Song.Title)

	assertInSync(t, recordings, store)
}

func TestLoadRecordingsRejectsCorruptEntry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	table, err := store.Table(ctx, recordingsTable)
	require.NoError(t, err)
	require.NoError(t, table.Update(ctx, func(tx db.WriteTx) error {
		return tx.Put("0001", []byte("{not json"))
	}))

	_, err = LoadRecordings(ctx, store)
	assert.Error(t, err)
}

func TestInsert(t *testing.T) {
	recordings, store := newTestRecordings(t)
	assert.Equal(t, 0, recordings.Len())
	assert.Equal(t, 0, storeCount(t, store))

	var log changeLog
	recordings.OnItemsChanged(log.record)

	recs := insertAll(t, recordings, "a", "b")
	assert.Equal(t, 2, recordings.Len())
	assert.Equal(t, 2, storeCount(t, store))
	assert.NotEmpty(t, recs[0].Key())
	assert.Less(t, recs[0].Key(), recs[1].Key())

	assert.Equal(t, []itemsChange{{0, 0, 1}, {1, 0, 1}}, log.all())
	assertInSync(t, recordings, store)
}

func TestPeekFilteredIsReadOnly(t *testing.T) {
	recordings, store := newTestRecordings(t)
	recs := insertAll(t, recordings, "a", "b", "c")

	var log changeLog
	unsubscribe := recordings.OnItemsChanged(log.record)
	defer unsubscribe()

	for i := 0; i < 3; i++ {
		assert.Len(t, recordings.PeekFiltered(func(*Recording) bool { return true }), 3)
		assert.Empty(t, recordings.PeekFiltered(func(*Recording) bool { return false }))
	}
	peeked := recordings.PeekFiltered(func(r *Recording) bool { return string(r.Bytes()) == "b" })
	require.Len(t, peeked, 1)
	assert.Same(t, recs[1], peeked[0])

	assert.Empty(t, log.all())
	assert.Equal(t, 3, recordings.Len())
	assert.Equal(t, 3, storeCount(t, store))
}

func TestTakeFilteredAll(t *testing.T) {
	recordings, store := newTestRecordings(t)
	insertAll(t, recordings, "a", "b", "c")

	taken, err := recordings.TakeFiltered(context.Background(), func(*Recording) bool { return true })
	require.NoError(t, err)
	assert.Len(t, taken, 3)

	assert.Empty(t, recordings.PeekFiltered(func(*Recording) bool { return true }))
	assert.Equal(t, 0, storeCount(t, store))
}

func TestTakeFilteredFirstOfTwo(t *testing.T) {
	recordings, store := newTestRecordings(t)
	recs := insertAll(t, recordings, "a", "b")

	var log changeLog
	recordings.OnItemsChanged(log.record)

	taken, err := recordings.TakeFiltered(context.Background(), func(r *Recording) bool { return r == recs[0] })
	require.NoError(t, err)
	require.Len(t, taken, 1)
	assert.Same(t, recs[0], taken[0])

	remaining, ok := recordings.at(0)
	require.True(t, ok)
	assert.Same(t, recs[1], remaining)
	assert.Equal(t, []itemsChange{{0, 1, 0}}, log.all())
	assertInSync(t, recordings, store)
}

func TestTakeFilteredCoalescesRanges(t *testing.T) {
	recordings, store := newTestRecordings(t)
	recs := insertAll(t, recordings, "a", "b", "c", "d", "e")

	var log changeLog
	recordings.OnItemsChanged(log.record)

	keep := map[*Recording]bool{recs[2]: true, recs[4]: true}
	taken, err := recordings.TakeFiltered(context.Background(), func(r *Recording) bool { return !keep[r] })
	require.NoError(t, err)
	assert.Equal(t, []*Recording{recs[0], recs[1], recs[3]}, taken)

	// a+b leave from 0, then d sits at 1 behind c
	assert.Equal(t, []itemsChange{{0, 2, 0}, {1, 1, 0}}, log.all())
	assert.Equal(t, []*Recording{recs[2], recs[4]}, recordings.PeekFiltered(func(*Recording) bool { return true }))
	assertInSync(t, recordings, store)
}

func TestTakeFilteredNothing(t *testing.T) {
	recordings, _ := newTestRecordings(t)
	insertAll(t, recordings, "a")

	var log changeLog
	recordings.OnItemsChanged(log.record)

	taken, err := recordings.TakeFiltered(context.Background(), func(*Recording) bool { return false })
	require.NoError(t, err)
	assert.Empty(t, taken)
	assert.Empty(t, log.all())
}

func TestRecordAttemptPersists(t *testing.T) {
	ctx := context.Background()
	recordings, store := newTestRecordings(t)
	recs := insertAll(t, recordings, "a", "b")

	var log changeLog
	recordings.OnItemsChanged(log.record)

	require.NoError(t, recordings.RecordAttempt(ctx, recs[1], nil, provider.NewRecognizeError(provider.TokenLimitReached, "")))
	assert.Equal(t, 1, recs[1].RecognizeRetries())
	assert.False(t, recs[1].IsReadyToTake())
	assertInSync(t, recordings, store)

	song := models.NewSong(models.UidFrom("Test", "1"), "Title", "Artist", "Album")
	require.NoError(t, recordings.RecordAttempt(ctx, recs[1], song, nil))
	assert.True(t, recs[1].IsReadyToTake())
	assertInSync(t, recordings, store)

	assert.Equal(t, []itemsChange{{1, 1, 1}, {1, 1, 1}}, log.all())

	reloaded, err := LoadRecordings(ctx, store)
	require.NoError(t, err)
	rec, _ := reloaded.at(1)
	assert.True(t, rec.IsReadyToTake())
	assert.Equal(t, 0, rec.RecognizeRetries())
}

func TestRecordAttemptUnknownRecording(t *testing.T) {
	recordings, _ := newTestRecordings(t)
	err := recordings.RecordAttempt(context.Background(), testRecording("x"), nil, provider.NewRecognizeError(provider.Connection, ""))
	assert.ErrorIs(t, err, ErrRecordingNotFound)
}
