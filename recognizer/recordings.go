package recognizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"song-recognition/db"
	"song-recognition/logger"
	"song-recognition/models"
	"song-recognition/provider"
)

const recordingsTable = "saved_recordings"

var ErrRecordingNotFound = errors.New("recording is not in the saved recordings")

// ItemsChangedFunc is called after the list changed: at position, removed
// items were replaced by added items.
type ItemsChangedFunc func(position, removed, added int)

// Recordings is the persisted queue of recordings waiting for a retry. every
// change is written to the table before listeners hear about it.
type Recordings struct {
	mu    sync.Mutex
	table db.Table
	list  []*Recording

	handlersMu sync.Mutex
	handlers   map[int]ItemsChangedFunc
	nextID     int
}

// LoadRecordings reads every saved recording from store, oldest first.
func LoadRecordings(ctx context.Context, store db.Store) (*Recordings, error) {
	table, err := store.Table(ctx, recordingsTable)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", recordingsTable, err)
	}

	var list []*Recording
	err = table.View(ctx, func(tx db.ReadTx) error {
		entries, err := tx.All()
		if err != nil {
			return err
		}
		for _, e := range entries {
			rec := &Recording{}
			if err := json.Unmarshal(e.Value, rec); err != nil {
				return fmt.Errorf("failed to decode recording %s: %w", e.Key, err)
			}
			rec.key = e.Key
			list = append(list, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load saved recordings: %w", err)
	}

	logger.Debug("[recordings] loaded", logger.Int("count", len(list)))

	return &Recordings{
		table:    table,
		list:     list,
		handlers: map[int]ItemsChangedFunc{},
	}, nil
}

// OnItemsChanged registers fn and returns a func that removes it.
func (r *Recordings) OnItemsChanged(fn ItemsChangedFunc) func() {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()

	id := r.nextID
	r.nextID++
	r.handlers[id] = fn

	return func() {
		r.handlersMu.Lock()
		defer r.handlersMu.Unlock()
		delete(r.handlers, id)
	}
}

func (r *Recordings) itemsChanged(position, removed, added int) {
	r.handlersMu.Lock()
	handlers := make([]ItemsChangedFunc, 0, len(r.handlers))
	for _, fn := range r.handlers {
		handlers = append(handlers, fn)
	}
	r.handlersMu.Unlock()

	for _, fn := range handlers {
		fn(position, removed, added)
	}
}

func (r *Recordings) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.list)
}

// at returns the recording at index i.
func (r *Recordings) at(i int) (*Recording, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i < 0 || i >= len(r.list) {
		return nil, false
	}
	return r.list[i], true
}

var (
	keyMu         sync.Mutex
	lastKeyMicros int64
)

// generateKey returns a key that sorts by insertion time.
func generateKey() string {
	keyMu.Lock()
	micros := time.Now().UnixMicro()
	if micros <= lastKeyMicros {
		micros = lastKeyMicros + 1
	}
	lastKeyMicros = micros
	keyMu.Unlock()

	return fmt.Sprintf("%016x-%08x", micros, rand.Uint32())
}

// Insert appends rec and persists it.
func (r *Recordings) Insert(ctx context.Context, rec *Recording) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode recording: %w", err)
	}

	r.mu.Lock()
	key := generateKey()
	err = r.table.Update(ctx, func(tx db.WriteTx) error {
		return tx.Put(key, data)
	})
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to save recording: %w", err)
	}

	rec.mu.Lock()
	rec.key = key
	rec.mu.Unlock()

	r.list = append(r.list, rec)
	position := len(r.list) - 1
	r.mu.Unlock()

	logger.Debug("[recordings] inserted", logger.String("key", key), logger.Int("position", position))
	r.itemsChanged(position, 0, 1)
	return nil
}

// PeekFiltered returns the recordings matching fn without changing anything.
func (r *Recordings) PeekFiltered(fn func(*Recording) bool) []*Recording {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*Recording
	for _, rec := range r.list {
		if fn(rec) {
			matched = append(matched, rec)
		}
	}
	return matched
}

type itemsRange struct {
	position, count int
}

// TakeFiltered removes the recordings matching fn from the list and the
// store and returns them. the store deletes happen in one transaction and
// listeners get one notification per contiguous run of removed items.
func (r *Recordings) TakeFiltered(ctx context.Context, fn func(*Recording) bool) ([]*Recording, error) {
	r.mu.Lock()

	var (
		taken  []*Recording
		kept   []*Recording
		ranges []itemsRange
	)
	for i, rec := range r.list {
		if !fn(rec) {
			kept = append(kept, rec)
			continue
		}

		// positions are relative to the list after earlier ranges were removed
		position := i - len(taken)
		if n := len(ranges); n > 0 && ranges[n-1].position == position {
			ranges[n-1].count++
		} else {
			ranges = append(ranges, itemsRange{position: position, count: 1})
		}
		taken = append(taken, rec)
	}

	if len(taken) == 0 {
		r.mu.Unlock()
		return nil, nil
	}

	err := r.table.Update(ctx, func(tx db.WriteTx) error {
		for _, rec := range taken {
			if err := tx.Delete(rec.Key()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("failed to delete taken recordings: %w", err)
	}

	r.list = kept
	r.mu.Unlock()

	logger.Debug("[recordings] taken", logger.Int("count", len(taken)), logger.Int("ranges", len(ranges)))
	for _, rg := range ranges {
		r.itemsChanged(rg.position, rg.count, 0)
	}
	return taken, nil
}

// RecordAttempt stores the outcome of a recognition attempt on rec, which
// must still be in the list, and re-persists it.
func (r *Recordings) RecordAttempt(ctx context.Context, rec *Recording, song *models.Song, recognizeErr *provider.RecognizeError) error {
	r.mu.Lock()

	position := -1
	for i, item := range r.list {
		if item == rec {
			position = i
			break
		}
	}
	if position < 0 {
		r.mu.Unlock()
		return ErrRecordingNotFound
	}

	rec.mu.RLock()
	prevResult, prevRetries := rec.result, rec.retries
	rec.mu.RUnlock()

	rec.applyAttempt(song, recognizeErr)

	data, err := json.Marshal(rec)
	if err == nil {
		err = r.table.Update(ctx, func(tx db.WriteTx) error {
			return tx.Put(rec.Key(), data)
		})
	}
	if err != nil {
		rec.mu.Lock()
		rec.result, rec.retries = prevResult, prevRetries
		rec.mu.Unlock()
		r.mu.Unlock()
		return fmt.Errorf("failed to update recording: %w", err)
	}
	r.mu.Unlock()

	r.itemsChanged(position, 1, 1)
	return nil
}
