package db

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Entry is a single key/value row of a table.
type Entry struct {
	Key   string
	Value []byte
}

// ReadTx is a consistent read view of a table.
type ReadTx interface {
	Get(key string) ([]byte, bool, error)
	// All returns every entry ordered by key.
	All() ([]Entry, error)
	Count() (int, error)
}

// WriteTx buffers writes that are committed together.
type WriteTx interface {
	ReadTx
	Put(key string, value []byte) error
	Delete(key string) error
}

// Table is a named key/value table. Update commits when fn returns nil and
// discards every write otherwise.
type Table interface {
	Name() string
	View(ctx context.Context, fn func(ReadTx) error) error
	Update(ctx context.Context, fn func(WriteTx) error) error
}

// Store hands out tables backed by one database connection.
type Store interface {
	Table(ctx context.Context, name string) (Table, error)
	Close() error
}

type Config struct {
	Type          string
	Path          string
	MongoURI      string
	MongoDB       string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
}

// NewStore opens the backend named by cfg.Type, defaulting to sqlite.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "mongo", "mongodb":
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
	case "redis":
		return NewRedisStore(ctx, cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword, cfg.RedisDB)
	case "sqlite", "sqlite3", "":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateTableName(name string) error {
	if !tableNameRe.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// bufferedTx layers pending writes over a committed snapshot reader. backends
// without native interactive transactions apply the pending set atomically
// on commit.
type bufferedTx struct {
	get     func(key string) ([]byte, bool, error)
	all     func() ([]Entry, error)
	puts    map[string][]byte
	deletes map[string]struct{}
}

func newBufferedTx(get func(string) ([]byte, bool, error), all func() ([]Entry, error)) *bufferedTx {
	return &bufferedTx{
		get:     get,
		all:     all,
		puts:    map[string][]byte{},
		deletes: map[string]struct{}{},
	}
}

func (tx *bufferedTx) Get(key string) ([]byte, bool, error) {
	if _, ok := tx.deletes[key]; ok {
		return nil, false, nil
	}
	if v, ok := tx.puts[key]; ok {
		return v, true, nil
	}
	return tx.get(key)
}

func (tx *bufferedTx) All() ([]Entry, error) {
	base, err := tx.all()
	if err != nil {
		return nil, err
	}

	merged := make(map[string][]byte, len(base)+len(tx.puts))
	for _, e := range base {
		merged[e.Key] = e.Value
	}
	for k, v := range tx.puts {
		merged[k] = v
	}
	for k := range tx.deletes {
		delete(merged, k)
	}

	return sortedEntries(merged), nil
}

func (tx *bufferedTx) Count() (int, error) {
	entries, err := tx.All()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (tx *bufferedTx) Put(key string, value []byte) error {
	delete(tx.deletes, key)
	tx.puts[key] = append([]byte(nil), value...)
	return nil
}

func (tx *bufferedTx) Delete(key string) error {
	delete(tx.puts, key)
	tx.deletes[key] = struct{}{}
	return nil
}

func (tx *bufferedTx) empty() bool {
	return len(tx.puts) == 0 && len(tx.deletes) == 0
}

func sortedEntries(m map[string][]byte) []Entry {
	entries := make([]Entry, 0, len(m))
	for k, v := range m {
		entries = append(entries, Entry{Key: k, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

// readOnly hides the write methods of a buffered transaction.
type readOnly struct {
	tx *bufferedTx
}

func (r readOnly) Get(key string) ([]byte, bool, error) { return r.tx.Get(key) }
func (r readOnly) All() ([]Entry, error)                 { return r.tx.All() }
func (r readOnly) Count() (int, error)                   { return r.tx.Count() }
