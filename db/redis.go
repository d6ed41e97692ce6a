package db

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mdobak/go-xerrors"
)

const redisKeyPrefix = "song-recognition:"

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, host, port, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := client.Ping(pingCtx).Result(); err != nil {
		client.Close()
		return nil, xerrors.New("failed to connect to Redis", err)
	}

	return &RedisStore{client: client}, nil
}

// Table maps name onto a single hash.
func (s *RedisStore) Table(ctx context.Context, name string) (Table, error) {
	if err := validateTableName(name); err != nil {
		return nil, err
	}
	return &redisTable{client: s.client, name: name, hash: redisKeyPrefix + name}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

type redisTable struct {
	client *redis.Client
	name   string
	hash   string
}

func (t *redisTable) Name() string { return t.name }

func (t *redisTable) get(ctx context.Context) func(string) ([]byte, bool, error) {
	return func(key string) ([]byte, bool, error) {
		value, err := t.client.HGet(ctx, t.hash, key).Bytes()
		if err == redis.Nil {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, xerrors.New(fmt.Sprintf("failed to get %s", key), err)
		}
		return value, true, nil
	}
}

func (t *redisTable) all(ctx context.Context) func() ([]Entry, error) {
	return func() ([]Entry, error) {
		values, err := t.client.HGetAll(ctx, t.hash).Result()
		if err != nil && err != redis.Nil {
			return nil, xerrors.New("failed to list entries", err)
		}

		m := make(map[string][]byte, len(values))
		for k, v := range values {
			m[k] = []byte(v)
		}
		return sortedEntries(m), nil
	}
}

func (t *redisTable) View(ctx context.Context, fn func(ReadTx) error) error {
	return fn(readOnly{tx: newBufferedTx(t.get(ctx), t.all(ctx))})
}

func (t *redisTable) Update(ctx context.Context, fn func(WriteTx) error) error {
	tx := newBufferedTx(t.get(ctx), t.all(ctx))
	if err := fn(tx); err != nil {
		return err
	}
	if tx.empty() {
		return nil
	}

	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range tx.puts {
			pipe.HSet(ctx, t.hash, k, v)
		}
		for k := range tx.deletes {
			pipe.HDel(ctx, t.hash, k)
		}
		return nil
	})
	if err != nil {
		return xerrors.New("failed to commit transaction", err)
	}
	return nil
}
