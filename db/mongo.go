package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mdobak/go-xerrors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

type mongoEntry struct {
	Key   string `bson:"_id"`
	Value []byte `bson:"value"`
}

// NewMongoStore connects to uri. transactions need a replica set or a
// sharded cluster.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, xerrors.New("failed to connect to mongo", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, xerrors.New("failed to ping mongo", err)
	}

	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (s *MongoStore) Table(ctx context.Context, name string) (Table, error) {
	if err := validateTableName(name); err != nil {
		return nil, err
	}
	return &mongoTable{client: s.client, coll: s.db.Collection(name)}, nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

type mongoTable struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func (t *mongoTable) Name() string { return t.coll.Name() }

func (t *mongoTable) get(ctx context.Context) func(string) ([]byte, bool, error) {
	return func(key string) ([]byte, bool, error) {
		var entry mongoEntry
		err := t.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&entry)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, xerrors.New(fmt.Sprintf("failed to get %s", key), err)
		}
		return entry.Value, true, nil
	}
}

func (t *mongoTable) all(ctx context.Context) func() ([]Entry, error) {
	return func() ([]Entry, error) {
		cursor, err := t.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
		if err != nil {
			return nil, xerrors.New("failed to list entries", err)
		}

		var docs []mongoEntry
		if err := cursor.All(ctx, &docs); err != nil {
			return nil, xerrors.New("failed to decode entries", err)
		}

		entries := make([]Entry, 0, len(docs))
		for _, d := range docs {
			entries = append(entries, Entry{Key: d.Key, Value: d.Value})
		}
		return entries, nil
	}
}

func (t *mongoTable) View(ctx context.Context, fn func(ReadTx) error) error {
	return fn(readOnly{tx: newBufferedTx(t.get(ctx), t.all(ctx))})
}

func (t *mongoTable) Update(ctx context.Context, fn func(WriteTx) error) error {
	tx := newBufferedTx(t.get(ctx), t.all(ctx))
	if err := fn(tx); err != nil {
		return err
	}
	if tx.empty() {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(tx.puts)+len(tx.deletes))
	for k, v := range tx.puts {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": k}).
			SetReplacement(mongoEntry{Key: k, Value: v}).
			SetUpsert(true))
	}
	for k := range tx.deletes {
		models = append(models, mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": k}))
	}

	session, err := t.client.StartSession()
	if err != nil {
		return xerrors.New("failed to start mongo session", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return t.coll.BulkWrite(sc, models)
	})
	if err != nil {
		return xerrors.New("failed to commit transaction", err)
	}
	return nil
}
