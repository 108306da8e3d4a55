package docstore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore maps the store contract onto a hosted MongoDB database: one
// Mongo collection per logical collection, document id in _id, merge as a
// $set upsert, BatchWrite as a BulkWrite. The engine-level caps
// (MaxDisjunctions, MaxBatchOps) are still enforced here even though the
// native engine would allow more.
type MongoStore struct {
	db  *mongo.Database
	now func() int64
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db, now: func() int64 { return time.Now().UTC().Unix() }}
}

// OpenMongo connects and pings the hosted database.
func OpenMongo(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return NewMongoStore(client.Database(dbName)), nil
}

func (m *MongoStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	var raw bson.M
	err := m.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Doc{}, ErrNotFound
		}
		return Doc{}, err
	}
	delete(raw, "_id")
	return Doc{Collection: collection, ID: id, Fields: Fields(raw)}, nil
}

func (m *MongoStore) Set(ctx context.Context, collection, id string, fields Fields, merge bool) error {
	resolved := resolveTimestamps(fields, m.now())
	coll := m.db.Collection(collection)
	if merge {
		_, err := coll.UpdateOne(ctx,
			bson.M{"_id": id},
			bson.M{"$set": bson.M(resolved)},
			options.Update().SetUpsert(true))
		return err
	}
	body := bson.M(resolved)
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, body, options.Replace().SetUpsert(true))
	return err
}

func (m *MongoStore) Delete(ctx context.Context, collection, id string) error {
	_, err := m.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (m *MongoStore) BatchWrite(ctx context.Context, ops []WriteOp) error {
	if err := validateBatch(ops); err != nil {
		return err
	}
	now := m.now()
	byColl := map[string][]mongo.WriteModel{}
	for _, op := range ops {
		switch {
		case op.Delete:
			byColl[op.Collection] = append(byColl[op.Collection],
				mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": op.ID}))
		case op.Merge:
			byColl[op.Collection] = append(byColl[op.Collection],
				mongo.NewUpdateOneModel().
					SetFilter(bson.M{"_id": op.ID}).
					SetUpdate(bson.M{"$set": bson.M(resolveTimestamps(op.Fields, now))}).
					SetUpsert(true))
		default:
			byColl[op.Collection] = append(byColl[op.Collection],
				mongo.NewReplaceOneModel().
					SetFilter(bson.M{"_id": op.ID}).
					SetReplacement(bson.M(resolveTimestamps(op.Fields, now))).
					SetUpsert(true))
		}
	}
	for coll, models := range byColl {
		if _, err := m.db.Collection(coll).BulkWrite(ctx, models); err != nil {
			return err
		}
	}
	return nil
}

func (m *MongoStore) Run(ctx context.Context, q Query) ([]Doc, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	filter := bson.M{}
	for _, w := range q.Wheres {
		field := w.Field
		if field == FieldID {
			field = "_id"
		}
		switch w.Op {
		case OpEqual:
			filter[field] = w.Value
		case OpGreaterOrEqual:
			filter[field] = mergeRange(filter[field], "$gte", w.Value)
		case OpLess:
			filter[field] = mergeRange(filter[field], "$lt", w.Value)
		case OpIn, OpArrayContainsAny:
			// $in matches scalar fields and any member of array fields,
			// which covers both predicate flavours.
			filter[field] = bson.M{"$in": w.Value.([]string)}
		}
	}
	opts := options.Find()
	if q.OrderField != "" {
		dir := 1
		if q.Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderField, Value: dir}})
	}
	if q.LimitN > 0 {
		opts.SetLimit(int64(q.LimitN))
	}
	cur, err := m.db.Collection(q.Collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []Doc
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		id, _ := raw["_id"].(string)
		delete(raw, "_id")
		out = append(out, Doc{Collection: q.Collection, ID: id, Fields: Fields(raw)})
	}
	return out, cur.Err()
}

func mergeRange(existing interface{}, op string, value interface{}) bson.M {
	rng, ok := existing.(bson.M)
	if !ok {
		rng = bson.M{}
	}
	rng[op] = value
	return rng
}
