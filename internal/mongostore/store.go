// Package mongostore reads test records from the lab's MongoDB collection.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/banshee-data/listeria.report/internal/samples"
)

// Store implements samples.Store over a Mongo collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ samples.Store = (*Store)(nil)

// New connects to uri and verifies the server is reachable.
func New(ctx context.Context, uri, database, collection string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetConnectTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return &Store{client: client, coll: client.Database(database).Collection(collection)}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Query loads every document matching f.
func (s *Store) Query(ctx context.Context, f samples.Filter) ([]samples.Record, error) {
	cur, err := s.coll.Find(ctx, buildFilter(f))
	if err != nil {
		return nil, fmt.Errorf("failed to query lab results: %w", err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode lab results: %w", err)
	}
	out := make([]samples.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, recordFromDoc(d))
	}
	return out, nil
}

// buildFilter translates f into a Mongo query document: field existence for
// the coordinates, equality for the categorical fields.
func buildFilter(f samples.Filter) bson.D {
	q := bson.D{}
	if f.RequireLocation {
		q = append(q,
			bson.E{Key: "x", Value: bson.D{{Key: "$exists", Value: true}, {Key: "$ne", Value: nil}}},
			bson.E{Key: "y", Value: bson.D{{Key: "$exists", Value: true}, {Key: "$ne", Value: nil}}},
		)
	}
	if f.FreshSmoked != "" {
		q = append(q, bson.E{Key: "fresh_smoked", Value: f.FreshSmoked})
	}
	if f.BeforeDuring != "" {
		q = append(q, bson.E{Key: "before_during", Value: f.BeforeDuring})
	}
	return q
}

// recordFromDoc normalises BSON-specific types before the generic field
// conversion.
func recordFromDoc(doc bson.M) samples.Record {
	fields := make(map[string]any, len(doc))
	for k, v := range doc {
		switch t := v.(type) {
		case primitive.ObjectID:
			fields[k] = t.Hex()
		case primitive.DateTime:
			fields[k] = t.Time().UTC()
		case primitive.Decimal128:
			fields[k] = t.String()
		case primitive.Null, primitive.Undefined:
			fields[k] = nil
		default:
			fields[k] = v
		}
	}
	return samples.FromFields(fields)
}
