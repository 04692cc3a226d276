package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNoDocuments is returned by FindOne when nothing matches.
var ErrNoDocuments = mongo.ErrNoDocuments

// QueryBuilder provides a fluent interface for MongoDB queries
type QueryBuilder struct {
	collection *mongo.Collection
	filter     bson.M
	sort       bson.D
	limit      *int64
}

// NewQuery creates a new query builder for a collection
func (c *Client) NewQuery(collectionName string) *QueryBuilder {
	return &QueryBuilder{
		collection: c.Collection(collectionName),
		filter:     bson.M{},
	}
}

// Eq adds an equality filter
func (q *QueryBuilder) Eq(field string, value interface{}) *QueryBuilder {
	q.filter[field] = value
	return q
}

// In adds an "in" filter
func (q *QueryBuilder) In(field string, values interface{}) *QueryBuilder {
	q.filter[field] = bson.M{"$in": values}
	return q
}

// Limit sets the limit
func (q *QueryBuilder) Limit(limit int64) *QueryBuilder {
	q.limit = &limit
	return q
}

// Sort appends a sort key; call repeatedly for tie-breakers
func (q *QueryBuilder) Sort(field string, ascending bool) *QueryBuilder {
	direction := 1
	if !ascending {
		direction = -1
	}
	q.sort = append(q.sort, bson.E{Key: field, Value: direction})
	return q
}

// Find decodes every matching document into results, which must be a
// pointer to a slice.
func (q *QueryBuilder) Find(ctx context.Context, results interface{}) error {
	opts := options.Find()
	if q.limit != nil {
		opts.SetLimit(*q.limit)
	}
	if len(q.sort) > 0 {
		opts.SetSort(q.sort)
	}

	cursor, err := q.collection.Find(ctx, q.filter, opts)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	return cursor.All(ctx, results)
}

// FindOne decodes the first matching document into result. It returns
// ErrNoDocuments when nothing matches.
func (q *QueryBuilder) FindOne(ctx context.Context, result interface{}) error {
	opts := options.FindOne()
	if len(q.sort) > 0 {
		opts.SetSort(q.sort)
	}
	return q.collection.FindOne(ctx, q.filter, opts).Decode(result)
}

// Count returns the count of matching documents
func (q *QueryBuilder) Count(ctx context.Context) (int64, error) {
	return q.collection.CountDocuments(ctx, q.filter)
}

// Insert inserts a document
func (q *QueryBuilder) Insert(ctx context.Context, document interface{}) error {
	_, err := q.collection.InsertOne(ctx, document)
	return err
}

// InsertIfAbsent inserts document unless one matches the builder's filter.
// It reports whether a new document was created.
func (q *QueryBuilder) InsertIfAbsent(ctx context.Context, document interface{}) (bool, error) {
	opts := options.Update().SetUpsert(true)
	result, err := q.collection.UpdateOne(ctx, q.filter, bson.M{"$setOnInsert": document}, opts)
	if mongo.IsDuplicateKeyError(err) {
		// Lost a race with a concurrent upsert for the same key.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return result.UpsertedCount == 1, nil
}

// UpdateOne sets fields on the first matching document and reports whether
// one matched.
func (q *QueryBuilder) UpdateOne(ctx context.Context, update interface{}) (bool, error) {
	result, err := q.collection.UpdateOne(ctx, q.filter, bson.M{"$set": update})
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

// IsNotFound reports whether err means no document matched.
func IsNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
