package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

// DefaultMarkerField is the document field flagging a migrated document.
const DefaultMarkerField = "pgReplicated"

var (
	// ErrNoDatabase indicates the connection string does not name a database.
	ErrNoDatabase = errors.New("mongo connection string must name a database")

	// ErrNothingMarked indicates a marker update matched none of the given documents.
	ErrNothingMarked = errors.New("no documents matched the migration marker update")
)

// Store reads unmigrated documents from a MongoDB database and flags them once
// they are written to the destination.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	marker string
}

type Option func(*Store)

// WithMarkerField overrides the migration marker field name.
func WithMarkerField(field string) Option {
	return func(s *Store) {
		if field != "" {
			s.marker = field
		}
	}
}

// DatabaseName returns the database named in the path of a connection string.
func DatabaseName(uri string) (string, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return "", fmt.Errorf("invalid mongo connection string: %w", err)
	}
	if cs.Database == "" {
		return "", ErrNoDatabase
	}
	return cs.Database, nil
}

// Connect opens a client for uri and selects the database named in it.
func Connect(ctx context.Context, uri string, opts ...Option) (*Store, error) {
	dbName, err := DatabaseName(uri)
	if err != nil {
		return nil, err
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := &Store{
		client: client,
		db:     client.Database(dbName),
		marker: DefaultMarkerField,
	}
	for _, opt := range opts {
		opt(s)
	}
	slog.Debug("Connected to source database", slog.String("database", dbName), slog.String("marker_field", s.marker))
	return s, nil
}

// UnmigratedFilter matches documents whose marker is missing or null.
func UnmigratedFilter(marker string) bson.M {
	return bson.M{marker: nil}
}

// ProjectionDoc builds a find projection including exactly the given fields.
func ProjectionDoc(fields []string) bson.D {
	projection := make(bson.D, 0, len(fields))
	for _, f := range fields {
		projection = append(projection, bson.E{Key: f, Value: 1})
	}
	return projection
}

// FindUnmigrated returns up to limit documents of a collection that have not
// been migrated yet, ordered by _id.
func (s *Store) FindUnmigrated(ctx context.Context, collection string, projection []string, limit int) ([]map[string]any, error) {
	opts := options.Find().
		SetProjection(ProjectionDoc(projection)).
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := s.db.Collection(collection).Find(ctx, UnmigratedFilter(s.marker), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}

	var docs []map[string]any
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", collection, err)
	}
	return docs, nil
}

// MarkMigrated sets the marker on every document whose _id is in ids. A
// partial match is only logged; matching none of the ids is ErrNothingMarked.
func (s *Store) MarkMigrated(ctx context.Context, collection string, ids []any) error {
	if len(ids) == 0 {
		return nil
	}
	filter := bson.M{"_id": bson.M{"$in": ids}}
	update := bson.M{"$set": bson.M{s.marker: true}}

	res, err := s.db.Collection(collection).UpdateMany(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to mark documents of %s: %w", collection, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: collection %s, %d ids", ErrNothingMarked, collection, len(ids))
	}
	if res.MatchedCount != int64(len(ids)) {
		slog.Warn("Not all documents were matched when setting the migration marker",
			slog.String("collection", collection),
			slog.Int("expected", len(ids)),
			slog.Int64("matched", res.MatchedCount),
		)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
