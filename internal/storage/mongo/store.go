package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"

	"example.com/analytics/internal/domain"
	"example.com/analytics/internal/storage"
)

const collectionName = "events"

type document struct {
	ID            string    `bson:"_id"`
	MeasurementID string    `bson:"measurement_id"`
	EventType     string    `bson:"event_type"`
	UserID        *string   `bson:"user_id,omitempty"`
	Timestamp     time.Time `bson:"ts"`
	Processed     bool      `bson:"processed"`
	Payload       string    `bson:"payload"`
}

// Store keeps one document per envelope. Batches are written inside a
// transaction, which requires a replica set.
type Store struct {
	client *mongodriver.Client
	coll   *mongodriver.Collection
}

func Connect(ctx context.Context, uri, database string) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetMonitor(otelmongo.NewMonitor())
	client, err := mongodriver.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}
	s := New(client, database)
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func New(client *mongodriver.Client, database string) *Store {
	return &Store{client: client, coll: client.Database(database).Collection(collectionName)}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongodriver.IndexModel{
		{Keys: bson.D{{Key: "ts", Value: 1}}},
		{Keys: bson.D{{Key: "measurement_id", Value: 1}, {Key: "ts", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// StoreEvents upserts every envelope in one transaction, so a replayed
// batch leaves a single copy of each event.
func (s *Store) StoreEvents(ctx context.Context, batch []*domain.EventEnvelope) error {
	if len(batch) == 0 {
		return nil
	}
	models := make([]mongodriver.WriteModel, 0, len(batch))
	for _, env := range batch {
		r, err := storage.ToRow(env)
		if err != nil {
			return err
		}
		doc := document{
			ID:            r.EventID.String(),
			MeasurementID: r.MeasurementID,
			EventType:     r.EventType,
			UserID:        r.UserID,
			Timestamp:     r.Timestamp,
			Processed:     r.Processed,
			Payload:       string(r.Payload),
		}
		models = append(models, mongodriver.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: doc.ID}}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(context.Background())

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	})
	if err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*domain.EventEnvelope, error) {
	var doc document
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id.String()}}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return storage.Row{EventID: id, Payload: []byte(doc.Payload)}.Envelope()
}

func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.D{{Key: "ts", Value: bson.D{{Key: "$lt", Value: cutoff}}}})
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }
