// Package mongo keeps the reservation record as one document, the way the
// reservation data has historically been stored in MongoDB deployments.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tablebook/internal/domain"
	"tablebook/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const recordID = "slots"

// document mirrors the stored shape. BSON keys must be strings.
type document struct {
	ID        string                                  `bson:"_id"`
	Version   int64                                   `bson:"version"`
	Data      map[string]map[string]map[string]string `bson:"data"`
	UpdatedAt time.Time                               `bson:"updatedAt"`
}

type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func Open(ctx context.Context, uri, database, collection string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &Store{client: client, coll: client.Database(database).Collection(collection)}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.client.Ping(ctx, nil)
}

func (s *Store) Load(ctx context.Context) (*models.SlotRecord, error) {
	var doc document
	err := s.coll.FindOne(ctx, bson.M{"_id": recordID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.NewSlotRecord(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("find slot record: %w", err)
	}
	return fromDocument(doc)
}

// Commit upserts on the expected version. A concurrent writer either makes
// the filter miss an existing document, which turns the upsert into a
// duplicate _id insert, or is matched by nobody.
func (s *Store) Commit(ctx context.Context, record *models.SlotRecord) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": recordID, "version": record.Version},
		bson.M{
			"$set": bson.M{"data": toDocumentData(record), "updatedAt": time.Now().UTC()},
			"$inc": bson.M{"version": 1},
		},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrConcurrentModification
	}
	if err != nil {
		return fmt.Errorf("update slot record: %w", err)
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return domain.ErrConcurrentModification
	}
	record.Version++
	return nil
}

func toDocumentData(record *models.SlotRecord) map[string]map[string]map[string]string {
	out := make(map[string]map[string]map[string]string, len(record.Data))
	for table, dates := range record.Data {
		tableDoc := make(map[string]map[string]string, len(dates))
		for date, slots := range dates {
			dateDoc := make(map[string]string, len(slots))
			for interval, holder := range slots {
				dateDoc[strconv.Itoa(int(interval))] = holder
			}
			tableDoc[date] = dateDoc
		}
		out[models.TableKey(table)] = tableDoc
	}
	return out
}

func fromDocument(doc document) (*models.SlotRecord, error) {
	record := models.NewSlotRecord()
	record.Version = doc.Version
	for tableKey, dates := range doc.Data {
		table, err := strconv.Atoi(tableKey)
		if err != nil {
			return nil, fmt.Errorf("bad table key %q: %w", tableKey, err)
		}
		for date, slots := range dates {
			for intervalKey, holder := range slots {
				interval, err := strconv.Atoi(intervalKey)
				if err != nil {
					return nil, fmt.Errorf("bad interval key %q: %w", intervalKey, err)
				}
				record.Set(models.SlotKey{Table: table, Date: date, Interval: models.Interval(interval)}, holder)
			}
		}
	}
	return record, nil
}
