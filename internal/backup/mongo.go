package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/logger"
	"github.com/AbdulWasayUl/go-weather-etl/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCollection = "raw_payloads"

func ConnectMongoDB(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(ctxTimeout, nil); err != nil {
		return nil, err
	}

	logger.Info("Successfully connected to MongoDB!")
	return client, nil
}

func DisconnectMongoDB(ctx context.Context, client *mongo.Client) error {
	if err := client.Disconnect(ctx); err != nil {
		return err
	}
	logger.Info("Disconnected from MongoDB.")
	return nil
}

type mongoArtifact struct {
	Ref         string          `bson:"_id"`
	LocationKey string          `bson:"location_key"`
	Location    models.Location `bson:"location"`
	CollectedAt time.Time       `bson:"collected_at"`
	Payloads    []mongoPayload  `bson:"payloads"`
}

type mongoPayload struct {
	Name   string `bson:"name"`
	Kind   string `bson:"kind"`
	Tier   string `bson:"tier"`
	Units  string `bson:"units,omitempty"`
	Body   []byte `bson:"body"`
	SHA256 string `bson:"sha256"`
}

// MongoStore keeps one document per artifact. The whole artifact is a single
// insert, so it is either stored completely or not at all.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(ctx context.Context, client *mongo.Client, dbName string) (*MongoStore, error) {
	coll := client.Database(dbName).Collection(mongoCollection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "location_key", Value: 1}, {Key: "collected_at", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("creating backup index: %w", err)
	}
	return &MongoStore{coll: coll}, nil
}

func (s *MongoStore) Save(ctx context.Context, a *Artifact) (string, error) {
	if err := validate(a); err != nil {
		return "", err
	}
	ref := Key(a.Location, a.CollectedAt)

	doc := mongoArtifact{
		Ref:         ref,
		LocationKey: a.Location.Key(),
		Location:    a.Location,
		CollectedAt: a.CollectedAt.UTC(),
	}
	for _, np := range a.payloads() {
		doc.Payloads = append(doc.Payloads, mongoPayload{
			Name:   np.name,
			Kind:   string(np.payload.Kind),
			Tier:   np.payload.Tier,
			Units:  string(np.payload.Units),
			Body:   np.payload.Body,
			SHA256: checksum(np.payload.Body),
		})
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("%w: %s", ErrExists, ref)
		}
		return "", err
	}
	a.Ref = ref
	return ref, nil
}

func (s *MongoStore) Load(ctx context.Context, ref string) (*Artifact, error) {
	var doc mongoArtifact
	err := s.coll.FindOne(ctx, bson.M{"_id": ref}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, err
	}

	a := &Artifact{Ref: doc.Ref, Location: doc.Location, CollectedAt: doc.CollectedAt.UTC()}
	for _, p := range doc.Payloads {
		if checksum(p.Body) != p.SHA256 {
			return nil, fmt.Errorf("%w: %s/%s", ErrCorrupt, ref, p.Name)
		}
		payload := &models.Payload{Kind: models.PayloadKind(p.Kind), Tier: p.Tier, Units: models.Units(p.Units), Body: p.Body}
		if err := a.set(p.Name, payload); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (s *MongoStore) List(ctx context.Context, loc models.Location) ([]string, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "collected_at", Value: 1}}).
		SetProjection(bson.M{"_id": 1})

	cursor, err := s.coll.Find(ctx, bson.M{"location_key": loc.Key()}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []struct {
		Ref string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	refs := make([]string, 0, len(docs))
	for _, d := range docs {
		refs = append(refs, d.Ref)
	}
	return refs, nil
}
