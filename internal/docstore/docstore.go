// Package docstore keeps user accounts and market fee configuration in
// MongoDB. None of its writes take part in the order transaction.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xtrntr/nuamexchange/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	usersCollection = "usuarios"
	feesCollection  = "configuracion_mercado"
)

// Store wraps a MongoDB database
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

type userDoc struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	Username string             `bson:"username"`
	Password []byte             `bson:"password"`
	Role     string             `bson:"rol"`
	Market   string             `bson:"perfilBolsa"`
}

func (d *userDoc) toModel() *models.User {
	return &models.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		PasswordHash: d.Password,
		Role:         models.Role(d.Role),
		Market:       models.Market(d.Market),
	}
}

// Connect opens a client and verifies the server is reachable
func Connect(ctx context.Context, uri, database string, timeout time.Duration) (*Store, error) {
	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	s := &Store{client: client, db: client.Database(database)}
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return models.Unavailable("mongodb", err)
	}
	return nil
}

// EnsureIndexes creates the unique keys both collections rely on
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to index users: %w", classify(err))
	}
	_, err = s.db.Collection(feesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "idMercado", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to index fees: %w", classify(err))
	}
	return nil
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var doc userDoc
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"username": username}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user %q: %w", username, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", classify(err))
	}
	return doc.toModel(), nil
}

// CreateUser inserts a new user and sets its ID
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	doc := userDoc{
		Username: user.Username,
		Password: user.PasswordHash,
		Role:     string(user.Role),
		Market:   string(user.Market),
	}
	res, err := s.db.Collection(usersCollection).InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", classify(err))
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		user.ID = id.Hex()
	}
	return nil
}

// CountUsers returns the number of stored users
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	n, err := s.db.Collection(usersCollection).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", classify(err))
	}
	return n, nil
}

// UpsertFee overwrites the fee record of a market, creating it if needed
func (s *Store) UpsertFee(ctx context.Context, fee models.FeeConfig) error {
	_, err := s.db.Collection(feesCollection).UpdateOne(ctx,
		bson.M{"idMercado": fee.Market},
		bson.M{"$set": bson.M{"tarifa_base": fee.BaseRate, "timestamp": fee.UpdatedAt}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert fee: %w", classify(err))
	}
	return nil
}

// ListFees returns every fee record ordered by market code
func (s *Store) ListFees(ctx context.Context) ([]models.FeeConfig, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "idMercado", Value: 1}}).
		SetProjection(bson.M{"_id": 0})
	cur, err := s.db.Collection(feesCollection).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list fees: %w", classify(err))
	}
	defer cur.Close(ctx)

	fees := []models.FeeConfig{}
	if err := cur.All(ctx, &fees); err != nil {
		return nil, fmt.Errorf("failed to decode fees: %w", classify(err))
	}
	return fees, nil
}

// classify marks connection-level failures as ErrStoreUnavailable
func classify(err error) error {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return models.Unavailable("mongodb", err)
	}
	return err
}
