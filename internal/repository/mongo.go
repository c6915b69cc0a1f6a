package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/paycart/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// maxUpdateAttempts bounds the compare-and-set retries of MongoRepository.Update.
const maxUpdateAttempts = 5

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection("orders")}
}

func (r *MongoRepository) CreateIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "order_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

func (r *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.collection.Database().Client().Disconnect(ctx)
}

func (r *MongoRepository) Insert(ctx context.Context, order *domain.Order) error {
	if err := validateNew(order); err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	order.CreatedAt = now
	order.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, toOrderDocument(order))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// Update is a compare-and-set on (status, updated_at): a concurrent writer
// that changed the document in between makes the filter miss, and the
// update is re-evaluated against the fresh record.
func (r *MongoRepository) Update(ctx context.Context, orderID string, update domain.OrderUpdate) (*domain.Order, bool, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		stored, err := r.Get(ctx, orderID)
		if err != nil {
			return nil, false, err
		}

		next := cloneOrder(stored)
		changed, err := applyUpdate(next, update, time.Now().UTC().Truncate(time.Millisecond))
		if err != nil {
			return stored, false, err
		}
		if !changed {
			return stored, false, nil
		}

		result, err := r.collection.UpdateOne(ctx,
			bson.M{
				"order_id":   orderID,
				"status":     string(stored.Status),
				"updated_at": stored.UpdatedAt,
			},
			bson.M{"$set": bson.M{
				"status":              string(next.Status),
				"gateway_tracking_id": next.GatewayTrackingID,
				"gateway_reference":   next.GatewayReference,
				"payment_method":      next.PaymentMethod,
				"confirmation_code":   next.ConfirmationCode,
				"updated_at":          next.UpdatedAt,
			}},
		)
		if err != nil {
			return nil, false, fmt.Errorf("failed to update order: %w", err)
		}
		if result.MatchedCount == 1 {
			return next, true, nil
		}
	}
	return nil, false, fmt.Errorf("update order %s: too many concurrent writers", orderID)
}

func (r *MongoRepository) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	var doc orderDocument
	err := r.collection.FindOne(ctx, bson.M{"order_id": orderID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	order, err := toOrderEntity(&doc)
	if err != nil {
		return nil, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	return order, nil
}
