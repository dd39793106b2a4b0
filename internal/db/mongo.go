// Package db provides the storage layer for the OpsDeck platform: MongoDB
// repositories for document entities (payables, purchase orders, social
// posts, API keys) and a PostgreSQL repository for the wallet ledger.
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"opsdeck/internal/config"
)

// Collection names.
const (
	collPayables       = "payables"
	collPurchaseOrders = "purchase_orders"
	collPosts          = "posts"
	collAPIKeys        = "api_keys"
	collArchives       = "reminder_archives"
)

// ConnectMongo establishes and verifies a MongoDB connection using the
// configured URI. The caller owns the returned client and must Disconnect it
// on shutdown.
func ConnectMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Database, *mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI.Unmask()))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("pinging mongodb: %w", err)
	}
	return client.Database(cfg.Database), client, nil
}

// MongoHealthProbe adapts a mongo client to the core.HealthProbe interface.
type MongoHealthProbe struct {
	Client *mongo.Client
}

func (p MongoHealthProbe) Name() string { return "mongodb" }

func (p MongoHealthProbe) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.Client.Ping(ctx, readpref.Primary())
}
