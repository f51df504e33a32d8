package db

import (
	"context"
	"time"

	"todo_service/internal/config"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// InitMongo connects to MongoDB with the same retry policy as Init.
func InitMongo(mongoCfg *config.MongoConfig) *mongo.Client {
	var client *mongo.Client
	var err error

	for i := 0; i < maxConnectAttempts; i++ {
		client, err = connectMongo(mongoCfg.URI)
		if err != nil {
			logrus.WithError(err).Warnf("Failed to connect to MongoDB (attempt %d/%d)", i+1, maxConnectAttempts)
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}

		break
	}

	if err != nil {
		logrus.WithError(err).Fatalf("Failed to connect to MongoDB after %d attempts", maxConnectAttempts)
	}

	logrus.WithField("database", mongoCfg.Database).Info("MongoDB connection established successfully")
	return client
}

func connectMongo(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}
