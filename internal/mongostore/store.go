// Package mongostore is the document-store persistence gateway. It exposes
// the same operations as the relational store on top of mongo-driver.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"license-activation-service/internal/model"
)

const (
	colLicenses       = "licenses"
	colDevices        = "devices"
	colActivationLogs = "activation_logs"
	colTrials         = "trial_usages"
	colUsers          = "users"
	colLoginLogs      = "login_logs"
	colOperationLogs  = "operation_logs"
	colSettings       = "settings"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials the server, verifies it is reachable and ensures indexes.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &Store{client: client, db: client.Database(database)}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colLicenses: {
			{Keys: bson.D{{Key: "licenseKey", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colDevices: {
			{Keys: bson.D{{Key: "licenseId", Value: 1}, {Key: "deviceId", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colActivationLogs: {
			{Keys: bson.D{{Key: "licenseId", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		colTrials: {
			{Keys: bson.D{{Key: "deviceId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "trialExpiresAt", Value: 1}}},
		},
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colLoginLogs: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		colOperationLogs: {
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		},
	}

	for col, models := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", col, err)
		}
	}
	return nil
}

// AdminSeed describes the bootstrap operator account.
type AdminSeed struct {
	Name     string
	Email    string
	Password string
}

func (s *Store) SeedAdmin(ctx context.Context, seed AdminSeed, logger *zap.Logger) error {
	count, err := s.db.Collection(colUsers).CountDocuments(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(seed.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	now := time.Now().UTC()
	admin := &model.User{
		ID:        model.NewID(),
		Name:      seed.Name,
		Email:     strings.ToLower(seed.Email),
		Password:  string(hashed),
		Role:      model.RoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	logger.Info("created default admin account", zap.String("email", admin.Email))
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return model.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", model.ErrDuplicate, err)
	}
	return err
}

func pageOptions(page, pageSize int, sortField string) *options.FindOptions {
	if page < 1 {
		page = 1
	}
	return options.Find().
		SetSort(bson.D{{Key: sortField, Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))
}
