package mongostore

import (
	"context"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"license-activation-service/internal/model"
)

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.db.Collection(colUsers).FindOne(ctx, bson.M{"email": strings.ToLower(email)}).Decode(&user); err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := s.db.Collection(colUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	_, err := s.db.Collection(colUsers).InsertOne(ctx, user)
	return translate(err)
}

func (s *Store) UpdateUser(ctx context.Context, user *model.User) error {
	res, err := s.db.Collection(colUsers).ReplaceOne(ctx, bson.M{"_id": user.ID}, user)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context, filter model.UserFilter) ([]model.User, int64, error) {
	filter.Normalize()

	query := bson.M{}
	if filter.Keyword != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(filter.Keyword), "$options": "i"}
		query["$or"] = bson.A{bson.M{"name": pattern}, bson.M{"email": pattern}}
	}
	if filter.Role != "" {
		query["role"] = filter.Role
	}

	col := s.db.Collection(colUsers)
	total, err := col.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(filter.Offset())).
		SetLimit(int64(filter.PageSize))
	cursor, err := col.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	var users []model.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *Store) CountUsersByRole(ctx context.Context, role model.Role) (int64, error) {
	return s.db.Collection(colUsers).CountDocuments(ctx, bson.M{"role": role})
}

// DeleteUser removes the login history first so a partial failure leaves the account in place.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.db.Collection(colLoginLogs).DeleteMany(ctx, bson.M{"userId": id}); err != nil {
		return err
	}
	res, err := s.db.Collection(colUsers).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}
