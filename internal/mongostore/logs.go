package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"license-activation-service/internal/model"
)

func (s *Store) AppendActivationLog(ctx context.Context, entry *model.ActivationLog) error {
	_, err := s.db.Collection(colActivationLogs).InsertOne(ctx, entry)
	return err
}

func (s *Store) ListActivationLogs(ctx context.Context, licenseID string, limit int) ([]model.ActivationLog, error) {
	cursor, err := s.db.Collection(colActivationLogs).Find(ctx, bson.M{"licenseId": licenseID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	var logs []model.ActivationLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CountActivationLogs(ctx context.Context, licenseID string) (int64, error) {
	return s.db.Collection(colActivationLogs).CountDocuments(ctx, bson.M{"licenseId": licenseID})
}

func (s *Store) RecentActivations(ctx context.Context, limit int) ([]model.RecentActivation, error) {
	cursor, err := s.db.Collection(colActivationLogs).Find(ctx,
		bson.M{"action": model.LogActionActivate, "success": true},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	var logs []model.ActivationLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(logs))
	for _, l := range logs {
		ids = append(ids, l.LicenseID)
	}
	byID := make(map[string]model.License, len(ids))
	if len(ids) > 0 {
		cursor, err := s.licenses().Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
		if err != nil {
			return nil, err
		}
		var licenses []model.License
		if err := cursor.All(ctx, &licenses); err != nil {
			return nil, err
		}
		for _, l := range licenses {
			byID[l.ID] = l
		}
	}

	recent := make([]model.RecentActivation, 0, len(logs))
	for _, l := range logs {
		license := byID[l.LicenseID]
		recent = append(recent, model.RecentActivation{
			ID:         l.ID,
			LicenseKey: license.LicenseKey,
			FullName:   license.FullName,
			DeviceID:   l.DeviceID,
			Timestamp:  l.Timestamp,
		})
	}
	return recent, nil
}

func (s *Store) AppendOperationLog(ctx context.Context, entry *model.OperationLog) error {
	_, err := s.db.Collection(colOperationLogs).InsertOne(ctx, entry)
	return err
}

func (s *Store) ListOperationLogs(ctx context.Context, userID string, page, pageSize int) ([]model.OperationLog, int64, error) {
	filter := bson.M{}
	if userID != "" {
		filter["userId"] = userID
	}

	col := s.db.Collection(colOperationLogs)
	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	cursor, err := col.Find(ctx, filter, pageOptions(page, pageSize, "createdAt"))
	if err != nil {
		return nil, 0, err
	}
	var logs []model.OperationLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func (s *Store) AppendLoginLog(ctx context.Context, entry *model.LoginLog) error {
	_, err := s.db.Collection(colLoginLogs).InsertOne(ctx, entry)
	return err
}

func (s *Store) ListLoginLogs(ctx context.Context, userID string, page, pageSize int) ([]model.LoginLog, int64, error) {
	filter := bson.M{"userId": userID}

	col := s.db.Collection(colLoginLogs)
	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	cursor, err := col.Find(ctx, filter, pageOptions(page, pageSize, "createdAt"))
	if err != nil {
		return nil, 0, err
	}
	var logs []model.LoginLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
