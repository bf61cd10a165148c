package mongostore

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"license-activation-service/internal/model"
)

func (s *Store) licenses() *mongo.Collection { return s.db.Collection(colLicenses) }

func (s *Store) FindLicenseByKey(ctx context.Context, key string) (*model.License, error) {
	var license model.License
	if err := s.licenses().FindOne(ctx, bson.M{"licenseKey": key}).Decode(&license); err != nil {
		return nil, translate(err)
	}
	return &license, nil
}

func (s *Store) FindLicenseByID(ctx context.Context, id string) (*model.License, error) {
	var license model.License
	if err := s.licenses().FindOne(ctx, bson.M{"_id": id}).Decode(&license); err != nil {
		return nil, translate(err)
	}
	return &license, nil
}

func (s *Store) CreateLicense(ctx context.Context, license *model.License) error {
	_, err := s.licenses().InsertOne(ctx, license)
	return translate(err)
}

func (s *Store) UpdateLicense(ctx context.Context, license *model.License) error {
	res, err := s.licenses().UpdateOne(ctx, bson.M{"_id": license.ID}, bson.M{"$set": bson.M{
		"fullName":    license.FullName,
		"cinNumber":   license.NationalID,
		"email":       license.Email,
		"phoneNumber": license.PhoneNumber,
		"maxDevices":  license.MaxDevices,
		"status":      license.Status,
		"expiresAt":   license.ExpiresAt,
		"updatedAt":   license.UpdatedAt,
	}})
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Store) ExpireLicense(ctx context.Context, id string, now time.Time) error {
	_, err := s.licenses().UpdateOne(ctx,
		bson.M{"_id": id, "status": model.LicenseStatusActive},
		bson.M{"$set": bson.M{"status": model.LicenseStatusExpired, "updatedAt": now}},
	)
	return err
}

// DeleteLicense removes the license last so a partial failure leaves it reachable for retry.
func (s *Store) DeleteLicense(ctx context.Context, id string) error {
	if _, err := s.db.Collection(colActivationLogs).DeleteMany(ctx, bson.M{"licenseId": id}); err != nil {
		return err
	}
	if _, err := s.db.Collection(colDevices).DeleteMany(ctx, bson.M{"licenseId": id}); err != nil {
		return err
	}
	res, err := s.licenses().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Store) ListLicenses(ctx context.Context, filter model.LicenseFilter) ([]model.LicenseSummary, int64, error) {
	filter.Normalize()

	query := bson.M{}
	if filter.Name != "" {
		query["fullName"] = bson.M{"$regex": regexp.QuoteMeta(filter.Name), "$options": "i"}
	}
	if filter.NationalID != "" {
		query["cinNumber"] = bson.M{"$regex": regexp.QuoteMeta(filter.NationalID), "$options": "i"}
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	created := bson.M{}
	if filter.CreatedFrom != nil {
		created["$gte"] = *filter.CreatedFrom
	}
	if filter.CreatedTo != nil {
		created["$lte"] = *filter.CreatedTo
	}
	if len(created) > 0 {
		query["createdAt"] = created
	}

	total, err := s.licenses().CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(filter.Offset())).
		SetLimit(int64(filter.Limit))
	cursor, err := s.licenses().Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	var licenses []model.License
	if err := cursor.All(ctx, &licenses); err != nil {
		return nil, 0, err
	}

	counts, err := s.deviceCounts(ctx, licenses)
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]model.LicenseSummary, 0, len(licenses))
	for _, l := range licenses {
		summaries = append(summaries, model.LicenseSummary{License: l, DeviceCount: counts[l.ID]})
	}
	return summaries, total, nil
}

func (s *Store) deviceCounts(ctx context.Context, licenses []model.License) (map[string]int64, error) {
	counts := make(map[string]int64, len(licenses))
	if len(licenses) == 0 {
		return counts, nil
	}

	ids := make([]string, 0, len(licenses))
	for _, l := range licenses {
		ids = append(ids, l.ID)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"licenseId": bson.M{"$in": ids}}}},
		{{Key: "$group", Value: bson.M{"_id": "$licenseId", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := s.db.Collection(colDevices).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		LicenseID string `bson:"_id"`
		Count     int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	for _, r := range rows {
		counts[r.LicenseID] = r.Count
	}
	return counts, nil
}

func (s *Store) LicenseStatistics(ctx context.Context) (model.LicenseStatistics, error) {
	var stats model.LicenseStatistics

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := s.licenses().Aggregate(ctx, pipeline)
	if err != nil {
		return stats, err
	}
	var rows []struct {
		Status model.LicenseStatus `bson:"_id"`
		Count  int64               `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return stats, err
	}
	for _, r := range rows {
		stats.TotalLicenses += r.Count
		switch r.Status {
		case model.LicenseStatusActive:
			stats.ActiveLicenses = r.Count
		case model.LicenseStatusExpired:
			stats.ExpiredLicenses = r.Count
		case model.LicenseStatusRevoked:
			stats.RevokedLicenses = r.Count
		}
	}

	stats.TotalDevices, err = s.db.Collection(colDevices).CountDocuments(ctx, bson.D{})
	return stats, err
}
