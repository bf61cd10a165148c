package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"license-activation-service/internal/model"
)

func (s *Store) trials() *mongo.Collection { return s.db.Collection(colTrials) }

// FindOrCreateTrial inserts the trial with $setOnInsert so concurrent first
// visits converge on one record.
func (s *Store) FindOrCreateTrial(ctx context.Context, v model.TrialVisit) (*model.TrialUsage, bool, error) {
	id := model.NewID()
	res, err := s.trials().UpdateOne(ctx,
		bson.M{"deviceId": v.DeviceID},
		bson.M{"$setOnInsert": bson.M{
			"_id":             id,
			"deviceName":      v.Meta.Name,
			"deviceType":      v.Meta.Type,
			"firstSeenAt":     v.Now,
			"lastSeenAt":      v.Now,
			"ipAddress":       v.IP,
			"usageCount":      1,
			"trialStartedAt":  v.Now,
			"trialExpiresAt":  v.Now.AddDate(0, 0, v.PeriodDays),
			"trialPeriodDays": v.PeriodDays,
			"converted":       false,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, false, err
	}
	created := err == nil && res.UpsertedCount == 1

	var trial model.TrialUsage
	if err := s.trials().FindOne(ctx, bson.M{"deviceId": v.DeviceID}).Decode(&trial); err != nil {
		return nil, false, translate(err)
	}
	return &trial, created, nil
}

func (s *Store) UpdateTrial(ctx context.Context, v model.TrialVisit) (*model.TrialUsage, error) {
	var trial model.TrialUsage
	err := s.trials().FindOneAndUpdate(ctx,
		bson.M{"deviceId": v.DeviceID},
		bson.M{
			"$inc": bson.M{"usageCount": 1},
			"$set": bson.M{"lastSeenAt": v.Now, "ipAddress": v.IP},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&trial)
	if err != nil {
		return nil, translate(err)
	}
	return &trial, nil
}

func (s *Store) TrialStatistics(ctx context.Context, now time.Time) (model.TrialStatistics, error) {
	var (
		stats model.TrialStatistics
		err   error
	)
	if stats.ActiveTrials, err = s.trials().CountDocuments(ctx, bson.M{"converted": false, "trialExpiresAt": bson.M{"$gt": now}}); err != nil {
		return stats, err
	}
	if stats.ExpiredTrials, err = s.trials().CountDocuments(ctx, bson.M{"converted": false, "trialExpiresAt": bson.M{"$lte": now}}); err != nil {
		return stats, err
	}
	if stats.ConvertedTrials, err = s.trials().CountDocuments(ctx, bson.M{"converted": true}); err != nil {
		return stats, err
	}
	stats.Finalize()
	return stats, nil
}

func (s *Store) RecentTrials(ctx context.Context, limit int) ([]model.TrialUsage, error) {
	cursor, err := s.trials().Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "lastSeenAt", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	var trials []model.TrialUsage
	if err := cursor.All(ctx, &trials); err != nil {
		return nil, err
	}
	return trials, nil
}

func (s *Store) PurgeTrials(ctx context.Context, expiredBefore time.Time) (int64, error) {
	res, err := s.trials().DeleteMany(ctx, bson.M{"converted": false, "trialExpiresAt": bson.M{"$lt": expiredBefore}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
