package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"license-activation-service/internal/model"
)

func (s *Store) GetSettings(ctx context.Context) (*model.Settings, error) {
	var settings model.Settings
	if err := s.db.Collection(colSettings).FindOne(ctx, bson.M{"_id": model.SettingsID}).Decode(&settings); err != nil {
		return nil, translate(err)
	}
	return &settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings *model.Settings) error {
	settings.ID = model.SettingsID
	_, err := s.db.Collection(colSettings).ReplaceOne(ctx, bson.M{"_id": model.SettingsID}, settings,
		options.Replace().SetUpsert(true))
	return err
}
