package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"license-activation-service/internal/model"
)

func (s *Store) devices() *mongo.Collection { return s.db.Collection(colDevices) }

func (s *Store) CountDevices(ctx context.Context, licenseID string) (int64, error) {
	return s.devices().CountDocuments(ctx, bson.M{"licenseId": licenseID})
}

func (s *Store) FindDevice(ctx context.Context, licenseID, deviceID string) (*model.Device, error) {
	var device model.Device
	err := s.devices().FindOne(ctx, bson.M{"licenseId": licenseID, "deviceId": deviceID}).Decode(&device)
	if err != nil {
		return nil, translate(err)
	}
	return &device, nil
}

func (s *Store) ListDevices(ctx context.Context, licenseID string) ([]model.Device, error) {
	cursor, err := s.devices().Find(ctx, bson.M{"licenseId": licenseID},
		options.Find().SetSort(bson.D{{Key: "firstSeenAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var devices []model.Device
	if err := cursor.All(ctx, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// BindDevice counts the bound devices and inserts d when there is room.
// The count and the insert are separate operations, so callers must hold the
// per-license lock for d.LicenseID. The unique (licenseId, deviceId) index
// turns a racing duplicate into BindAlreadyBound.
func (s *Store) BindDevice(ctx context.Context, d *model.Device, maxDevices int) (model.BindResult, error) {
	result := model.BindResult{MaxDevices: maxDevices}

	existing, err := s.touch(ctx, d.LicenseID, d.DeviceID, d.IPAddress, d.LastSeenAt)
	switch {
	case err == nil:
		result.Outcome = model.BindAlreadyBound
		result.Device = existing
		return s.withCount(ctx, result, d.LicenseID)
	case !errors.Is(err, model.ErrNotFound):
		return model.BindResult{}, err
	}

	count, err := s.CountDevices(ctx, d.LicenseID)
	if err != nil {
		return model.BindResult{}, err
	}
	if count >= int64(maxDevices) {
		result.Outcome = model.BindRejected
		result.DeviceCount = count
		return result, nil
	}

	if _, err := s.devices().InsertOne(ctx, d); err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			return model.BindResult{}, err
		}
		existing, err := s.FindDevice(ctx, d.LicenseID, d.DeviceID)
		if err != nil {
			return model.BindResult{}, err
		}
		result.Outcome = model.BindAlreadyBound
		result.Device = existing
		return s.withCount(ctx, result, d.LicenseID)
	}

	result.Outcome = model.BindBound
	result.Device = d
	result.DeviceCount = count + 1
	return result, nil
}

func (s *Store) withCount(ctx context.Context, result model.BindResult, licenseID string) (model.BindResult, error) {
	count, err := s.CountDevices(ctx, licenseID)
	if err != nil {
		return model.BindResult{}, err
	}
	result.DeviceCount = count
	return result, nil
}

func (s *Store) TouchDevice(ctx context.Context, licenseID, deviceID, ip string, now time.Time) error {
	_, err := s.touch(ctx, licenseID, deviceID, ip, now)
	return err
}

func (s *Store) touch(ctx context.Context, licenseID, deviceID, ip string, now time.Time) (*model.Device, error) {
	var device model.Device
	err := s.devices().FindOneAndUpdate(ctx,
		bson.M{"licenseId": licenseID, "deviceId": deviceID},
		bson.M{"$set": bson.M{"lastSeenAt": now, "ipAddress": ip}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&device)
	if err != nil {
		return nil, translate(err)
	}
	return &device, nil
}
