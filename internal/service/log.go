package service

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"license-activation-service/internal/model"
)

// OperationLogger records operator mutations.
type OperationLogger struct {
	store  OperationLogStore
	now    func() time.Time
	logger *zap.Logger
}

func NewOperationLogger(store OperationLogStore, now func() time.Time, logger *zap.Logger) *OperationLogger {
	return &OperationLogger{store: store, now: now, logger: logger}
}

func (l *OperationLogger) LogOperation(ctx context.Context, userID, action, target, targetID string, details any) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}

	entry := &model.OperationLog{
		ID:        model.NewID(),
		UserID:    userID,
		Action:    action,
		Target:    target,
		TargetID:  targetID,
		Details:   string(detailsJSON),
		CreatedAt: l.now(),
	}
	return l.store.AppendOperationLog(ctx, entry)
}

// record is LogOperation for callers whose mutation already succeeded; a
// failure is logged rather than returned.
func (l *OperationLogger) record(ctx context.Context, actor Actor, action, target, targetID string, details any) {
	if err := l.LogOperation(ctx, actor.UserID, action, target, targetID, details); err != nil {
		l.logger.Warn("failed to record operation", zap.String("action", action), zap.String("target", target), zap.Error(err))
	}
}

func (l *OperationLogger) GetOperationLogs(ctx context.Context, page, pageSize int) ([]model.OperationLog, int64, error) {
	return l.store.ListOperationLogs(ctx, "", page, pageSize)
}

func (l *OperationLogger) GetUserOperationLogs(ctx context.Context, userID string, page, pageSize int) ([]model.OperationLog, int64, error) {
	return l.store.ListOperationLogs(ctx, userID, page, pageSize)
}
