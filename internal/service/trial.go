package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"license-activation-service/internal/model"
)

type TrialOutcomeKind string

const (
	TrialStarted TrialOutcomeKind = "started"
	TrialActive  TrialOutcomeKind = "active"
	TrialExpired TrialOutcomeKind = "expired"
)

type TrialRequest struct {
	DeviceID string
	Meta     model.DeviceMeta
	IP       string
}

type TrialOutcome struct {
	Kind          TrialOutcomeKind
	Trial         *model.TrialUsage
	DaysRemaining int
}

func (o *TrialOutcome) Valid() bool {
	return o.Kind != TrialExpired
}

type TrialService struct {
	trials     TrialStore
	settings   *SettingsService
	oplog      *OperationLogger
	metrics    *Metrics
	tracer     trace.Tracer
	logger     *zap.Logger
	now        func() time.Time
	purgeAfter time.Duration
}

func NewTrialService(deps Deps, settings *SettingsService, oplog *OperationLogger) *TrialService {
	return &TrialService{
		trials:     deps.Store,
		settings:   settings,
		oplog:      oplog,
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		logger:     deps.Logger,
		now:        deps.Now,
		purgeAfter: deps.TrialPurgeAfter,
	}
}

// Trial records a visit for a key-less device. The first visit starts the
// trial; its expiry never moves afterwards.
func (s *TrialService) Trial(ctx context.Context, req TrialRequest) (*TrialOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "license.trial", trace.WithAttributes(attribute.String("device.id", req.DeviceID)))
	defer span.End()
	started := time.Now()

	outcome, err := s.trial(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "internal error")
		s.metrics.storageFailure("trial")
		s.metrics.observe("trial", "error", started)
		s.logger.Error("trial storage failure", zap.String("device_id", req.DeviceID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	span.SetAttributes(attribute.String("trial.outcome", string(outcome.Kind)))
	s.metrics.observe("trial", string(outcome.Kind), started)
	return outcome, nil
}

func (s *TrialService) trial(ctx context.Context, req TrialRequest) (*TrialOutcome, error) {
	now := s.now()

	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}

	visit := model.TrialVisit{
		DeviceID:   req.DeviceID,
		Meta:       req.Meta,
		IP:         req.IP,
		Now:        now,
		PeriodDays: settings.TrialPeriodDays,
	}

	trial, created, err := s.trials.FindOrCreateTrial(ctx, visit)
	if err != nil {
		return nil, fmt.Errorf("find or create trial: %w", err)
	}
	if created {
		return &TrialOutcome{Kind: TrialStarted, Trial: trial, DaysRemaining: trial.TrialPeriodDays}, nil
	}

	trial, err = s.trials.UpdateTrial(ctx, visit)
	if err != nil {
		return nil, fmt.Errorf("update trial: %w", err)
	}

	if trial.TrialExpiresAt.Before(now) {
		return &TrialOutcome{Kind: TrialExpired, Trial: trial}, nil
	}
	return &TrialOutcome{Kind: TrialActive, Trial: trial, DaysRemaining: DaysRemaining(trial.TrialExpiresAt, now)}, nil
}

// Stats returns the trial counters and the most recently seen trials.
func (s *TrialService) Stats(ctx context.Context, recent int) (model.TrialStatistics, []model.TrialUsage, error) {
	stats, err := s.trials.TrialStatistics(ctx, s.now())
	if err != nil {
		return model.TrialStatistics{}, nil, err
	}
	trials, err := s.trials.RecentTrials(ctx, recent)
	if err != nil {
		return model.TrialStatistics{}, nil, err
	}
	return stats, trials, nil
}

// Purge deletes unconverted trials that expired longer ago than the retention window.
func (s *TrialService) Purge(ctx context.Context, actor Actor) (int64, error) {
	if actor.Role != model.RoleAdmin {
		return 0, model.ErrForbidden
	}
	cutoff := s.now().Add(-s.purgeAfter)
	deleted, err := s.trials.PurgeTrials(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.oplog.record(ctx, actor, "purge", "trial", "", map[string]any{"deleted": deleted, "expiredBefore": cutoff})
	return deleted, nil
}

// IsInternal reports whether err came from persistence rather than the caller.
func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}
