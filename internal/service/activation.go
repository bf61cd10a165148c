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

// ErrInternal wraps every persistence failure surfaced by the protocol.
var ErrInternal = errors.New("internal error")

type OutcomeKind string

const (
	OutcomeActivated     OutcomeKind = "activated"
	OutcomeValid         OutcomeKind = "valid"
	OutcomeInvalidKey    OutcomeKind = "invalid_key"
	OutcomeNotActive     OutcomeKind = "not_active"
	OutcomeMaxDevices    OutcomeKind = "max_devices"
	OutcomeNotRegistered OutcomeKind = "not_registered"
)

// LicenseInfo is the client-facing view of a license.
type LicenseInfo struct {
	FullName      string              `json:"fullName"`
	ExpiresAt     time.Time           `json:"expiresAt"`
	Status        model.LicenseStatus `json:"status"`
	DeviceCount   int64               `json:"deviceCount"`
	MaxDevices    int                 `json:"maxDevices"`
	DaysRemaining int                 `json:"daysRemaining"`
}

// ProtocolRequest carries one activate or check call.
type ProtocolRequest struct {
	LicenseKey string
	DeviceID   string
	Meta       model.DeviceMeta
	IP         string
}

// Outcome is the result of Activate or Check. License is nil only for
// OutcomeInvalidKey.
type Outcome struct {
	Kind    OutcomeKind
	License *LicenseInfo
	// ExpiredNow is set when this call moved the license to EXPIRED.
	ExpiredNow bool
}

func (o *Outcome) Success() bool {
	return o.Kind == OutcomeActivated || o.Kind == OutcomeValid
}

type ActivationService struct {
	licenses  LicenseStore
	devices   DeviceStore
	audit     AuditStore
	lifecycle *Lifecycle
	binding   *BindingManager
	metrics   *Metrics
	tracer    trace.Tracer
	logger    *zap.Logger
	now       func() time.Time
}

func NewActivationService(deps Deps, lifecycle *Lifecycle, binding *BindingManager) *ActivationService {
	return &ActivationService{
		licenses:  deps.Store,
		devices:   deps.Store,
		audit:     deps.Store,
		lifecycle: lifecycle,
		binding:   binding,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		logger:    deps.Logger,
		now:       deps.Now,
	}
}

// Activate binds the device to the license when capacity allows. Every path,
// including failures, appends exactly one audit entry before returning.
func (s *ActivationService) Activate(ctx context.Context, req ProtocolRequest) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "license.activate", trace.WithAttributes(attribute.String("device.id", req.DeviceID)))
	defer span.End()
	started := time.Now()

	outcome, err := s.activate(ctx, req)
	s.finish(span, "activate", outcome, err, started)
	return outcome, err
}

func (s *ActivationService) activate(ctx context.Context, req ProtocolRequest) (*Outcome, error) {
	now := s.now()

	license, err := s.licenses.FindLicenseByKey(ctx, req.LicenseKey)
	if errors.Is(err, model.ErrNotFound) {
		return s.conclude(ctx, &Outcome{Kind: OutcomeInvalidKey}, model.UnknownLicenseID, req, model.LogActionActivate, false,
			"Invalid license key: "+req.LicenseKey, now)
	}
	if err != nil {
		return nil, s.internal("find_license", err)
	}

	status, expiredNow, err := s.lifecycle.Observe(ctx, license, now)
	if err != nil {
		return nil, s.internal("expire_license", err)
	}
	if status != model.LicenseStatusActive {
		count, err := s.devices.CountDevices(ctx, license.ID)
		if err != nil {
			return nil, s.internal("count_devices", err)
		}
		outcome := &Outcome{Kind: OutcomeNotActive, License: info(license, count, now), ExpiredNow: expiredNow}
		return s.conclude(ctx, outcome, license.ID, req, model.LogActionActivate, false, notActiveDetails(status, expiredNow), now)
	}

	result, err := s.binding.Bind(ctx, license, req.DeviceID, req.Meta, req.IP, now)
	if err != nil {
		return nil, s.internal("bind_device", err)
	}

	licenseInfo := info(license, result.DeviceCount, now)
	switch result.Outcome {
	case model.BindAlreadyBound:
		return s.conclude(ctx, &Outcome{Kind: OutcomeValid, License: licenseInfo}, license.ID, req, model.LogActionValidate, true,
			"Device already activated", now)
	case model.BindBound:
		return s.conclude(ctx, &Outcome{Kind: OutcomeActivated, License: licenseInfo}, license.ID, req, model.LogActionActivate, true,
			fmt.Sprintf("Device successfully activated. Device %d of %d", result.DeviceCount, result.MaxDevices), now)
	default:
		return s.conclude(ctx, &Outcome{Kind: OutcomeMaxDevices, License: licenseInfo}, license.ID, req, model.LogActionActivate, false,
			fmt.Sprintf("Max device limit reached. Current: %d, Max: %d", result.DeviceCount, result.MaxDevices), now)
	}
}

// Check validates a license for a device without ever creating a binding.
func (s *ActivationService) Check(ctx context.Context, req ProtocolRequest) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "license.check", trace.WithAttributes(attribute.String("device.id", req.DeviceID)))
	defer span.End()
	started := time.Now()

	outcome, err := s.check(ctx, req)
	s.finish(span, "check", outcome, err, started)
	return outcome, err
}

func (s *ActivationService) check(ctx context.Context, req ProtocolRequest) (*Outcome, error) {
	now := s.now()

	license, err := s.licenses.FindLicenseByKey(ctx, req.LicenseKey)
	if errors.Is(err, model.ErrNotFound) {
		return s.conclude(ctx, &Outcome{Kind: OutcomeInvalidKey}, model.UnknownLicenseID, req, model.LogActionCheck, false,
			"Invalid license key: "+req.LicenseKey, now)
	}
	if err != nil {
		return nil, s.internal("find_license", err)
	}

	status, expiredNow, err := s.lifecycle.Observe(ctx, license, now)
	if err != nil {
		return nil, s.internal("expire_license", err)
	}

	count, err := s.devices.CountDevices(ctx, license.ID)
	if err != nil {
		return nil, s.internal("count_devices", err)
	}
	licenseInfo := info(license, count, now)

	if status != model.LicenseStatusActive {
		outcome := &Outcome{Kind: OutcomeNotActive, License: licenseInfo, ExpiredNow: expiredNow}
		return s.conclude(ctx, outcome, license.ID, req, model.LogActionCheck, false, notActiveDetails(status, expiredNow), now)
	}

	_, err = s.binding.Lookup(ctx, license.ID, req.DeviceID)
	if errors.Is(err, model.ErrNotFound) {
		return s.conclude(ctx, &Outcome{Kind: OutcomeNotRegistered, License: licenseInfo}, license.ID, req, model.LogActionCheck, false,
			"Device not registered with this license", now)
	}
	if err != nil {
		return nil, s.internal("find_device", err)
	}

	if err := s.devices.TouchDevice(ctx, license.ID, req.DeviceID, req.IP, now); err != nil {
		return nil, s.internal("touch_device", err)
	}
	return s.conclude(ctx, &Outcome{Kind: OutcomeValid, License: licenseInfo}, license.ID, req, model.LogActionCheck, true,
		"License check successful", now)
}

// conclude appends the audit entry for outcome. A failed append turns the
// whole call into an internal error.
func (s *ActivationService) conclude(ctx context.Context, outcome *Outcome, licenseID string, req ProtocolRequest, action model.LogAction, success bool, details string, now time.Time) (*Outcome, error) {
	entry := &model.ActivationLog{
		ID:        model.NewID(),
		LicenseID: licenseID,
		DeviceID:  req.DeviceID,
		IPAddress: req.IP,
		Action:    action,
		Timestamp: now,
		Success:   success,
		Details:   details,
	}
	if err := s.audit.AppendActivationLog(ctx, entry); err != nil {
		return nil, s.internal("append_audit", err)
	}
	return outcome, nil
}

func (s *ActivationService) internal(operation string, err error) error {
	s.metrics.storageFailure(operation)
	s.logger.Error("license protocol storage failure", zap.String("operation", operation), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", ErrInternal, operation, err)
}

func (s *ActivationService) finish(span trace.Span, operation string, outcome *Outcome, err error, started time.Time) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "internal error")
		s.metrics.observe(operation, "error", started)
		return
	}
	span.SetAttributes(attribute.String("license.outcome", string(outcome.Kind)))
	s.metrics.observe(operation, string(outcome.Kind), started)
}

func info(license *model.License, deviceCount int64, now time.Time) *LicenseInfo {
	return &LicenseInfo{
		FullName:      license.FullName,
		ExpiresAt:     license.ExpiresAt,
		Status:        license.Status,
		DeviceCount:   deviceCount,
		MaxDevices:    license.MaxDevices,
		DaysRemaining: DaysRemaining(license.ExpiresAt, now),
	}
}

func notActiveDetails(status model.LicenseStatus, expiredNow bool) string {
	if expiredNow {
		return "License has expired"
	}
	return fmt.Sprintf("License is not active. Current status: %s", status)
}
