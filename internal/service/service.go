// Package service implements the license protocol (activate, check, trial)
// and the operator workflows around it on top of a persistence Gateway.
package service

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"license-activation-service/internal/licensekey"
	"license-activation-service/internal/lock"
	"license-activation-service/internal/model"
	"license-activation-service/internal/util"
)

// Actor identifies the authenticated operator performing an admin action.
type Actor struct {
	UserID string
	Role   model.Role
}

type Deps struct {
	Store    Gateway
	Locker   lock.Locker
	Codec    *licensekey.Codec
	Tokens   *util.TokenManager
	Notifier Notifier
	Mirror   LicenseMirror
	Metrics  *Metrics
	Tracer   trace.Tracer
	Logger   *zap.Logger
	Now      func() time.Time
	// Defaults seed the settings record and stand in when it is missing.
	Defaults        model.Settings
	TrialPurgeAfter time.Duration
}

func (d *Deps) setDefaults() {
	if d.Locker == nil {
		d.Locker = lock.NewLocalLocker()
	}
	if d.Codec == nil {
		d.Codec = licensekey.New("")
	}
	if d.Notifier == nil {
		d.Notifier = NopNotifier{}
	}
	if d.Mirror == nil {
		d.Mirror = NopMirror{}
	}
	if d.Tracer == nil {
		d.Tracer = otel.Tracer("license-activation-service/service")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.TrialPurgeAfter <= 0 {
		d.TrialPurgeAfter = 90 * 24 * time.Hour
	}
}

type Services struct {
	Activation    *ActivationService
	Trials        *TrialService
	Licenses      *LicenseService
	Settings      *SettingsService
	Users         *UserService
	OperationLogs *OperationLogger

	background *sync.WaitGroup
}

func New(deps Deps) *Services {
	deps.setDefaults()

	background := &sync.WaitGroup{}
	lifecycle := NewLifecycle(deps.Store)
	binding := NewBindingManager(deps.Store, deps.Locker, deps.Metrics)
	oplog := NewOperationLogger(deps.Store, deps.Now, deps.Logger)
	settings := NewSettingsService(deps.Store, deps.Defaults, deps.Notifier, oplog, deps.Now)

	return &Services{
		Activation:    NewActivationService(deps, lifecycle, binding),
		Trials:        NewTrialService(deps, settings, oplog),
		Licenses:      NewLicenseService(deps, lifecycle, settings, oplog, background),
		Settings:      settings,
		Users:         NewUserService(deps.Store, deps.Tokens, deps.Locker, oplog, deps.Now, deps.Logger),
		OperationLogs: oplog,
		background:    background,
	}
}

// Wait blocks until fire-and-forget notifications finish or ctx is done.
func (s *Services) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
