package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"license-activation-service/internal/database"
	"license-activation-service/internal/licensekey"
	"license-activation-service/internal/model"
	"license-activation-service/internal/util"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc      *Services
	store    *database.Store
	clock    *testClock
	metrics  *Metrics
	registry *prometheus.Registry
	spans    *tracetest.SpanRecorder
	notifier *recordingNotifier
	mirror   *recordingMirror
}

type fixtureOption func(*Deps)

func withStore(store Gateway) fixtureOption {
	return func(d *Deps) { d.Store = store }
}

func withCodec(codec *licensekey.Codec) fixtureOption {
	return func(d *Deps) { d.Codec = codec }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	store := database.NewTestStore(t)
	clock := &testClock{now: baseTime}
	registry := prometheus.NewRegistry()
	spans := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	notifier := &recordingNotifier{}
	mirror := &recordingMirror{}

	deps := Deps{
		Store:    store,
		Codec:    licensekey.New("VM"),
		Tokens:   util.NewTokenManager("test-secret", time.Hour),
		Notifier: notifier,
		Mirror:   mirror,
		Metrics:  NewMetrics(registry),
		Tracer:   provider.Tracer("test"),
		Now:      clock.Now,
		Defaults: model.Settings{
			EmailNotificationsEnabled:  true,
			DefaultLicenseDurationDays: 365,
			DefaultMaxDevices:          1,
			TrialPeriodDays:            7,
		},
		TrialPurgeAfter: 90 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &fixture{
		svc:      New(deps),
		store:    store,
		clock:    clock,
		metrics:  deps.Metrics,
		registry: registry,
		spans:    spans,
		notifier: notifier,
		mirror:   mirror,
	}
}

func (f *fixture) license(t *testing.T, maxDevices int, expiresIn time.Duration) *model.License {
	t.Helper()
	now := f.clock.Now()
	license := &model.License{
		ID:         model.NewID(),
		LicenseKey: "VM-" + model.NewID()[:4] + "-AAAA-BBBB-CCCC",
		FullName:   "Jane Holder",
		Email:      "jane@example.com",
		MaxDevices: maxDevices,
		Status:     model.LicenseStatusActive,
		ExpiresAt:  now.Add(expiresIn),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, f.store.CreateLicense(context.Background(), license))
	return license
}

func (f *fixture) auditCount(t *testing.T, licenseID string) int64 {
	t.Helper()
	n, err := f.store.CountActivationLogs(context.Background(), licenseID)
	require.NoError(t, err)
	return n
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Wait(ctx))
}

type recordingNotifier struct {
	mu      sync.Mutex
	sent    []model.License
	tests   []string
	testErr error
}

func (n *recordingNotifier) SendTestEmail(_ context.Context, to string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.testErr != nil {
		return n.testErr
	}
	n.tests = append(n.tests, to)
	return nil
}

func (n *recordingNotifier) NotifyLicenseCreated(_ context.Context, license model.License) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, license)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type recordingMirror struct {
	mu      sync.Mutex
	synced  []string
	removed []string
}

func (m *recordingMirror) SyncLicense(_ context.Context, license model.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.synced = append(m.synced, license.LicenseKey)
	return nil
}

func (m *recordingMirror) RemoveLicense(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, key)
	return nil
}

// failingAuditStore wraps a real store and rejects audit writes.
type failingAuditStore struct {
	Gateway
}

func (failingAuditStore) AppendActivationLog(context.Context, *model.ActivationLog) error {
	return errors.New("disk full")
}

// repeatReader yields the same byte forever, so every generated key is identical.
type repeatReader byte

func (r repeatReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}
