package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"license-activation-service/internal/config"
	"license-activation-service/internal/database"
	"license-activation-service/internal/handler"
	"license-activation-service/internal/licensekey"
	"license-activation-service/internal/lock"
	"license-activation-service/internal/logger"
	"license-activation-service/internal/middleware"
	"license-activation-service/internal/model"
	"license-activation-service/internal/mongostore"
	"license-activation-service/internal/service"
	"license-activation-service/internal/util"
)

var (
	_ service.Gateway = (*database.Store)(nil)
	_ service.Gateway = (*mongostore.Store)(nil)
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, zlog)
	if err != nil {
		return err
	}
	defer closeStore()

	locker, closeLocker, err := newLocker(ctx, cfg, zlog)
	if err != nil {
		return err
	}
	defer closeLocker()

	tracer, shutdownTracing, err := newTracing(cfg, zlog)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tokens := util.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	svc := service.New(service.Deps{
		Store:    store,
		Locker:   locker,
		Codec:    licensekey.New(cfg.Licensing.KeyPrefix),
		Tokens:   tokens,
		Notifier: newNotifier(cfg, zlog),
		Mirror:   newMirror(ctx, cfg, zlog),
		Metrics:  service.NewMetrics(registry),
		Tracer:   tracer,
		Logger:   zlog,
		Defaults: model.Settings{
			ID:                         model.SettingsID,
			EmailNotificationsEnabled:  cfg.Email.Enabled,
			DefaultLicenseDurationDays: cfg.Licensing.DefaultLicenseDurationDays,
			DefaultMaxDevices:          cfg.Licensing.DefaultMaxDevices,
			TrialPeriodDays:            cfg.Licensing.TrialPeriodDays,
		},
		TrialPurgeAfter: time.Duration(cfg.Licensing.TrialPurgeAfterDays) * 24 * time.Hour,
	})
	if err := svc.Settings.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	fiberCfg := fiber.Config{
		AppName:      "license-activation-service",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BodyLimit:    cfg.Server.BodyLimit,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		ErrorHandler: handler.ErrorHandler(zlog),
	}
	util.ApplyProxyConfig(&fiberCfg, cfg.Server.ProxyHeader, cfg.Server.TrustedProxies)
	app := fiber.New(fiberCfg)
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New())
	app.Use(middleware.RequestLogger(zlog))
	app.Use(cors.New())

	routes := handler.RouteConfig{
		Tokens:  tokens,
		Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	if cfg.RateLimit.Enabled {
		routes.RateLimit = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, zlog).Handler()
	}
	handler.New(svc, store, zlog).Register(app, routes)

	listenErr := make(chan error, 1)
	go func() {
		zlog.Info("server starting", zap.String("addr", cfg.Server.Addr), zap.String("driver", cfg.Database.Driver))
		listenErr <- app.Listen(cfg.Server.Addr)
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zlog.Error("server shutdown", zap.Error(err))
	}
	if err := svc.Wait(shutdownCtx); err != nil {
		zlog.Warn("background tasks did not finish", zap.Error(err))
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (service.Gateway, func(), error) {
	switch cfg.Database.Driver {
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		store, err := mongostore.Connect(connectCtx, cfg.Database.MongoURI, cfg.Database.MongoName)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				zlog.Warn("close mongo", zap.Error(err))
			}
		}
		seed := mongostore.AdminSeed{Name: cfg.Auth.AdminName, Email: cfg.Auth.AdminEmail, Password: cfg.Auth.AdminPassword}
		if err := store.SeedAdmin(ctx, seed, zlog); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("seed admin: %w", err)
		}
		return store, closeFn, nil
	default:
		store, err := database.Open(cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := store.Close(); err != nil {
				zlog.Warn("close database", zap.Error(err))
			}
		}
		seed := database.AdminSeed{Name: cfg.Auth.AdminName, Email: cfg.Auth.AdminEmail, Password: cfg.Auth.AdminPassword}
		if err := store.SeedAdmin(ctx, seed, zlog); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("seed admin: %w", err)
		}
		return store, closeFn, nil
	}
}

func newLocker(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (lock.Locker, func(), error) {
	if cfg.Redis.Addr == "" {
		return lock.NewLocalLocker(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	locker := lock.NewRedisLocker(client,
		lock.WithExpiry(cfg.Redis.LockExpiry),
		lock.WithTries(cfg.Redis.LockTries),
		lock.WithLogger(zlog),
	)
	return locker, func() { _ = client.Close() }, nil
}

func newTracing(cfg *config.Config, zlog *zap.Logger) (trace.Tracer, func(), error) {
	if !cfg.Tracing.Enabled {
		return otel.Tracer("license-activation-service"), func() {}, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Tracing.SampleRatio))),
	)
	otel.SetTracerProvider(provider)

	return provider.Tracer("license-activation-service"), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zlog.Warn("shutdown tracer provider", zap.Error(err))
		}
	}, nil
}

func newNotifier(cfg *config.Config, zlog *zap.Logger) service.Notifier {
	if !cfg.Email.Enabled {
		return service.NopNotifier{}
	}
	zlog.Info("email notifications enabled", zap.String("host", cfg.Email.Host))
	return service.NewSMTPNotifier(service.SMTPConfig{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		User:     cfg.Email.User,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
	})
}

// newMirror falls back to a no-op mirror when Sheets cannot be initialised.
func newMirror(ctx context.Context, cfg *config.Config, zlog *zap.Logger) service.LicenseMirror {
	if !cfg.Sheets.Enabled {
		return service.NopMirror{}
	}
	mirror, err := service.NewSheetSyncService(ctx, cfg.Sheets.CredentialsPath, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName, zlog)
	if err != nil {
		zlog.Error("google sheets sync disabled", zap.Error(err))
		return service.NopMirror{}
	}
	return mirror
}
