package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"license-activation-service/internal/model"
)

// Store is the relational persistence gateway backed by gorm and SQLite.
type Store struct {
	db *gorm.DB
}

func models() []any {
	return []any{
		&model.License{},
		&model.Device{},
		&model.ActivationLog{},
		&model.TrialUsage{},
		&model.User{},
		&model.LoginLog{},
		&model.OperationLog{},
		&model.Settings{},
	}
}

// Open creates the data directory if needed, connects and migrates the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	return open(path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
}

func open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql handle: %w", err)
	}
	// SQLite allows one writer; a single connection keeps transactions serialized.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(models()...); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// AdminSeed describes the bootstrap operator account.
type AdminSeed struct {
	Name     string
	Email    string
	Password string
}

// SeedAdmin creates the bootstrap administrator when no user exists yet.
func (s *Store) SeedAdmin(ctx context.Context, seed AdminSeed, logger *zap.Logger) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(seed.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	now := time.Now().UTC()
	admin := &model.User{
		ID:        model.NewID(),
		Name:      seed.Name,
		Email:     strings.ToLower(seed.Email),
		Password:  string(hashed),
		Role:      model.RoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(admin).Error; err != nil {
		return fmt.Errorf("create admin user: %w", translate(err))
	}

	logger.Info("created default admin account", zap.String("email", admin.Email))
	return nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// translate maps gorm errors onto the model sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return model.ErrNotFound
	case isDuplicate(err):
		return fmt.Errorf("%w: %v", model.ErrDuplicate, err)
	}
	return err
}
