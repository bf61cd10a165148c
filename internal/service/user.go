package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"license-activation-service/internal/lock"
	"license-activation-service/internal/model"
	"license-activation-service/internal/util"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrLastAdmin          = fmt.Errorf("%w: cannot remove the last admin user", model.ErrInvalidInput)
	ErrDeleteSelf         = fmt.Errorf("%w: cannot delete your own account", model.ErrInvalidInput)
)

// adminsLockKey serializes changes that can reduce the number of admins.
const adminsLockKey = "users:admins"

type UserService struct {
	store  UserStore
	tokens *util.TokenManager
	locker lock.Locker
	oplog  *OperationLogger
	now    func() time.Time
	logger *zap.Logger
}

func NewUserService(store UserStore, tokens *util.TokenManager, locker lock.Locker, oplog *OperationLogger, now func() time.Time, logger *zap.Logger) *UserService {
	return &UserService{store: store, tokens: tokens, locker: locker, oplog: oplog, now: now, logger: logger}
}

// Login verifies credentials and returns a signed token. Attempts against a
// known account are recorded in the login log.
func (s *UserService) Login(ctx context.Context, email, password, ip, userAgent string) (string, *model.User, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if errors.Is(err, model.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		s.recordLogin(ctx, user.ID, ip, userAgent, "failed")
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		return "", nil, err
	}

	now := s.now()
	user.LastLogin = &now
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return "", nil, fmt.Errorf("update last login: %w", err)
	}
	s.recordLogin(ctx, user.ID, ip, userAgent, "success")
	return token, user, nil
}

func (s *UserService) recordLogin(ctx context.Context, userID, ip, userAgent, status string) {
	entry := &model.LoginLog{
		ID:        model.NewID(),
		UserID:    userID,
		IP:        ip,
		UserAgent: userAgent,
		Status:    status,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendLoginLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record login", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	return s.store.FindUserByID(ctx, id)
}

func (s *UserService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.Password = string(hashed)
	user.UpdatedAt = s.now()
	return s.store.UpdateUser(ctx, user)
}

func (s *UserService) LoginLogs(ctx context.Context, userID string, page, pageSize int) ([]model.LoginLog, int64, error) {
	return s.store.ListLoginLogs(ctx, userID, page, pageSize)
}

// ValidateToken resolves a bearer token to the account it was issued for.
func (s *UserService) ValidateToken(ctx context.Context, raw string) (*model.User, error) {
	claims, err := s.tokens.ValidateToken(raw)
	if err != nil {
		return nil, err
	}
	user, err := s.store.FindUserByID(ctx, claims.UserID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, util.ErrInvalidToken
	}
	return user, err
}

func (s *UserService) Create(ctx context.Context, actor Actor, input model.UserInput) (*model.User, error) {
	role := input.Role
	if role == "" {
		role = model.RoleSupport
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:        model.NewID(),
		Name:      strings.TrimSpace(input.Name),
		Email:     strings.ToLower(strings.TrimSpace(input.Email)),
		Password:  string(hashed),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.oplog.record(ctx, actor, "create", "user", user.ID, map[string]any{"email": user.Email, "role": user.Role})
	return user, nil
}

func (s *UserService) List(ctx context.Context, filter model.UserFilter) ([]model.User, int64, error) {
	return s.store.ListUsers(ctx, filter)
}

// Update applies patch to the account. Demoting the only remaining admin is refused.
func (s *UserService) Update(ctx context.Context, actor Actor, id string, patch model.UserPatch) (*model.User, error) {
	release, err := s.locker.Lock(ctx, adminsLockKey)
	if err != nil {
		return nil, fmt.Errorf("lock users: %w", err)
	}
	defer release()

	user, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Role != nil && *patch.Role != user.Role {
		if user.Role == model.RoleAdmin {
			if err := s.ensureAnotherAdmin(ctx); err != nil {
				return nil, err
			}
		}
		user.Role = *patch.Role
	}
	if patch.Name != nil {
		user.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*patch.Email))
	}
	if patch.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*patch.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.Password = string(hashed)
	}
	user.UpdatedAt = s.now()

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	details := map[string]any{"role": user.Role}
	if patch.Password != nil {
		details["passwordChanged"] = true
	}
	s.oplog.record(ctx, actor, "update", "user", user.ID, details)
	return user, nil
}

// Delete removes an operator account. Callers cannot delete themselves or the last admin.
func (s *UserService) Delete(ctx context.Context, actor Actor, id string) error {
	if id == actor.UserID {
		return ErrDeleteSelf
	}

	release, err := s.locker.Lock(ctx, adminsLockKey)
	if err != nil {
		return fmt.Errorf("lock users: %w", err)
	}
	defer release()

	user, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == model.RoleAdmin {
		if err := s.ensureAnotherAdmin(ctx); err != nil {
			return err
		}
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.oplog.record(ctx, actor, "delete", "user", id, map[string]any{"email": user.Email})
	return nil
}

func (s *UserService) ensureAnotherAdmin(ctx context.Context) error {
	admins, err := s.store.CountUsersByRole(ctx, model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if admins <= 1 {
		return ErrLastAdmin
	}
	return nil
}
