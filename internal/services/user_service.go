package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/database"
	"github.com/exiloncms/exiloncms/internal/models"
	"github.com/exiloncms/exiloncms/pkg/crypto"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/metrics"
)

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrRootUserImmutable ensures the root account cannot be deactivated or deleted.
	ErrRootUserImmutable = apperrors.New("USER_ROOT_IMMUTABLE", "Root user cannot perform this operation", http.StatusBadRequest)
)

const userEntity = "user"

// CreateUserInput describes the fields accepted when creating a user.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	IsRoot   bool
	IsActive *bool
}

// UpdateUserInput enumerates mutable user attributes.
type UpdateUserInput struct {
	Username *string
	Email    *string
	IsActive *bool
}

// UserFilters captures listing filters.
type UserFilters struct {
	IsActive *bool
	Query    string
}

// ListUsersOptions controls pagination for user listing.
type ListUsersOptions struct {
	Page     int
	PageSize int
	Filters  UserFilters
}

// UserService manages site accounts.
type UserService struct {
	db      *gorm.DB
	actions *ActionLogService
	now     func() time.Time
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, actions *ActionLogService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db, actions: actions, now: time.Now}, nil
}

// Create provisions a new user with a hashed password. Every user receives
// the member role; root users also receive the admin role.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.create(ctx, s.db.WithContext(ctx), input)
	if err != nil {
		return nil, err
	}

	recordAction(s.actions, ctx, ActionEntry{
		Action:     ActionUserCreate,
		EntityType: userEntity,
		EntityID:   user.ID,
		Data:       map[string]any{"username": user.Username, "is_root": user.IsRoot},
	})
	return user, nil
}

func (s *UserService) create(ctx context.Context, db *gorm.DB, input CreateUserInput) (*models.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" {
		return nil, apperrors.NewBadRequest("username is required")
	}
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	hashed, err := hashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username: username,
		Email:    email,
		Password: hashed,
		IsRoot:   input.IsRoot,
		IsActive: true,
	}
	if input.IsActive != nil {
		user.IsActive = *input.IsActive
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		// gorm skips false on create because of the column default.
		if !user.IsActive {
			if err := tx.Model(user).Update("is_active", false).Error; err != nil {
				return err
			}
		}

		roleIDs := []string{database.RoleMember}
		if user.IsRoot {
			roleIDs = append(roleIDs, database.RoleAdmin)
		}
		var roles []models.Role
		if err := tx.Where("id IN ?", roleIDs).Find(&roles).Error; err != nil {
			return fmt.Errorf("user service: load default roles: %w", err)
		}
		if len(roles) == 0 {
			return nil
		}
		if err := tx.Model(user).Association("Roles").Append(roles); err != nil {
			return fmt.Errorf("user service: assign default roles: %w", err)
		}
		return nil
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("username or email already exists")
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}
	return user, nil
}

// Authenticate verifies credentials given a username or e-mail and records
// the login.
func (s *UserService) Authenticate(ctx context.Context, identifier, password, ip string) (user *models.User, err error) {
	ctx = ensureContext(ctx)
	defer func() {
		metrics.AuthAttempts.WithLabelValues(metrics.Result(err)).Inc()
	}()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	var found models.User
	err = s.db.WithContext(ctx).
		Where("LOWER(username) = ? OR email = ?", strings.ToLower(identifier), strings.ToLower(identifier)).
		First(&found).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	if !found.IsActive || !crypto.VerifyPassword(found.Password, password) {
		return nil, apperrors.ErrInvalidCredentials
	}

	now := s.now().UTC()
	changes := map[string]any{
		"last_login_at": now,
		"last_login_ip": strings.TrimSpace(ip),
	}
	if crypto.NeedsRehash(found.Password) {
		if rehashed, err := crypto.HashPassword(password); err == nil {
			changes["password"] = rehashed
			found.Password = rehashed
		}
	}
	if err := s.db.WithContext(ctx).Model(&found).Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("user service: record login: %w", err)
	}
	found.LastLoginAt = &now
	found.LastLoginIP = strings.TrimSpace(ip)
	return &found, nil
}

// GetByID loads a user by identifier including roles and permissions.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Roles.Permissions").
		First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// List retrieves users matching the supplied filters with pagination.
func (s *UserService) List(ctx context.Context, opts ListUsersOptions) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)
	page, perPage := clampPage(opts.Page, opts.PageSize, 200, 50)

	query := s.db.WithContext(ctx).Model(&models.User{})
	if opts.Filters.IsActive != nil {
		query = query.Where("is_active = ?", *opts.Filters.IsActive)
	}
	if q := strings.TrimSpace(opts.Filters.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	var users []models.User
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Preload("Roles").
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}
	return users, total, nil
}

// Count returns the number of accounts.
func (s *UserService) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.WithContext(ensureContext(ctx)).Model(&models.User{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("user service: count users: %w", err)
	}
	return total, nil
}

// Update persists mutable attributes for an existing user.
func (s *UserService) Update(ctx context.Context, id string, input UpdateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if input.Username != nil {
		if name := strings.TrimSpace(*input.Username); name != "" && name != user.Username {
			changes["username"] = name
		}
	}
	if input.Email != nil {
		if email := strings.ToLower(strings.TrimSpace(*input.Email)); email != "" && email != user.Email {
			changes["email"] = email
		}
	}
	if input.IsActive != nil && *input.IsActive != user.IsActive {
		if user.IsRoot && !*input.IsActive {
			return nil, ErrRootUserImmutable
		}
		changes["is_active"] = *input.IsActive
	}
	if len(changes) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(changes).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("username or email already exists")
		}
		return nil, fmt.Errorf("user service: update user: %w", err)
	}

	recordAction(s.actions, ctx, ActionEntry{
		Action:     ActionUserUpdate,
		EntityType: userEntity,
		EntityID:   user.ID,
		Data:       changes,
	})
	return s.GetByID(ctx, id)
}

// SetRoles replaces role assignments for the specified user.
func (s *UserService) SetRoles(ctx context.Context, id string, roleIDs []string) (*models.User, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(id)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}
	cleanIDs := normaliseIDs(roleIDs)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("user service: load user: %w", err)
		}

		var roles []models.Role
		if len(cleanIDs) > 0 {
			if err := tx.Where("id IN ?", cleanIDs).Find(&roles).Error; err != nil {
				return fmt.Errorf("user service: load roles: %w", err)
			}
			if len(roles) != len(cleanIDs) {
				return apperrors.NewBadRequest("one or more roles were not found")
			}
		}

		if err := tx.Model(&user).Association("Roles").Replace(roles); err != nil {
			return fmt.Errorf("user service: replace roles: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordAction(s.actions, ctx, ActionEntry{
		Action:     ActionUserRoles,
		EntityType: userEntity,
		EntityID:   userID,
		Data:       map[string]any{"role_ids": cleanIDs},
	})
	return s.GetByID(ctx, userID)
}

// Delete removes a user unless the account is marked as root.
func (s *UserService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user.IsRoot {
		return ErrRootUserImmutable
	}

	if err := s.db.WithContext(ctx).Model(user).Association("Roles").Clear(); err != nil {
		return fmt.Errorf("user service: clear user roles: %w", err)
	}
	if err := s.db.WithContext(ctx).Delete(user).Error; err != nil {
		return fmt.Errorf("user service: delete user: %w", err)
	}

	recordAction(s.actions, ctx, ActionEntry{
		Action:     ActionUserDelete,
		EntityType: userEntity,
		EntityID:   user.ID,
	})
	return nil
}

// ChangePassword hashes and updates the user's password.
func (s *UserService) ChangePassword(ctx context.Context, id, newPassword string) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(newPassword) == "" {
		return apperrors.NewBadRequest("new password is required")
	}

	hashed, err := hashPassword(newPassword)
	if err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("password", hashed)
	if result.Error != nil {
		return fmt.Errorf("user service: change password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	recordAction(s.actions, ctx, ActionEntry{
		Action:     ActionUserUpdate,
		EntityType: userEntity,
		EntityID:   id,
		Data:       map[string]any{"password": "changed"},
	})
	return nil
}

func hashPassword(password string) (string, error) {
	hashed, err := crypto.HashPassword(password)
	if errors.Is(err, crypto.ErrPasswordTooLong) {
		return "", apperrors.NewBadRequest("password must be at most 72 bytes")
	}
	if err != nil {
		return "", fmt.Errorf("user service: %w", err)
	}
	return hashed, nil
}
