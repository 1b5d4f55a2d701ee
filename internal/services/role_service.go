package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/database"
	"github.com/exiloncms/exiloncms/internal/models"
	"github.com/exiloncms/exiloncms/internal/permissions"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
)

var (
	// ErrRoleNotFound indicates the requested role does not exist.
	ErrRoleNotFound = apperrors.New("ROLE_NOT_FOUND", "Role not found", http.StatusNotFound)
	// ErrSystemRoleImmutable prevents destructive operations on system roles.
	ErrSystemRoleImmutable = apperrors.New("ROLE_IMMUTABLE", "System roles cannot be modified", http.StatusBadRequest)
)

const roleEntity = "role"

// RoleService manages roles and their permission grants.
type RoleService struct {
	db      *gorm.DB
	actions *ActionLogService
}

// NewRoleService constructs a RoleService using the provided database handle.
func NewRoleService(db *gorm.DB, actions *ActionLogService) (*RoleService, error) {
	if db == nil {
		return nil, errors.New("role service: db is required")
	}
	return &RoleService{db: db, actions: actions}, nil
}

// RoleInput describes the payload accepted by Create and Update.
type RoleInput struct {
	Name        string
	Description string
	Color       string
	Power       *int
}

// Create registers a new role.
func (s *RoleService) Create(ctx context.Context, input RoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("role name is required")
	}

	role := &models.Role{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Color:       strings.TrimSpace(input.Color),
	}
	if input.Power != nil {
		role.Power = *input.Power
	}

	if err := s.db.WithContext(ctx).Create(role).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("role name already exists")
		}
		return nil, fmt.Errorf("role service: create role: %w", err)
	}

	recordAction(s.actions, ctx, ActionEntry{
		Action:     ActionRoleCreate,
		EntityType: roleEntity,
		EntityID:   role.ID,
		Data:       map[string]any{"name": role.Name},
	})
	return role, nil
}

// Get loads a role with its permissions.
func (s *RoleService) Get(ctx context.Context, roleID string) (*models.Role, error) {
	ctx = ensureContext(ctx)

	var role models.Role
	if err := s.db.WithContext(ctx).Preload("Permissions").First(&role, "id = ?", roleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("role service: load role: %w", err)
	}
	return &role, nil
}

// Update modifies role metadata. System roles keep their name.
func (s *RoleService) Update(ctx context.Context, roleID string, input RoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)

	role, err := s.Get(ctx, roleID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if role.IsSystem && name != "" && name != role.Name {
		return nil, ErrSystemRoleImmutable
	}

	changes := map[string]any{}
	if name != "" && name != role.Name {
		changes["name"] = name
	}
	if desc := strings.TrimSpace(input.Description); desc != role.Description {
		changes["description"] = desc
	}
	if color := strings.TrimSpace(input.Color); color != "" && color != role.Color {
		changes["color"] = color
	}
	if input.Power != nil && *input.Power != role.Power {
		changes["power"] = *input.Power
	}
	if len(changes) == 0 {
		return role, nil
	}

	if err := s.db.WithContext(ctx).Model(role).Updates(changes).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("role name already exists")
		}
		return nil, fmt.Errorf("role service: update role: %w", err)
	}

	recordAction(s.actions, ctx, ActionEntry{
		Action:     ActionRoleUpdate,
		EntityType: roleEntity,
		EntityID:   role.ID,
		Data:       changes,
	})
	return s.Get(ctx, roleID)
}

// Delete removes non-system roles permanently.
func (s *RoleService) Delete(ctx context.Context, roleID string) error {
	ctx = ensureContext(ctx)

	role, err := s.Get(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return ErrSystemRoleImmutable
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(role).Association("Permissions").Clear(); err != nil {
			return fmt.Errorf("role service: clear role permissions: %w", err)
		}
		if err := tx.Model(role).Association("Users").Clear(); err != nil {
			return fmt.Errorf("role service: clear role users: %w", err)
		}
		if err := tx.Delete(role).Error; err != nil {
			return fmt.Errorf("role service: delete role: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	recordAction(s.actions, ctx, ActionEntry{
		Action:     ActionRoleDelete,
		EntityType: roleEntity,
		EntityID:   role.ID,
		Data:       map[string]any{"name": role.Name},
	})
	return nil
}

// List returns all roles by descending power.
func (s *RoleService) List(ctx context.Context) ([]models.Role, error) {
	ctx = ensureContext(ctx)

	var roles []models.Role
	if err := s.db.WithContext(ctx).Preload("Permissions").Order("power DESC, name ASC").Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("role service: list roles: %w", err)
	}
	return roles, nil
}

// SetPermissions replaces the role's permissions with the provided set plus
// their dependencies. The admin role always holds every permission.
func (s *RoleService) SetPermissions(ctx context.Context, roleID string, permissionIDs []string) ([]string, error) {
	ctx = ensureContext(ctx)
	if roleID == database.RoleAdmin {
		return nil, ErrSystemRoleImmutable
	}

	var applied []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var role models.Role
		if err := tx.First(&role, "id = ?", roleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoleNotFound
			}
			return fmt.Errorf("role service: load role: %w", err)
		}

		finalSet, err := expandWithDependencies(permissionIDs)
		if err != nil {
			return err
		}

		applied = make([]string, 0, len(finalSet))
		for id := range finalSet {
			applied = append(applied, id)
		}
		sort.Strings(applied)

		if len(applied) == 0 {
			return tx.Model(&role).Association("Permissions").Clear()
		}

		var perms []models.Permission
		if err := tx.Where("id IN ?", applied).Find(&perms).Error; err != nil {
			return fmt.Errorf("role service: load permissions: %w", err)
		}
		if len(perms) != len(applied) {
			return errors.New("role service: some permissions are missing in database")
		}
		if err := tx.Model(&role).Association("Permissions").Replace(perms); err != nil {
			return fmt.Errorf("role service: update permissions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordAction(s.actions, ctx, ActionEntry{
		Action:     ActionRoleUpdate,
		EntityType: roleEntity,
		EntityID:   roleID,
		Data:       map[string]any{"permission_ids": applied},
	})
	return applied, nil
}

func expandWithDependencies(permissionIDs []string) (map[string]struct{}, error) {
	final := make(map[string]struct{})

	for _, id := range permissionIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := permissions.Get(id); !ok {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("%s %q", permissions.ErrUnknownPermission.Error(), id))
		}

		final[id] = struct{}{}

		deps, err := permissions.ResolveDependencies(id)
		if err != nil {
			return nil, apperrors.NewBadRequest(err.Error())
		}
		for _, dep := range deps {
			final[dep] = struct{}{}
		}
	}
	return final, nil
}
