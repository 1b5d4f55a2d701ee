package permissions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/models"
)

// Checker evaluates user permissions against the registry.
type Checker struct {
	db *gorm.DB
}

// NewChecker constructs a permission checker backed by the provided database.
func NewChecker(db *gorm.DB) (*Checker, error) {
	if db == nil {
		return nil, errors.New("permission checker: db is required")
	}
	return &Checker{db: db}, nil
}

// Check reports whether the user holds permissionID and every permission it depends on.
// Root users are always allowed.
func (c *Checker) Check(ctx context.Context, userID, permissionID string) (bool, error) {
	permissionID = strings.TrimSpace(permissionID)
	if permissionID == "" {
		return false, errors.New("permission checker: permission id is required")
	}

	user, err := c.loadUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if user.IsRoot {
		return true, nil
	}
	if !user.IsActive {
		return false, nil
	}

	deps, err := ResolveDependencies(permissionID)
	if err != nil {
		return false, err
	}

	granted := grantedPermissions(user)
	for _, id := range append(deps, permissionID) {
		if _, ok := granted[id]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// GetUserPermissions returns the distinct permission IDs granted to the user.
func (c *Checker) GetUserPermissions(ctx context.Context, userID string) ([]string, error) {
	user, err := c.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var ids []string
	if user.IsRoot {
		for id := range GetAll() {
			ids = append(ids, id)
		}
	} else {
		for id := range grantedPermissions(user) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *Checker) loadUser(ctx context.Context, userID string) (*models.User, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("permission checker: user id is required")
	}

	var user models.User
	if err := c.db.WithContext(ctx).
		Preload("Roles.Permissions").
		First(&user, "id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("permission checker: load user: %w", err)
	}
	return &user, nil
}

func grantedPermissions(user *models.User) map[string]struct{} {
	granted := make(map[string]struct{})
	for _, role := range user.Roles {
		for _, perm := range role.Permissions {
			granted[perm.ID] = struct{}{}
		}
	}
	return granted
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
