package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/exiloncms/exiloncms/internal/models"
)

const syncBatchSize = 100

// Sync writes the registry to the permissions table in one transaction so
// roles can be granted core and plugin permissions alike.
func Sync(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("permission: db is required")
	}

	defs := List()
	rows := make([]models.Permission, 0, len(defs))
	for _, perm := range defs {
		deps := perm.DependsOn
		if deps == nil {
			deps = []string{}
		}
		encoded, err := json.Marshal(deps)
		if err != nil {
			return fmt.Errorf("permission: encode dependencies of %s: %w", perm.ID, err)
		}
		rows = append(rows, models.Permission{
			ID:          perm.ID,
			Module:      perm.Module,
			Description: perm.Description,
			DependsOn:   string(encoded),
		})
	}
	if len(rows) == 0 {
		return nil
	}

	return db.WithContext(ensureContext(ctx)).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"module", "description", "depends_on", "updated_at"}),
		}).CreateInBatches(&rows, syncBatchSize).Error
		if err != nil {
			return fmt.Errorf("permission: sync: %w", err)
		}
		return nil
	})
}

// Forget drops every permission of module from the registry and the database,
// revoking it from all roles. It returns the number of permission rows removed.
func Forget(ctx context.Context, db *gorm.DB, module string) (int64, error) {
	if db == nil {
		return 0, errors.New("permission: db is required")
	}
	ids := UnregisterModule(module)

	var removed int64
	err := db.WithContext(ensureContext(ctx)).Transaction(func(tx *gorm.DB) error {
		var stored []string
		if err := tx.Model(&models.Permission{}).Where("module = ?", module).Pluck("id", &stored).Error; err != nil {
			return err
		}
		ids = mergeIDs(ids, stored)
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Exec("DELETE FROM role_permissions WHERE permission_id IN ?", ids).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", ids).Delete(&models.Permission{})
		removed = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, fmt.Errorf("permission: forget %s: %w", module, err)
	}
	return removed, nil
}

func mergeIDs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, id := range append(append([]string(nil), a...), b...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
