package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/cache"
	"github.com/exiloncms/exiloncms/internal/models"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/logger"
)

// ErrNavbarElementNotFound indicates the requested navbar entry does not exist.
var ErrNavbarElementNotFound = apperrors.New("NAVBAR_ELEMENT_NOT_FOUND", "Navbar element not found", http.StatusNotFound)

const (
	navbarCacheKey = "navbar:tree"
	navbarCacheTTL = 30 * time.Minute
)

var navbarTypes = map[string]struct{}{
	models.NavbarTypeLink:     {},
	models.NavbarTypePage:     {},
	models.NavbarTypePost:     {},
	models.NavbarTypePosts:    {},
	models.NavbarTypePlugin:   {},
	models.NavbarTypeDropdown: {},
}

// NavbarInput carries navbar element fields.
type NavbarInput struct {
	Name     string
	Type     string
	Value    string
	Icon     string
	ParentID *string
	NewTab   bool
	RoleID   *string
}

// NavbarPosition moves one element during a reorder.
type NavbarPosition struct {
	ID       string  `json:"id" validate:"required"`
	Position int     `json:"position"`
	ParentID *string `json:"parent_id"`
}

// NavbarService manages the public site navigation.
type NavbarService struct {
	db      *gorm.DB
	store   cache.Store
	actions *ActionLogService
	log     *zap.Logger
}

// NewNavbarService constructs a NavbarService. store may be nil.
func NewNavbarService(db *gorm.DB, store cache.Store, actions *ActionLogService) (*NavbarService, error) {
	if db == nil {
		return nil, errors.New("navbar service: db is required")
	}
	return &NavbarService{db: db, store: store, actions: actions, log: logger.WithModule("navbar")}, nil
}

// Tree returns top-level elements with their children, ordered by position.
func (s *NavbarService) Tree(ctx context.Context) ([]models.NavbarElement, error) {
	ctx = ensureContext(ctx)

	if s.store != nil {
		if tree, ok, err := cache.GetJSON[[]models.NavbarElement](ctx, s.store, navbarCacheKey); err == nil && ok {
			return tree, nil
		}
	}

	var roots []models.NavbarElement
	err := s.db.WithContext(ctx).
		Preload("Children", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC").Order("created_at ASC")
		}).
		Where("parent_id IS NULL").
		Order("position ASC").
		Order("created_at ASC").
		Find(&roots).Error
	if err != nil {
		return nil, fmt.Errorf("navbar service: load tree: %w", err)
	}

	if s.store != nil {
		if err := cache.SetJSON(ctx, s.store, navbarCacheKey, roots, navbarCacheTTL); err != nil {
			s.log.Warn("navbar cache write failed", zap.Error(err))
		}
	}
	return roots, nil
}

// Create appends a new element at the end of its level.
func (s *NavbarService) Create(ctx context.Context, input NavbarInput) (*models.NavbarElement, error) {
	ctx = ensureContext(ctx)

	element := &models.NavbarElement{}
	if err := s.apply(ctx, element, input); err != nil {
		return nil, err
	}

	var last struct{ Max *int }
	query := s.db.WithContext(ctx).Model(&models.NavbarElement{}).Select("MAX(position) AS max")
	if element.ParentID == nil {
		query = query.Where("parent_id IS NULL")
	} else {
		query = query.Where("parent_id = ?", *element.ParentID)
	}
	if err := query.Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("navbar service: next position: %w", err)
	}
	if last.Max != nil {
		element.Position = *last.Max + 1
	}

	if err := s.db.WithContext(ctx).Create(element).Error; err != nil {
		return nil, fmt.Errorf("navbar service: create: %w", err)
	}
	s.changed(ctx, element.ID)
	return element, nil
}

// Update replaces the attributes of an element.
func (s *NavbarService) Update(ctx context.Context, id string, input NavbarInput) (*models.NavbarElement, error) {
	ctx = ensureContext(ctx)

	element, err := s.get(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, element, input); err != nil {
		return nil, err
	}
	if element.ParentID != nil && *element.ParentID == element.ID {
		return nil, apperrors.NewBadRequest("an element cannot be its own parent")
	}

	if err := s.db.WithContext(ctx).Model(element).Select("name", "type", "value", "icon", "parent_id", "new_tab", "role_id").Updates(element).Error; err != nil {
		return nil, fmt.Errorf("navbar service: update: %w", err)
	}
	s.changed(ctx, element.ID)
	return element, nil
}

// Delete removes an element and, for dropdowns, its children.
func (s *NavbarService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		element, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := tx.Where("parent_id = ?", element.ID).Delete(&models.NavbarElement{}).Error; err != nil {
			return fmt.Errorf("navbar service: delete children: %w", err)
		}
		if err := tx.Delete(element).Error; err != nil {
			return fmt.Errorf("navbar service: delete: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.changed(ctx, id)
	return nil
}

// Reorder applies positions and parents in a single transaction.
func (s *NavbarService) Reorder(ctx context.Context, positions []NavbarPosition) error {
	ctx = ensureContext(ctx)
	if len(positions) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, pos := range positions {
			element, err := s.get(ctx, tx, pos.ID)
			if err != nil {
				return err
			}
			parentID := cleanOptionalID(pos.ParentID)
			if parentID != nil {
				if *parentID == element.ID {
					return apperrors.NewBadRequest("an element cannot be its own parent")
				}
				if element.Type == models.NavbarTypeDropdown {
					return apperrors.NewBadRequest("dropdowns cannot be nested")
				}
				parent, err := s.get(ctx, tx, *parentID)
				if err != nil {
					return err
				}
				if parent.Type != models.NavbarTypeDropdown {
					return apperrors.NewBadRequest("parent must be a dropdown")
				}
			}
			if err := tx.Model(element).Updates(map[string]any{
				"position":  pos.Position,
				"parent_id": parentID,
			}).Error; err != nil {
				return fmt.Errorf("navbar service: reorder: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.changed(ctx, "")
	return nil
}

// Invalidate drops the cached tree.
func (s *NavbarService) Invalidate(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.Delete(ensureContext(ctx), navbarCacheKey); err != nil {
		s.log.Warn("navbar cache not cleared", zap.Error(err))
	}
}

func (s *NavbarService) apply(ctx context.Context, element *models.NavbarElement, input NavbarInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return apperrors.NewBadRequest("name is required")
	}
	kind := strings.ToLower(strings.TrimSpace(input.Type))
	if _, ok := navbarTypes[kind]; !ok {
		return apperrors.NewBadRequest(fmt.Sprintf("unsupported navbar type %q", input.Type))
	}
	value := strings.TrimSpace(input.Value)
	if kind != models.NavbarTypeDropdown && kind != models.NavbarTypePosts && value == "" {
		return apperrors.NewBadRequest("value is required")
	}

	parentID := cleanOptionalID(input.ParentID)
	if parentID != nil {
		if kind == models.NavbarTypeDropdown {
			return apperrors.NewBadRequest("dropdowns cannot be nested")
		}
		parent, err := s.get(ctx, s.db, *parentID)
		if err != nil {
			return err
		}
		if parent.Type != models.NavbarTypeDropdown {
			return apperrors.NewBadRequest("parent must be a dropdown")
		}
	}

	element.Name = name
	element.Type = kind
	element.Value = value
	element.Icon = strings.TrimSpace(input.Icon)
	element.ParentID = parentID
	element.NewTab = input.NewTab
	element.RoleID = cleanOptionalID(input.RoleID)
	return nil
}

func (s *NavbarService) get(ctx context.Context, db *gorm.DB, id string) (*models.NavbarElement, error) {
	var element models.NavbarElement
	err := db.WithContext(ctx).First(&element, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNavbarElementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("navbar service: load element: %w", err)
	}
	return &element, nil
}

func (s *NavbarService) changed(ctx context.Context, id string) {
	s.Invalidate(ctx)
	recordAction(s.actions, ctx, ActionEntry{Action: ActionNavbarUpdate, EntityType: "navbar_element", EntityID: id})
}

func cleanOptionalID(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
