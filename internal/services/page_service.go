package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/models"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
)

// ErrPageNotFound indicates the requested page does not exist or is disabled.
var ErrPageNotFound = apperrors.New("PAGE_NOT_FOUND", "Page not found", http.StatusNotFound)

// PageInput carries page fields. Nil pointers leave values untouched on update.
type PageInput struct {
	Title       *string
	Slug        *string
	Description *string
	Content     *string
	IsEnabled   *bool
}

// PageService manages static pages.
type PageService struct {
	db      *gorm.DB
	actions *ActionLogService
}

// NewPageService constructs a PageService.
func NewPageService(db *gorm.DB, actions *ActionLogService) (*PageService, error) {
	if db == nil {
		return nil, errors.New("page service: db is required")
	}
	return &PageService{db: db, actions: actions}, nil
}

// Create stores a new page.
func (s *PageService) Create(ctx context.Context, input PageInput) (*models.Page, error) {
	ctx = ensureContext(ctx)

	title := strings.TrimSpace(deref(input.Title))
	if title == "" {
		return nil, apperrors.NewBadRequest("title is required")
	}
	slug, err := resolveSlug(deref(input.Slug), title)
	if err != nil {
		return nil, err
	}
	if err := ensureSlugFree(ctx, s.db, &models.Page{}, slug, ""); err != nil {
		return nil, err
	}

	page := &models.Page{
		Title:       title,
		Slug:        slug,
		Description: strings.TrimSpace(deref(input.Description)),
		Content:     sanitizeHTML(deref(input.Content)),
		IsEnabled:   true,
	}
	if err := s.db.WithContext(ctx).Create(page).Error; err != nil {
		return nil, fmt.Errorf("page service: create: %w", err)
	}
	if input.IsEnabled != nil && !*input.IsEnabled {
		if err := s.db.WithContext(ctx).Model(page).Update("is_enabled", false).Error; err != nil {
			return nil, fmt.Errorf("page service: create: %w", err)
		}
		page.IsEnabled = false
	}

	recordAction(s.actions, ctx, ActionEntry{Action: ActionPageCreate, EntityType: "page", EntityID: page.ID, Data: map[string]any{"slug": slug}})
	return page, nil
}

// Get loads a page by id.
func (s *PageService) Get(ctx context.Context, id string) (*models.Page, error) {
	ctx = ensureContext(ctx)
	var page models.Page
	err := s.db.WithContext(ctx).First(&page, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("page service: get: %w", err)
	}
	return &page, nil
}

// GetEnabledBySlug returns an enabled page for public display.
func (s *PageService) GetEnabledBySlug(ctx context.Context, slug string) (*models.Page, error) {
	ctx = ensureContext(ctx)
	var page models.Page
	err := s.db.WithContext(ctx).
		Where("slug = ? AND is_enabled = ?", strings.TrimSpace(slug), true).
		First(&page).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("page service: get by slug: %w", err)
	}
	return &page, nil
}

// List returns every page ordered by title.
func (s *PageService) List(ctx context.Context) ([]models.Page, error) {
	ctx = ensureContext(ctx)
	var pages []models.Page
	if err := s.db.WithContext(ctx).Order("title ASC").Find(&pages).Error; err != nil {
		return nil, fmt.Errorf("page service: list: %w", err)
	}
	return pages, nil
}

// Update applies the non-nil fields of input.
func (s *PageService) Update(ctx context.Context, id string, input PageInput) (*models.Page, error) {
	ctx = ensureContext(ctx)

	page, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apperrors.NewBadRequest("title is required")
		}
		changes["title"] = title
	}
	if input.Slug != nil {
		slug, err := resolveSlug(*input.Slug, defaultIfEmpty(deref(input.Title), page.Title))
		if err != nil {
			return nil, err
		}
		if slug != page.Slug {
			if err := ensureSlugFree(ctx, s.db, &models.Page{}, slug, page.ID); err != nil {
				return nil, err
			}
			changes["slug"] = slug
		}
	}
	if input.Description != nil {
		changes["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Content != nil {
		changes["content"] = sanitizeHTML(*input.Content)
	}
	if input.IsEnabled != nil {
		changes["is_enabled"] = *input.IsEnabled
	}
	if len(changes) == 0 {
		return page, nil
	}

	if err := s.db.WithContext(ctx).Model(page).Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("page service: update: %w", err)
	}
	recordAction(s.actions, ctx, ActionEntry{Action: ActionPageUpdate, EntityType: "page", EntityID: page.ID})
	return s.Get(ctx, id)
}

// Delete soft deletes a page.
func (s *PageService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).Delete(&models.Page{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("page service: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPageNotFound
	}
	recordAction(s.actions, ctx, ActionEntry{Action: ActionPageDelete, EntityType: "page", EntityID: id})
	return nil
}
