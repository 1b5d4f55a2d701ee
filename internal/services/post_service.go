package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/exiloncms/exiloncms/internal/models"
	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
)

// ErrPostNotFound indicates the requested post does not exist or is not published.
var ErrPostNotFound = apperrors.New("POST_NOT_FOUND", "Post not found", http.StatusNotFound)

// PostInput carries post fields. Nil pointers leave values untouched on update.
type PostInput struct {
	Title       *string
	Slug        *string
	Description *string
	Content     *string
	ImageURL    *string
	IsPinned    *bool
	PublishedAt *time.Time
	// Unpublish clears PublishedAt when set.
	Unpublish bool
}

// ListPostsOptions controls post listing.
type ListPostsOptions struct {
	Page          int
	PageSize      int
	PublishedOnly bool
}

// PostService manages news posts.
type PostService struct {
	db      *gorm.DB
	actions *ActionLogService
	now     func() time.Time
}

// NewPostService constructs a PostService.
func NewPostService(db *gorm.DB, actions *ActionLogService) (*PostService, error) {
	if db == nil {
		return nil, errors.New("post service: db is required")
	}
	return &PostService{db: db, actions: actions, now: time.Now}, nil
}

// Create stores a new post authored by authorID.
func (s *PostService) Create(ctx context.Context, authorID string, input PostInput) (*models.Post, error) {
	ctx = ensureContext(ctx)

	title := strings.TrimSpace(deref(input.Title))
	if title == "" {
		return nil, apperrors.NewBadRequest("title is required")
	}
	content := sanitizeHTML(deref(input.Content))
	if content == "" {
		return nil, apperrors.NewBadRequest("content is required")
	}
	slug, err := resolveSlug(deref(input.Slug), title)
	if err != nil {
		return nil, err
	}
	if err := ensureSlugFree(ctx, s.db, &models.Post{}, slug, ""); err != nil {
		return nil, err
	}

	post := &models.Post{
		Title:       title,
		Slug:        slug,
		Description: strings.TrimSpace(deref(input.Description)),
		Content:     content,
		ImageURL:    strings.TrimSpace(deref(input.ImageURL)),
	}
	if input.PublishedAt != nil {
		at := input.PublishedAt.UTC()
		post.PublishedAt = &at
	}
	if input.IsPinned != nil {
		post.IsPinned = *input.IsPinned
	}
	if id := strings.TrimSpace(authorID); id != "" {
		post.AuthorID = &id
	}

	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return nil, fmt.Errorf("post service: create: %w", err)
	}

	recordAction(s.actions, ctx, ActionEntry{Action: ActionPostCreate, EntityType: "post", EntityID: post.ID, Data: map[string]any{"slug": slug}})
	return post, nil
}

// Get loads a post by id regardless of publication state.
func (s *PostService) Get(ctx context.Context, id string) (*models.Post, error) {
	ctx = ensureContext(ctx)
	var post models.Post
	err := s.db.WithContext(ctx).Preload("Author").First(&post, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("post service: get: %w", err)
	}
	return &post, nil
}

// GetPublishedBySlug returns a post visible to the public.
func (s *PostService) GetPublishedBySlug(ctx context.Context, slug string) (*models.Post, error) {
	ctx = ensureContext(ctx)
	var post models.Post
	err := s.db.WithContext(ctx).
		Preload("Author").
		Where("slug = ? AND published_at IS NOT NULL AND published_at <= ?", strings.TrimSpace(slug), s.now().UTC()).
		First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("post service: get by slug: %w", err)
	}
	return &post, nil
}

// List returns posts, pinned first then newest.
func (s *PostService) List(ctx context.Context, opts ListPostsOptions) ([]models.Post, int64, error) {
	ctx = ensureContext(ctx)
	page, perPage := clampPage(opts.Page, opts.PageSize, 100, 20)

	query := s.db.WithContext(ctx).Model(&models.Post{})
	if opts.PublishedOnly {
		query = query.Where("published_at IS NOT NULL AND published_at <= ?", s.now().UTC())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("post service: count: %w", err)
	}

	var posts []models.Post
	if err := query.
		Preload("Author").
		Order("is_pinned DESC").
		Order("published_at DESC").
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&posts).Error; err != nil {
		return nil, 0, fmt.Errorf("post service: list: %w", err)
	}
	return posts, total, nil
}

// Update applies the non-nil fields of input.
func (s *PostService) Update(ctx context.Context, id string, input PostInput) (*models.Post, error) {
	ctx = ensureContext(ctx)

	post, err := s.Get(ctx, id)
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
		slug, err := resolveSlug(*input.Slug, defaultIfEmpty(deref(input.Title), post.Title))
		if err != nil {
			return nil, err
		}
		if slug != post.Slug {
			if err := ensureSlugFree(ctx, s.db, &models.Post{}, slug, post.ID); err != nil {
				return nil, err
			}
			changes["slug"] = slug
		}
	}
	if input.Description != nil {
		changes["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Content != nil {
		content := sanitizeHTML(*input.Content)
		if content == "" {
			return nil, apperrors.NewBadRequest("content is required")
		}
		changes["content"] = content
	}
	if input.ImageURL != nil {
		changes["image_url"] = strings.TrimSpace(*input.ImageURL)
	}
	if input.IsPinned != nil {
		changes["is_pinned"] = *input.IsPinned
	}
	switch {
	case input.Unpublish:
		changes["published_at"] = nil
	case input.PublishedAt != nil:
		changes["published_at"] = input.PublishedAt.UTC()
	}
	if len(changes) == 0 {
		return post, nil
	}

	if err := s.db.WithContext(ctx).Model(post).Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("post service: update: %w", err)
	}
	recordAction(s.actions, ctx, ActionEntry{Action: ActionPostUpdate, EntityType: "post", EntityID: post.ID})
	return s.Get(ctx, id)
}

// Delete soft deletes a post.
func (s *PostService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).Delete(&models.Post{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("post service: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPostNotFound
	}
	recordAction(s.actions, ctx, ActionEntry{Action: ActionPostDelete, EntityType: "post", EntityID: id})
	return nil
}

func deref[T any](value *T) T {
	var zero T
	if value == nil {
		return zero
	}
	return *value
}
