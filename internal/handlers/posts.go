package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/exiloncms/exiloncms/internal/services"
	"github.com/exiloncms/exiloncms/pkg/response"
)

const defaultPostsPerPage = 10

// PostHandler serves news posts to the admin panel and the public site.
type PostHandler struct {
	posts *services.PostService
}

func NewPostHandler(posts *services.PostService) *PostHandler {
	return &PostHandler{posts: posts}
}

type createPostRequest struct {
	Title       string     `json:"title" validate:"required,max=255"`
	Slug        string     `json:"slug" validate:"omitempty,slug"`
	Description string     `json:"description" validate:"max=1000"`
	Content     string     `json:"content" validate:"required"`
	ImageURL    string     `json:"image_url" validate:"omitempty,url"`
	IsPinned    bool       `json:"is_pinned"`
	PublishedAt *time.Time `json:"published_at"`
}

type updatePostRequest struct {
	Title       *string    `json:"title" validate:"omitempty,max=255"`
	Slug        *string    `json:"slug" validate:"omitempty,slug"`
	Description *string    `json:"description" validate:"omitempty,max=1000"`
	Content     *string    `json:"content"`
	ImageURL    *string    `json:"image_url" validate:"omitempty,url"`
	IsPinned    *bool      `json:"is_pinned"`
	PublishedAt *time.Time `json:"published_at"`
	Unpublish   bool       `json:"unpublish"`
}

// GET /api/admin/posts
func (h *PostHandler) List(c *gin.Context) {
	h.list(c, false)
}

// GET /api/posts
func (h *PostHandler) ListPublished(c *gin.Context) {
	h.list(c, true)
}

func (h *PostHandler) list(c *gin.Context, publishedOnly bool) {
	page, perPage := pagination(c, defaultPostsPerPage)
	posts, total, err := h.posts.List(requestContext(c), services.ListPostsOptions{
		Page:          page,
		PageSize:      perPage,
		PublishedOnly: publishedOnly,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, posts, response.NewMeta(page, perPage, total))
}

// GET /api/admin/posts/:id
func (h *PostHandler) Get(c *gin.Context) {
	post, err := h.posts.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, post)
}

// GET /api/posts/:slug
func (h *PostHandler) GetPublished(c *gin.Context) {
	post, err := h.posts.GetPublishedBySlug(requestContext(c), c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, post)
}

// POST /api/admin/posts
func (h *PostHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var body createPostRequest
	if !bindAndValidate(c, &body) {
		return
	}

	input := services.PostInput{
		Title:       &body.Title,
		Description: &body.Description,
		Content:     &body.Content,
		ImageURL:    &body.ImageURL,
		IsPinned:    &body.IsPinned,
		PublishedAt: body.PublishedAt,
	}
	if body.Slug != "" {
		input.Slug = &body.Slug
	}

	post, err := h.posts.Create(requestContext(c), userID, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, post)
}

// PATCH /api/admin/posts/:id
func (h *PostHandler) Update(c *gin.Context) {
	var body updatePostRequest
	if !bindAndValidate(c, &body) {
		return
	}
	post, err := h.posts.Update(requestContext(c), c.Param("id"), services.PostInput{
		Title:       body.Title,
		Slug:        body.Slug,
		Description: body.Description,
		Content:     body.Content,
		ImageURL:    body.ImageURL,
		IsPinned:    body.IsPinned,
		PublishedAt: body.PublishedAt,
		Unpublish:   body.Unpublish,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, post)
}

// DELETE /api/admin/posts/:id
func (h *PostHandler) Delete(c *gin.Context) {
	if err := h.posts.Delete(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
