package services

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	apperrors "github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/validator"
)

var contentPolicy = bluemonday.UGCPolicy()

// sanitizeHTML strips scripts and unsafe attributes from editor content.
func sanitizeHTML(value string) string {
	return strings.TrimSpace(contentPolicy.Sanitize(value))
}

// Slugify turns a title into a lowercase ASCII slug: "Événement d'été" -> "evenement-d-ete".
func Slugify(value string) string {
	var b strings.Builder
	dash := false
	for _, r := range norm.NFD.String(strings.ToLower(value)) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// resolveSlug validates an explicit slug or derives one from the title.
func resolveSlug(slug, title string) (string, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		slug = Slugify(title)
	}
	if !validator.IsSlug(slug) {
		return "", apperrors.NewBadRequest(fmt.Sprintf("invalid slug %q", slug))
	}
	return slug, nil
}

// ensureSlugFree rejects a slug already used by another live row of model.
func ensureSlugFree(ctx context.Context, db *gorm.DB, model any, slug, exceptID string) error {
	query := db.WithContext(ctx).Model(model).Where("slug = ?", slug)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("check slug: %w", err)
	}
	if count > 0 {
		return apperrors.NewConflict(fmt.Sprintf("slug %q is already used", slug))
	}
	return nil
}
