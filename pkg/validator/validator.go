// Package validator wraps go-playground/validator with the CMS rules and
// turns failures into messages the admin panel can show next to form fields.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// MaxSlugLength bounds extension, page and post identifiers.
const MaxSlugLength = 64

var (
	slugPattern     = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

	once     sync.Once
	validate *validator.Validate
)

// FieldError is one failed rule, keyed by the JSON name of the field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// Errors lists every failed rule of a payload.
type Errors []FieldError

func (e Errors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(e))
	for i, failure := range e {
		messages[i] = failure.Message
	}
	return strings.Join(messages, "; ")
}

// IsSlug reports whether value is a lowercase slug such as "shop" or "vote-rewards".
func IsSlug(value string) bool {
	return value != "" && len(value) <= MaxSlugLength && slugPattern.MatchString(value)
}

// Struct validates s. Rule failures are returned as Errors; anything else,
// such as passing a non-struct, is returned unchanged.
func Struct(s any) error {
	err := instance().Struct(s)
	var failures validator.ValidationErrors
	if !errors.As(err, &failures) {
		return err
	}

	out := make(Errors, 0, len(failures))
	for _, fe := range failures {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Message: describe(fe.Field(), fe.Tag(), fe.Param()),
		})
	}
	return out
}

func describe(field, rule, param string) string {
	label := strings.ToLower(strings.ReplaceAll(field, "_", " "))
	switch rule {
	case "required":
		return label + " is required"
	case "email":
		return label + " must be a valid email address"
	case "url":
		return label + " must be a valid URL"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", label, param)
	case "slug":
		return label + " must be a lowercase slug"
	case "username":
		return label + " may only contain letters, digits, dots, dashes and underscores"
	case "":
		return label + " is invalid"
	}
	if param != "" {
		return fmt.Sprintf("%s failed %s=%s", label, rule, param)
	}
	return fmt.Sprintf("%s failed %s", label, rule)
}

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonName)
		_ = validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
			return IsSlug(fl.Field().String())
		})
		_ = validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return usernamePattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

func jsonName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return field.Name
	}
	return name
}
