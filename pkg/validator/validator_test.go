package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type registration struct {
	Username string `json:"username" validate:"required,min=3,max=32,username"`
	Email    string `json:"email" validate:"required,email"`
	Website  string `json:"website_url" validate:"omitempty,url"`
}

func TestStructAcceptsValidPayload(t *testing.T) {
	require.NoError(t, Struct(registration{Username: "Notch_01", Email: "notch@example.com"}))
}

func TestStructDescribesEachFailure(t *testing.T) {
	err := Struct(registration{Username: "bad name", Email: "nope", Website: "not a url"})

	var failures Errors
	require.ErrorAs(t, err, &failures)
	require.Len(t, failures, 3)

	byField := map[string]FieldError{}
	for _, failure := range failures {
		byField[failure.Field] = failure
	}
	require.Equal(t, "username", byField["username"].Rule)
	require.Equal(t, "email must be a valid email address", byField["email"].Message)
	require.Equal(t, "website url must be a valid URL", byField["website_url"].Message)
	require.Contains(t, err.Error(), "; ")
}

func TestStructReportsLengthParams(t *testing.T) {
	err := Struct(registration{Username: "ab", Email: "a@b.co"})
	var failures Errors
	require.ErrorAs(t, err, &failures)
	require.Equal(t, FieldError{Field: "username", Rule: "min", Param: "3", Message: "username must be at least 3 characters"}, failures[0])
}

func TestStructPassesThroughNonValidationErrors(t *testing.T) {
	err := Struct("not a struct")
	require.Error(t, err)
	var failures Errors
	require.False(t, errors.As(err, &failures))
}

func TestSlugRule(t *testing.T) {
	type payload struct {
		ID string `json:"id" validate:"required,slug"`
	}

	for _, id := range []string{"shop", "vote-rewards", "discord_link", "v2"} {
		require.NoError(t, Struct(payload{ID: id}), id)
	}
	for _, id := range []string{"Shop", "-leading", "trailing-", "double--dash", "../escape", "with space"} {
		require.Error(t, Struct(payload{ID: id}), id)
	}
}

func TestIsSlugLength(t *testing.T) {
	long := strings.Repeat("a", MaxSlugLength+1)
	require.False(t, IsSlug(long))
	require.True(t, IsSlug(long[:MaxSlugLength]))
}
