package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/exiloncms/exiloncms/internal/database/testutil"
	"github.com/exiloncms/exiloncms/internal/models"
	"github.com/exiloncms/exiloncms/internal/permissions"
)

func TestRequirePermissionWithoutAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/secure", RequirePermission(&permissions.Checker{}, "admin.plugins"), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secure", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequirePermission(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	checker, err := permissions.NewChecker(db)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)

	root := &models.User{Username: "root", Email: "root@example.com", Password: string(hash), IsRoot: true, IsActive: true}
	member := &models.User{Username: "steve", Email: "steve@example.com", Password: string(hash), IsActive: true}
	require.NoError(t, db.WithContext(context.Background()).Create(root).Error)
	require.NoError(t, db.Create(member).Error)

	serve := func(userID string) int {
		r := gin.New()
		r.GET("/secure", func(c *gin.Context) {
			c.Set(CtxUserIDKey, userID)
			c.Next()
		}, RequirePermission(checker, "admin.plugins"), func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secure", nil))
		return w.Code
	}

	require.Equal(t, http.StatusOK, serve(root.ID))
	require.Equal(t, http.StatusForbidden, serve(member.ID))
	require.Equal(t, http.StatusForbidden, serve("missing-user"))
}
