package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/exiloncms/exiloncms/internal/auditctx"
	iauth "github.com/exiloncms/exiloncms/internal/auth"
	"github.com/exiloncms/exiloncms/internal/cache"
	"github.com/exiloncms/exiloncms/internal/database/testutil"
)

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret: "secret",
		Issuer: "test-suite",
		TTL:    time.Minute,
	})
	require.NoError(t, err)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	revocations := iauth.NewRevocations(cache.NewDatabaseStore(db))

	issued, err := jwtSvc.Issue(iauth.Identity{UserID: "user-123", Username: "steve"})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/secure", Auth(jwtSvc, revocations), func(c *gin.Context) {
		actor, _ := auditctx.FromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"user_id":  c.GetString(CtxUserIDKey),
			"username": c.GetString(CtxUsernameKey),
			"actor":    actor.Username,
			"source":   actor.Source,
		})
	})

	send := func(header string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/secure", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusUnauthorized, send("").Code)
	require.Equal(t, http.StatusUnauthorized, send("Basic abc").Code)

	w := send("Bearer not-a-token")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	w = send("Bearer " + issued.Token)
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "user-123", payload["user_id"])
	require.Equal(t, "steve", payload["username"])
	require.Equal(t, "steve", payload["actor"])
	require.Equal(t, "api", payload["source"])

	claims, err := jwtSvc.Validate(issued.Token)
	require.NoError(t, err)
	require.NoError(t, revocations.Revoke(context.Background(), claims))
	require.Equal(t, http.StatusUnauthorized, send("Bearer "+issued.Token).Code)
}
