package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/exiloncms/exiloncms/internal/app"
	"github.com/exiloncms/exiloncms/internal/app/container"
	"github.com/exiloncms/exiloncms/internal/database/testutil"
	"github.com/exiloncms/exiloncms/internal/middleware"
	"github.com/exiloncms/exiloncms/internal/services"
	"github.com/exiloncms/exiloncms/pkg/response"
)

func newTestContainer(t *testing.T) *container.Container {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	cfg := &app.Config{
		Database: app.DatabaseConfig{Driver: "sqlite"},
		Extensions: app.ExtensionsConfig{
			PluginsPath:   filepath.Join(root, "plugins"),
			ThemesPath:    filepath.Join(root, "themes"),
			TempPath:      filepath.Join(root, "tmp"),
			MaxUploadSize: 1 << 20,
			CoreVersion:   "1.0.0",
		},
		Backup: app.BackupConfig{Dir: filepath.Join(root, "backups")},
	}

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	c, err := container.New(context.Background(), cfg, container.WithDB(db))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func decodeData(t *testing.T, recorder *httptest.ResponseRecorder, dest any) response.Response {
	t.Helper()
	var payload response.Response
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	if dest != nil {
		raw, err := json.Marshal(payload.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, dest))
	}
	return payload
}

func jsonContext(method, target string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	raw, _ := json.Marshal(body)
	c.Request = httptest.NewRequest(method, target, bytes.NewReader(raw))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, recorder
}

func uploadContext(t *testing.T, files map[string]string, replace bool) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("file", "extension.zip")
	require.NoError(t, err)
	_, err = part.Write(archive.Bytes())
	require.NoError(t, err)
	if replace {
		require.NoError(t, mw.WriteField("replace", "true"))
	}
	require.NoError(t, mw.Close())

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/admin/plugins/upload", &form)
	c.Request.Header.Set("Content-Type", mw.FormDataContentType())
	return c, recorder
}

func TestPluginHandlerToggleTwiceRestoresState(t *testing.T) {
	svc := newTestContainer(t)
	dir := filepath.Join(svc.Config.Extensions.PluginsPath, "shop")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(`{"id":"shop","name":"Shop","version":"1.0.0"}`), 0o644))

	handler := NewPluginHandler(svc.Plugins, svc.Config.Extensions.MaxUploadSize)

	states := make([]bool, 0, 2)
	for i := 0; i < 2; i++ {
		c, recorder := jsonContext(http.MethodPost, "/api/admin/plugins/shop/toggle", nil)
		c.Params = gin.Params{{Key: "id", Value: "shop"}}
		handler.Toggle(c)
		require.Equal(t, http.StatusOK, recorder.Code)

		var body struct {
			Enabled bool `json:"enabled"`
		}
		decodeData(t, recorder, &body)
		states = append(states, body.Enabled)
	}
	require.Equal(t, []bool{true, false}, states)

	enabled, err := svc.Plugins.IsEnabled(context.Background(), "shop")
	require.NoError(t, err)
	require.False(t, enabled)
}

func TestPluginHandlerUpload(t *testing.T) {
	svc := newTestContainer(t)
	handler := NewPluginHandler(svc.Plugins, svc.Config.Extensions.MaxUploadSize)

	c, recorder := uploadContext(t, map[string]string{"README.md": "no manifest here"}, false)
	handler.Upload(c)
	require.Contains(t, []int{http.StatusBadRequest, http.StatusUnprocessableEntity}, recorder.Code)
	_, err := os.Stat(filepath.Join(svc.Config.Extensions.PluginsPath, "README.md"))
	require.True(t, os.IsNotExist(err))

	c, recorder = uploadContext(t, map[string]string{
		"vote-main/plugin.json": `{"plugin_id":"vote","name":"Vote","version":"1.0.0"}`,
	}, false)
	handler.Upload(c)
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var dto services.ExtensionDTO
	decodeData(t, recorder, &dto)
	require.Equal(t, "vote", dto.ID)
	require.Equal(t, services.SourceUpload, dto.Source)

	c, recorder = uploadContext(t, map[string]string{
		"plugin.json": `{"id":"vote","name":"Vote","version":"1.1.0"}`,
	}, false)
	handler.Upload(c)
	require.Equal(t, http.StatusConflict, recorder.Code)

	c, recorder = uploadContext(t, map[string]string{
		"plugin.json": `{"id":"vote","name":"Vote","version":"1.1.0"}`,
	}, true)
	handler.Upload(c)
	require.Equal(t, http.StatusCreated, recorder.Code)
}

func TestPluginHandlerUploadRequiresFile(t *testing.T) {
	svc := newTestContainer(t)
	handler := NewPluginHandler(svc.Plugins, svc.Config.Extensions.MaxUploadSize)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/admin/plugins/upload", strings.NewReader(url.Values{}.Encode()))
	c.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	handler.Upload(c)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSettingsHandlerUpdate(t *testing.T) {
	svc := newTestContainer(t)
	handler := NewSettingsHandler(svc.Settings, svc.ActionLogs, svc.Navigation)

	for _, key := range []string{"enabled_plugins", "theme", "installed_at", "theme.aurora.config", " "} {
		c, recorder := jsonContext(http.MethodPut, "/api/admin/settings", gin.H{"settings": gin.H{key: "x"}})
		handler.Update(c)
		require.Equal(t, http.StatusBadRequest, recorder.Code, key)
	}

	c, recorder := jsonContext(http.MethodPut, "/api/admin/settings", gin.H{"settings": gin.H{"site.name": "Exilon", "site.url": "https://play.example.com"}})
	handler.Update(c)
	require.Equal(t, http.StatusOK, recorder.Code)

	var values map[string]string
	decodeData(t, recorder, &values)
	require.Equal(t, "Exilon", values["site.name"])
	require.Equal(t, "https://play.example.com", values["site.url"])
}

func TestNotificationHandlerListAndMarkRead(t *testing.T) {
	svc := newTestContainer(t)
	ctx := context.Background()
	user, err := svc.Users.Create(ctx, services.CreateUserInput{Username: "dana", Email: "dana@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.Notifications.Create(ctx, services.CreateNotificationInput{
		UserID: user.ID,
		NotificationInput: services.NotificationInput{
			Type:  "updates.available",
			Title: "Updates available",
			Body:  "1 plugin can be updated",
		},
	})
	require.NoError(t, err)

	handler := NewNotificationHandler(svc.Notifications)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	c.Set(middleware.CtxUserIDKey, user.ID)
	handler.List(c)
	require.Equal(t, http.StatusOK, recorder.Code)

	var items []services.NotificationDTO
	payload := decodeData(t, recorder, &items)
	require.True(t, payload.Success)
	require.Len(t, items, 1)
	require.False(t, items[0].Read)

	readRecorder := httptest.NewRecorder()
	c2, _ := gin.CreateTestContext(readRecorder)
	c2.Request = httptest.NewRequest(http.MethodPost, "/api/notifications/"+items[0].ID+"/read", nil)
	c2.Params = gin.Params{{Key: "id", Value: items[0].ID}}
	c2.Set(middleware.CtxUserIDKey, user.ID)
	handler.MarkRead(c2)
	require.Equal(t, http.StatusOK, readRecorder.Code)

	var dto services.NotificationDTO
	decodeData(t, readRecorder, &dto)
	require.True(t, dto.Read)

	anonymous := httptest.NewRecorder()
	c3, _ := gin.CreateTestContext(anonymous)
	c3.Request = httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	handler.List(c3)
	require.Equal(t, http.StatusUnauthorized, anonymous.Code)
}

func TestPaginationClampsValues(t *testing.T) {
	cases := []struct {
		query   string
		page    int
		perPage int
	}{
		{"", 1, 10},
		{"page=3&per_page=25", 3, 25},
		{"page=-2&per_page=500", 1, 10},
		{"page=abc&per_page=0", 1, 10},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/api/admin/posts?"+tc.query, nil)
		page, perPage := pagination(c, 10)
		require.Equal(t, tc.page, page, tc.query)
		require.Equal(t, tc.perPage, perPage, tc.query)
	}
}
