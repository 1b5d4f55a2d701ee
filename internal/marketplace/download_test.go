package marketplace

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDownloaderFetchesWithoutCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		require.Equal(t, userAgent, r.Header.Get("User-Agent"))
		if r.URL.Path != "/shop.zip" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "PK-archive")
	}))
	t.Cleanup(server.Close)

	d := NewDownloader(0)
	body, _, err := d.Download(context.Background(), server.URL+"/shop.zip")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, "PK-archive", string(data))

	_, _, err = d.Download(context.Background(), server.URL+"/missing.zip")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDownloaderRejectsNonHTTPSchemes(t *testing.T) {
	_, _, err := NewDownloader(0).Download(context.Background(), "file:///etc/passwd")
	require.Error(t, err)
}
