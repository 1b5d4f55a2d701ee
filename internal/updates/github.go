package updates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultGitHubAPI = "https://api.github.com"
	githubUserAgent  = "exiloncms-updater"
)

type githubRelease struct {
	TagName     string        `json:"tag_name"`
	HTMLURL     string        `json:"html_url"`
	Body        string        `json:"body"`
	ZipballURL  string        `json:"zipball_url"`
	Draft       bool          `json:"draft"`
	Prerelease  bool          `json:"prerelease"`
	PublishedAt time.Time     `json:"published_at"`
	Assets      []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name               string `json:"name"`
	ContentType        string `json:"content_type"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// GitHubSource reads the latest release of a repository.
type GitHubSource struct {
	apiURL string
	token  string
	client *http.Client
}

// NewGitHubSource builds a source against apiURL (https://api.github.com by default).
func NewGitHubSource(apiURL, token string, client *http.Client) *GitHubSource {
	apiURL = strings.TrimRight(strings.TrimSpace(apiURL), "/")
	if apiURL == "" {
		apiURL = defaultGitHubAPI
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GitHubSource{apiURL: apiURL, token: strings.TrimSpace(token), client: client}
}

// Name implements Source.
func (s *GitHubSource) Name() string { return "github" }

// Supports implements Source.
func (s *GitHubSource) Supports(target Target) bool {
	return validRepo(target.GitHub)
}

// Latest implements Source.
func (s *GitHubSource) Latest(ctx context.Context, target Target) (*Release, error) {
	repo := normaliseRepo(target.GitHub)
	endpoint := fmt.Sprintf("%s/repos/%s/releases/latest", s.apiURL, repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("github: create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", githubUserAgent)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNoRelease, repo)
	default:
		return nil, fmt.Errorf("github: unexpected status %d for %s", resp.StatusCode, repo)
	}

	var release githubRelease
	if err := json.NewDecoder(io.LimitReader(resp.Body, 2<<20)).Decode(&release); err != nil {
		return nil, fmt.Errorf("github: decode response: %w", err)
	}
	if release.Draft || strings.TrimSpace(release.TagName) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoRelease, repo)
	}

	return &Release{
		Version:     strings.TrimPrefix(strings.TrimSpace(release.TagName), "v"),
		DownloadURL: pickArchive(release),
		Changelog:   release.Body,
		PageURL:     release.HTMLURL,
		PublishedAt: release.PublishedAt,
	}, nil
}

// pickArchive prefers an uploaded .zip asset over the generated source zipball.
func pickArchive(release githubRelease) string {
	for _, asset := range release.Assets {
		if strings.HasSuffix(strings.ToLower(asset.Name), ".zip") {
			return asset.BrowserDownloadURL
		}
	}
	return release.ZipballURL
}
