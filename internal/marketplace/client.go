// Package marketplace talks to the ExilonCMS marketplace REST API.
package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultTimeout  = 10 * time.Second
	maxMetadataBody = 4 << 20
	userAgent       = "exiloncms-marketplace-client"
)

// Errors returned by the client.
var (
	ErrNotFound         = errors.New("marketplace: resource not found")
	ErrUnauthorized     = errors.New("marketplace: token rejected")
	ErrUnexpectedStatus = errors.New("marketplace: unexpected status")
	ErrDisabled         = errors.New("marketplace: client is disabled")
)

// Resource is a plugin or theme published on the marketplace.
type Resource struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Author      string    `json:"author,omitempty"`
	Version     string    `json:"version"`
	DownloadURL string    `json:"download_url,omitempty"`
	Changelog   string    `json:"changelog,omitempty"`
	IconURL     string    `json:"icon_url,omitempty"`
	Downloads   int64     `json:"downloads,omitempty"`
	Price       float64   `json:"price,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is a small REST client. It is safe for concurrent use.
type Client struct {
	base   *url.URL
	token  string
	client *http.Client
}

// NewClient validates the base URL and builds a client. An empty URL
// returns ErrDisabled.
func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, ErrDisabled
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("marketplace: invalid base url %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{base: base, token: strings.TrimSpace(cfg.Token), client: httpClient}, nil
}

// ListResources returns published resources of the given type ("plugin" or
// "theme"); an empty type lists everything.
func (c *Client) ListResources(ctx context.Context, resourceType string) ([]Resource, error) {
	query := url.Values{}
	if resourceType != "" {
		query.Set("type", resourceType)
	}
	body, err := c.getJSON(ctx, "resources", query)
	if err != nil {
		return nil, err
	}

	var resources []Resource
	if err := json.Unmarshal([]byte(payload(body).Raw), &resources); err != nil {
		return nil, fmt.Errorf("marketplace: decode resources: %w", err)
	}
	return resources, nil
}

// GetResource fetches a single resource by id.
func (c *Client) GetResource(ctx context.Context, id string) (*Resource, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	body, err := c.getJSON(ctx, "resources/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var resource Resource
	if err := json.Unmarshal([]byte(payload(body).Raw), &resource); err != nil {
		return nil, fmt.Errorf("marketplace: decode resource: %w", err)
	}
	if resource.ID == "" {
		resource.ID = id
	}
	return &resource, nil
}

// Download opens a resource archive. The caller closes the body. size is -1
// when the server does not announce a length. The bearer token is only sent
// to the marketplace host itself.
func (c *Client) Download(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	target, err := c.base.Parse(rawURL)
	if err != nil {
		return nil, 0, fmt.Errorf("marketplace: invalid download url: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, 0, fmt.Errorf("marketplace: unsupported download scheme %q", target.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("marketplace: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if strings.EqualFold(target.Host, c.base.Host) {
		c.authorize(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("marketplace: download: %w", err)
	}
	if err := statusError(resp); err != nil {
		_ = resp.Body.Close()
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.base.JoinPath(path)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("marketplace: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marketplace: request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBody))
	if err != nil {
		return nil, fmt.Errorf("marketplace: read body: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("marketplace: %s returned invalid json", path)
	}
	return body, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// payload unwraps {"data": ...} envelopes; bare documents are returned as is.
func payload(body []byte) gjson.Result {
	if data := gjson.GetBytes(body, "data"); data.Exists() && (data.IsArray() || data.IsObject()) {
		return data
	}
	return gjson.ParseBytes(body)
}

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	default:
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
}
