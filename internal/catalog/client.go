// Package catalog is the HTTP client for the external game catalog
// service: title search, the platform taxonomy and collection commits.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gamevault/internal/config"
)

// ErrUnavailable wraps transport-level failures so callers can treat the
// catalog being unreachable as a fatal processing error.
type ErrUnavailable struct {
	Op  string
	Err error
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("catalog unavailable during %s: %v", e.Op, e.Err)
}

func (e *ErrUnavailable) Unwrap() error { return e.Err }

// Client is the surface the pipeline consumes. Tests inject fakes.
type Client interface {
	SearchGames(ctx context.Context, query string, pageSize int) ([]Game, error)
	GetPlatformTaxonomy(ctx context.Context) ([]ParentPlatform, error)
	CreateCollectionEntry(ctx context.Context, req CollectionEntryRequest) (*CollectionEntry, error)
}

type HTTPClient struct {
	BaseURL    string
	HttpClient *http.Client
}

func NewClient(cfg *config.Config) Client {
	return &HTTPClient{
		BaseURL: cfg.CatalogBaseURL,
		HttpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *HTTPClient) SearchGames(ctx context.Context, query string, pageSize int) ([]Game, error) {
	q := url.Values{}
	q.Set("search", query)
	q.Set("page_size", strconv.Itoa(pageSize))

	var out struct {
		Results []Game `json:"results"`
	}
	if err := c.getJSON(ctx, "/api/games?"+q.Encode(), &out); err != nil {
		return nil, &ErrUnavailable{Op: "search", Err: err}
	}
	return out.Results, nil
}

func (c *HTTPClient) GetPlatformTaxonomy(ctx context.Context) ([]ParentPlatform, error) {
	var out struct {
		Results []ParentPlatform `json:"results"`
	}
	if err := c.getJSON(ctx, "/api/platforms/parents", &out); err != nil {
		return nil, &ErrUnavailable{Op: "taxonomy", Err: err}
	}
	return out.Results, nil
}

func (c *HTTPClient) CreateCollectionEntry(ctx context.Context, entry CollectionEntryRequest) (*CollectionEntry, error) {
	body, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/collection", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, &ErrUnavailable{Op: "commit", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("catalog commit failed: status %d", resp.StatusCode)
	}

	var created CollectionEntry
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode commit response: %w", err)
	}
	return &created, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
