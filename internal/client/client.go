// Package client calls the danmu search HTTP API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"danmustream/danmuservice/internal/domain"
	"danmustream/danmuservice/internal/providers/common"
)

var (
	ErrMissingParameter = errors.New("server rejected query: missing parameter")
	ErrProviderNotFound = errors.New("server does not know the provider")
	ErrSearchFailed     = errors.New("server search failed")
)

type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
	Retry      *common.RetryConfig
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	userAgent  string
	retry      common.RetryConfig
}

func New(cfg Config) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		if err == nil {
			err = errors.New("missing scheme or host")
		}
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = "danmupick/1.0"
	}
	retry := common.RetryConfig{MaxAttempts: 1}
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		userAgent:  userAgent,
		retry:      retry,
	}, nil
}

// Search calls GET /danmu. An empty providerKey omits resourceId so the server applies
// its default provider.
func (c *Client) Search(ctx context.Context, text, providerKey string) ([]domain.DanmuResult, error) {
	endpoint := c.baseURL.JoinPath("/danmu")
	values := url.Values{}
	values.Set("q", text)
	if providerKey = strings.TrimSpace(providerKey); providerKey != "" {
		values.Set("resourceId", providerKey)
	}
	endpoint.RawQuery = values.Encode()

	var results []domain.DanmuResult
	err := common.RetryWithBackoff(ctx, c.retry, func() error {
		var searchErr error
		results, searchErr = c.search(ctx, endpoint.String())
		return searchErr
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) search(ctx context.Context, endpoint string) ([]domain.DanmuResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return decodeSuccess(payload)
	case http.StatusNotFound:
		var body domain.ProviderNotFoundResponse
		if json.Unmarshal(payload, &body) == nil && body.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, body.Error)
		}
		return nil, ErrProviderNotFound
	case http.StatusInternalServerError:
		return nil, ErrSearchFailed
	default:
		return nil, &common.HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}
}

// Providers lists the enabled providers the server can search.
func (c *Client) Providers(ctx context.Context) ([]domain.ProviderInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.JoinPath("/danmu/providers").String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &common.HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	var body struct {
		Items []domain.ProviderInfo `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode providers response: %w", err)
	}
	return body.Items, nil
}

// decodeSuccess tells the results envelope apart from the 200 missing-parameter envelope.
func decodeSuccess(payload []byte) ([]domain.DanmuResult, error) {
	var body struct {
		Results *[]domain.DanmuResult `json:"results"`
		Error   string                `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode danmu response: %w", err)
	}
	if body.Results == nil {
		if body.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingParameter, body.Error)
		}
		return nil, ErrMissingParameter
	}
	results := *body.Results
	for index := range results {
		if results[index].Episodes == nil {
			results[index].Episodes = []domain.EpisodeItem{}
		}
	}
	return results, nil
}
