// Package danmuapi searches danmu API deployments that expose the dandanplay-compatible
// /api/v2/search/episodes endpoint.
package danmuapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"danmustream/danmuservice/internal/domain"
	"danmustream/danmuservice/internal/providers/common"
)

const (
	defaultUserAgent = "danmu-search/1.0"
	searchPath       = "/api/v2/search/episodes"
	maxPayloadBytes  = 4 * 1024 * 1024
)

var ErrEmptyEndpoint = errors.New("provider has no api endpoint")

type Config struct {
	UserAgent string
	Client    *http.Client
	Retry     *common.RetryConfig
}

type Provider struct {
	client    *http.Client
	userAgent string
	retry     common.RetryConfig
}

type searchResponse struct {
	ErrorCode    int        `json:"errorCode"`
	Success      *bool      `json:"success"`
	ErrorMessage string     `json:"errorMessage"`
	HasMore      bool       `json:"hasMore"`
	Animes       []apiAnime `json:"animes"`
}

type apiAnime struct {
	AnimeID    int64        `json:"animeId"`
	AnimeTitle string       `json:"animeTitle"`
	Type       string       `json:"type"`
	Episodes   []apiEpisode `json:"episodes"`
}

type apiEpisode struct {
	EpisodeID    int64  `json:"episodeId"`
	EpisodeTitle string `json:"episodeTitle"`
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	retry := common.DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	return &Provider{
		client:    client,
		userAgent: userAgent,
		retry:     retry,
	}
}

// Search queries site for query and returns the anime entries with their episodes in
// upstream order. Transient failures are retried with backoff.
func (p *Provider) Search(ctx context.Context, site domain.ProviderSite, query string) ([]domain.RawResult, error) {
	endpoint, err := buildSearchURL(site, query)
	if err != nil {
		return nil, err
	}

	var results []domain.RawResult
	err = common.RetryWithBackoff(ctx, p.retry, func() error {
		var searchErr error
		results, searchErr = p.fetch(ctx, endpoint)
		return searchErr
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Provider) fetch(ctx context.Context, endpoint string) ([]domain.RawResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &common.HTTPStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, err
	}
	payload, err = decodeCharset(payload, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	return parseSearchResponse(payload)
}

func buildSearchURL(site domain.ProviderSite, query string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(site.API), "/")
	if base == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyEndpoint, site.Key)
	}
	uri, err := url.Parse(base)
	if err != nil || uri.Scheme == "" || uri.Host == "" {
		if err == nil {
			err = errors.New("missing scheme or host")
		}
		return "", fmt.Errorf("invalid endpoint for %s: %w", site.Key, err)
	}
	if token := strings.Trim(strings.TrimSpace(site.Token), "/"); token != "" {
		uri = uri.JoinPath(token)
	}
	uri = uri.JoinPath(searchPath)
	values := uri.Query()
	values.Set("anime", query)
	uri.RawQuery = values.Encode()
	return uri.String(), nil
}

func parseSearchResponse(payload []byte) ([]domain.RawResult, error) {
	var parsed searchResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decode provider payload: %w", err)
	}
	if (parsed.Success != nil && !*parsed.Success) || parsed.ErrorCode != 0 {
		message := strings.TrimSpace(parsed.ErrorMessage)
		if message == "" {
			message = "unknown error"
		}
		return nil, fmt.Errorf("provider error %d: %s", parsed.ErrorCode, message)
	}

	results := make([]domain.RawResult, 0, len(parsed.Animes))
	for _, anime := range parsed.Animes {
		episodes := make([]domain.EpisodeItem, 0, len(anime.Episodes))
		for _, episode := range anime.Episodes {
			episodes = append(episodes, domain.EpisodeItem{
				EpisodeID:    episode.EpisodeID,
				EpisodeTitle: strings.TrimSpace(episode.EpisodeTitle),
			})
		}
		results = append(results, domain.RawResult{
			ID:       anime.AnimeID,
			Title:    strings.TrimSpace(anime.AnimeTitle),
			Type:     anime.Type,
			Episodes: episodes,
		})
	}
	return results, nil
}

// decodeCharset converts payloads served with a non-UTF-8 charset, which some
// self-hosted mirrors still use for CJK titles.
func decodeCharset(payload []byte, contentType string) ([]byte, error) {
	if strings.TrimSpace(contentType) == "" {
		return payload, nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return payload, nil
	}
	label := strings.ToLower(strings.TrimSpace(params["charset"]))
	if label == "" || label == "utf-8" || label == "utf8" {
		return payload, nil
	}
	encoding, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	decoded, err := encoding.NewDecoder().Bytes(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", label, err)
	}
	return decoded, nil
}
