package domain

import "time"

type SearchQuery struct {
	Text        string
	ProviderKey string
}

// ProviderSite is one entry of the provider registry. Only Key is meaningful to the
// search pipeline; the remaining fields belong to the danmu API client.
type ProviderSite struct {
	Key     string `json:"key" yaml:"key"`
	Name    string `json:"name,omitempty" yaml:"name"`
	API     string `json:"api,omitempty" yaml:"api"`
	Token   string `json:"token,omitempty" yaml:"token"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type EpisodeItem struct {
	EpisodeID    int64  `json:"episodeId"`
	EpisodeTitle string `json:"episodeTitle"`
}

// RawResult is a candidate as returned by a provider, before relevance filtering.
type RawResult struct {
	ID       int64
	Title    string
	Type     string
	Episodes []EpisodeItem
}

type DanmuResult struct {
	ID       int64         `json:"id"`
	Title    string        `json:"title"`
	Episodes []EpisodeItem `json:"episodes"`
}

type ProviderInfo struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type ProviderDiagnostics struct {
	Key                 string     `json:"key"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	LastQuery           string     `json:"lastQuery,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}

// DanmuSearchResponse is the success body of GET /danmu.
type DanmuSearchResponse struct {
	Results []DanmuResult `json:"results"`
}

// MissingParameterResponse keeps the historical success-shaped body for invalid input.
type MissingParameterResponse struct {
	Result any    `json:"result"`
	Error  string `json:"error"`
}

type ProviderNotFoundResponse struct {
	Error  string `json:"error"`
	Result any    `json:"result"`
}

type SearchFailedResponse struct {
	Error   string        `json:"error"`
	Results []DanmuResult `json:"results"`
}

// ProviderRuntimeConfig is the settings view of a provider; the token is never echoed.
type ProviderRuntimeConfig struct {
	Key          string `json:"key"`
	Name         string `json:"name,omitempty"`
	API          string `json:"api,omitempty"`
	Enabled      bool   `json:"enabled"`
	HasToken     bool   `json:"hasToken"`
	TokenPreview string `json:"tokenPreview,omitempty"`
}
