package danmuapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

	"danmustream/danmuservice/internal/domain"
	"danmustream/danmuservice/internal/providers/common"
)

const samplePayload = `{
  "errorCode": 0,
  "success": true,
  "errorMessage": "",
  "animes": [
    {
      "animeId": 1001,
      "animeTitle": "海贼王 第一季",
      "type": "tvseries",
      "episodes": [
        {"episodeId": 10010002, "episodeTitle": "第2话"},
        {"episodeId": 10010001, "episodeTitle": "第1话"}
      ]
    },
    {"animeId": 2002, "animeTitle": "火影忍者", "type": "tvseries", "episodes": []}
  ]
}`

func fastRetry() *common.RetryConfig {
	return &common.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestSearchParsesEpisodes(t *testing.T) {
	var gotPath, gotQuery, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("anime")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer server.Close()

	provider := NewProvider(Config{UserAgent: "test-agent", Client: server.Client()})
	results, err := provider.Search(context.Background(), domain.ProviderSite{Key: "netlify", API: server.URL + "/"}, "海贼王")
	require.NoError(t, err)

	assert.Equal(t, "/api/v2/search/episodes", gotPath)
	assert.Equal(t, "海贼王", gotQuery)
	assert.Equal(t, "test-agent", gotUA)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1001), results[0].ID)
	assert.Equal(t, "海贼王 第一季", results[0].Title)
	require.Len(t, results[0].Episodes, 2)
	assert.Equal(t, int64(10010002), results[0].Episodes[0].EpisodeID, "upstream episode order must be kept")
	assert.Empty(t, results[1].Episodes)
}

func TestSearchUsesTokenPath(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"errorCode":0,"success":true,"animes":[]}`))
	}))
	defer server.Close()

	provider := NewProvider(Config{Client: server.Client()})
	_, err := provider.Search(context.Background(), domain.ProviderSite{Key: "k", API: server.URL + "/base", Token: "secret"}, "x")
	require.NoError(t, err)
	assert.Equal(t, "/base/secret/api/v2/search/episodes", gotPath)
}

func TestSearchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream busy", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer server.Close()

	provider := NewProvider(Config{Client: server.Client(), Retry: fastRetry()})
	results, err := provider.Search(context.Background(), domain.ProviderSite{Key: "k", API: server.URL}, "海贼王")
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad token", http.StatusForbidden)
	}))
	defer server.Close()

	provider := NewProvider(Config{Client: server.Client(), Retry: fastRetry()})
	_, err := provider.Search(context.Background(), domain.ProviderSite{Key: "k", API: server.URL}, "q")
	var statusErr *common.HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearchProviderReportedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errorCode":1001,"success":false,"errorMessage":"rate limited"}`))
	}))
	defer server.Close()

	provider := NewProvider(Config{Client: server.Client(), Retry: fastRetry()})
	_, err := provider.Search(context.Background(), domain.ProviderSite{Key: "k", API: server.URL}, "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestSearchMalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	provider := NewProvider(Config{Client: server.Client(), Retry: fastRetry()})
	_, err := provider.Search(context.Background(), domain.ProviderSite{Key: "k", API: server.URL}, "q")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "decode provider payload"))
}

func TestSearchDecodesGBK(t *testing.T) {
	encoded, err := simplifiedchinese.GBK.NewEncoder().String(`{"errorCode":0,"success":true,"animes":[{"animeId":1,"animeTitle":"海贼王","episodes":[]}]}`)
	require.NoError(t, err)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=GBK")
		_, _ = w.Write([]byte(encoded))
	}))
	defer server.Close()

	provider := NewProvider(Config{Client: server.Client()})
	results, err := provider.Search(context.Background(), domain.ProviderSite{Key: "k", API: server.URL}, "海贼王")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "海贼王", results[0].Title)
}

func TestBuildSearchURLValidation(t *testing.T) {
	_, err := buildSearchURL(domain.ProviderSite{Key: "empty"}, "q")
	require.ErrorIs(t, err, ErrEmptyEndpoint)

	_, err = buildSearchURL(domain.ProviderSite{Key: "bad", API: "not a url"}, "q")
	require.Error(t, err)

	uri, err := buildSearchURL(domain.ProviderSite{Key: "ok", API: "https://danmu.example.com"}, "one piece")
	require.NoError(t, err)
	assert.Equal(t, "https://danmu.example.com/api/v2/search/episodes?anime=one+piece", uri)
}
