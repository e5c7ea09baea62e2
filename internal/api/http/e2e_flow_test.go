package apihttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"danmustream/danmuservice/internal/domain"
	"danmustream/danmuservice/internal/providers/common"
	"danmustream/danmuservice/internal/providers/danmuapi"
	"danmustream/danmuservice/internal/registry"
	"danmustream/danmuservice/internal/search"
)

func newFlowHandler(t *testing.T, upstream http.HandlerFunc) http.Handler {
	t.Helper()
	api := httptest.NewServer(upstream)
	t.Cleanup(api.Close)

	providers := registry.NewService([]domain.ProviderSite{
		{Key: "netlify", API: api.URL, Enabled: true},
		{Key: "offline", API: api.URL, Enabled: false},
	}, 3600)
	provider := danmuapi.NewProvider(danmuapi.Config{
		Client: api.Client(),
		Retry:  &common.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	})
	service := search.NewService(providers, search.NewExecutor(provider))
	return NewServer(service, WithProviderSettings(providers)).Handler()
}

func TestFlowFiltersProviderResultsByTitle(t *testing.T) {
	handler := newFlowHandler(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("anime") != "海贼王" {
			t.Errorf("unexpected upstream query %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"errorCode":0,"success":true,"animes":[
			{"animeId":1,"animeTitle":"海贼王 第一季","episodes":[{"episodeId":11,"episodeTitle":"第1话"}]},
			{"animeId":2,"animeTitle":"One Piece","episodes":[{"episodeId":21,"episodeTitle":"EP1"}]},
			{"animeId":3,"animeTitle":"剧场版 海贼王","episodes":null}
		]}`))
	})

	w := doGet(t, handler, "/danmu?q=%E6%B5%B7%E8%B4%BC%E7%8E%8B&resourceId=netlify")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Cache-Control"); got != "public, max-age=3600" {
		t.Fatalf("unexpected cache header %q", got)
	}
	var payload domain.DanmuSearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Results) != 2 {
		t.Fatalf("expected 2 results, got %+v", payload.Results)
	}
	if payload.Results[0].ID != 1 || payload.Results[1].ID != 3 {
		t.Fatalf("order not preserved: %+v", payload.Results)
	}
	if payload.Results[1].Episodes == nil {
		t.Fatalf("episodes must encode as an array")
	}
}

func TestFlowDisabledProviderIsNotFound(t *testing.T) {
	handler := newFlowHandler(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("upstream must not be called")
	})
	w := doGet(t, handler, "/danmu?q=abc&resourceId=offline")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestFlowUpstreamFailureIsOpaque(t *testing.T) {
	handler := newFlowHandler(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal token leak", http.StatusBadGateway)
	})
	w := doGet(t, handler, "/danmu?q=abc")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var payload domain.SearchFailedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error != "search failed" || payload.Results == nil || len(payload.Results) != 0 {
		t.Fatalf("unexpected failure body: %s", w.Body.String())
	}
}

func TestFlowSettingsWithoutStore(t *testing.T) {
	handler := newFlowHandler(t, func(w http.ResponseWriter, r *http.Request) {})
	w := doGet(t, handler, "/danmu/settings/providers")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 listing, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodDelete, "/danmu/settings/providers?key=netlify", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 without runtime store, got %d", rec.Code)
	}
}

func TestFlowTrailingSpaceIsPartOfQuery(t *testing.T) {
	var upstreamQuery string
	handler := newFlowHandler(t, func(w http.ResponseWriter, r *http.Request) {
		upstreamQuery = r.URL.Query().Get("anime")
		_, _ = w.Write([]byte(`{"errorCode":0,"success":true,"animes":[{"animeId":1,"animeTitle":"海贼王","episodes":[]}]}`))
	})

	w := doGet(t, handler, "/danmu?q=%E6%B5%B7%E8%B4%BC%E7%8E%8B%20&resourceId=netlify")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if upstreamQuery != "海贼王 " {
		t.Fatalf("upstream must receive the untrimmed query, got %q", upstreamQuery)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"results":[]}` {
		t.Fatalf("title without the trailing space must be dropped, got %s", got)
	}
}

func TestFlowSearcherPanicIsSearchFailed(t *testing.T) {
	providers := registry.NewService([]domain.ProviderSite{{Key: "netlify", API: "https://danmu.example.com", Enabled: true}}, 3600)
	panicking := search.SearcherFunc(func(context.Context, domain.ProviderSite, string) ([]domain.RawResult, error) {
		panic("malformed provider payload")
	})
	handler := NewServer(search.NewService(providers, search.NewExecutor(panicking))).Handler()

	w := doGet(t, handler, "/danmu?q=abc&resourceId=netlify")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"error":"search failed","results":[]}` {
		t.Fatalf("unexpected body %s", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "" {
		t.Fatalf("failure must not be cacheable, got %q", got)
	}
}
