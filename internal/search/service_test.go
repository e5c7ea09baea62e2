package search

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"danmustream/danmuservice/internal/domain"
)

type fakeConfig struct {
	sites   []domain.ProviderSite
	listErr error
	ttl     int
	ttlErr  error
}

func (f *fakeConfig) ListProviders(ctx context.Context) ([]domain.ProviderSite, error) {
	_ = ctx
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.ProviderSite(nil), f.sites...), nil
}

func (f *fakeConfig) CacheSeconds(ctx context.Context) (int, error) {
	_ = ctx
	return f.ttl, f.ttlErr
}

type fakeSearcher struct {
	items     []domain.RawResult
	err       error
	calls     atomic.Int32
	lastSite  domain.ProviderSite
	lastQuery string
}

func (f *fakeSearcher) Search(ctx context.Context, site domain.ProviderSite, query string) ([]domain.RawResult, error) {
	_ = ctx
	f.calls.Add(1)
	f.lastSite = site
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.RawResult(nil), f.items...), nil
}

func newTestService(searcher Searcher, sites ...domain.ProviderSite) *Service {
	return NewService(&fakeConfig{sites: sites, ttl: 60}, NewExecutor(searcher))
}

func TestSearchMissingParameter(t *testing.T) {
	searcher := &fakeSearcher{}
	service := newTestService(searcher, domain.ProviderSite{Key: "netlify", Enabled: true})

	for _, query := range []domain.SearchQuery{
		{Text: "", ProviderKey: "netlify"},
		{Text: "海贼王", ProviderKey: ""},
		{Text: "   ", ProviderKey: "netlify"},
		{},
	} {
		_, err := service.Search(context.Background(), query)
		if !errors.Is(err, ErrMissingParameter) {
			t.Fatalf("query %#v: expected ErrMissingParameter, got %v", query, err)
		}
	}
	if searcher.calls.Load() != 0 {
		t.Fatalf("searcher must not be called for invalid input")
	}
}

func TestSearchUnknownProvider(t *testing.T) {
	searcher := &fakeSearcher{}
	service := newTestService(searcher, domain.ProviderSite{Key: "netlify", Enabled: true})

	_, err := service.Search(context.Background(), domain.SearchQuery{Text: "海贼王", ProviderKey: "missing"})
	if !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
	if searcher.calls.Load() != 0 {
		t.Fatalf("searcher must not be called for unknown provider")
	}
}

func TestSearchFiltersByTitle(t *testing.T) {
	searcher := &fakeSearcher{items: []domain.RawResult{
		{ID: 1, Title: "海贼王 第一季", Episodes: []domain.EpisodeItem{{EpisodeID: 11, EpisodeTitle: "第1话"}}},
		{ID: 2, Title: "火影忍者"},
	}}
	service := newTestService(searcher,
		domain.ProviderSite{Key: "other", API: "https://other.example"},
		domain.ProviderSite{Key: "netlify", API: "https://danmu.example"},
	)

	results, err := service.Search(context.Background(), domain.SearchQuery{Text: "海贼王", ProviderKey: "netlify"})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(results) != 1 || results[0].Title != "海贼王 第一季" {
		t.Fatalf("unexpected results: %#v", results)
	}
	if searcher.lastSite.API != "https://danmu.example" {
		t.Fatalf("search ran against wrong provider: %#v", searcher.lastSite)
	}
	if searcher.lastQuery != "海贼王" {
		t.Fatalf("unexpected provider query: %q", searcher.lastQuery)
	}
}

func TestSearchExecutorFailureIsOpaque(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("dial tcp 10.0.0.1:443: connection refused")}
	service := newTestService(searcher, domain.ProviderSite{Key: "netlify"})

	_, err := service.Search(context.Background(), domain.SearchQuery{Text: "海贼王", ProviderKey: "netlify"})
	if !errors.Is(err, ErrSearchFailed) {
		t.Fatalf("expected ErrSearchFailed, got %v", err)
	}
	if errors.Is(err, ErrProviderNotFound) || errors.Is(err, ErrMissingParameter) {
		t.Fatalf("failure must map to a single kind, got %v", err)
	}
}

func TestSearchKeepsSurroundingWhitespace(t *testing.T) {
	searcher := &fakeSearcher{items: []domain.RawResult{
		{ID: 1, Title: "海贼王"},
		{ID: 2, Title: "海贼王 第一季"},
	}}
	service := newTestService(searcher, domain.ProviderSite{Key: "netlify"})

	results, err := service.Search(context.Background(), domain.SearchQuery{Text: "海贼王 ", ProviderKey: "netlify"})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if searcher.lastQuery != "海贼王 " {
		t.Fatalf("provider must receive the text as given, got %q", searcher.lastQuery)
	}
	if len(results) != 1 || results[0].ID != 2 {
		t.Fatalf("expected only the title containing the trailing space, got %#v", results)
	}
}

func TestSearchRecoversSearcherPanic(t *testing.T) {
	searcher := SearcherFunc(func(context.Context, domain.ProviderSite, string) ([]domain.RawResult, error) {
		panic("malformed provider payload")
	})
	service := newTestService(searcher, domain.ProviderSite{Key: "netlify"})

	results, err := service.Search(context.Background(), domain.SearchQuery{Text: "海贼王", ProviderKey: "netlify"})
	if !errors.Is(err, ErrSearchFailed) {
		t.Fatalf("expected ErrSearchFailed, got %v", err)
	}
	if results != nil {
		t.Fatalf("expected no results, got %#v", results)
	}
	if !strings.Contains(err.Error(), "malformed provider payload") {
		t.Fatalf("panic value should be kept for logging, got %v", err)
	}

	if !service.executor.sem.TryAcquire(maxConcurrentSearches) {
		t.Fatalf("concurrency slot leaked after panic")
	}
	service.executor.sem.Release(maxConcurrentSearches)
}

func TestSearchRegistryFailure(t *testing.T) {
	service := NewService(&fakeConfig{listErr: errors.New("redis down")}, NewExecutor(&fakeSearcher{}))

	_, err := service.Search(context.Background(), domain.SearchQuery{Text: "a", ProviderKey: "netlify"})
	if !errors.Is(err, ErrSearchFailed) {
		t.Fatalf("expected ErrSearchFailed, got %v", err)
	}
}

func TestCacheSecondsFallback(t *testing.T) {
	service := NewService(&fakeConfig{ttlErr: errors.New("boom")}, nil)
	ttl, err := service.CacheSeconds(context.Background(), 7200)
	if err == nil {
		t.Fatalf("expected error to be reported")
	}
	if ttl != 7200 {
		t.Fatalf("expected fallback ttl, got %d", ttl)
	}

	service = NewService(&fakeConfig{ttl: 30}, nil)
	ttl, err = service.CacheSeconds(context.Background(), 7200)
	if err != nil || ttl != 30 {
		t.Fatalf("unexpected ttl=%d err=%v", ttl, err)
	}
}

func TestExecutorBlocksAfterConsecutiveFailures(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("provider HTTP 502")}
	executor := NewExecutor(searcher)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	executor.now = func() time.Time { return now }
	site := domain.ProviderSite{Key: "netlify"}

	for i := 0; i < providerFailureThreshold; i++ {
		if _, err := executor.Execute(context.Background(), site, "q"); !errors.Is(err, ErrSearchFailed) {
			t.Fatalf("attempt %d: expected ErrSearchFailed, got %v", i, err)
		}
	}
	_, err := executor.Execute(context.Background(), site, "q")
	if !errors.Is(err, ErrSearchFailed) || !strings.Contains(err.Error(), "temporarily unhealthy") {
		t.Fatalf("expected blocked provider error, got %v", err)
	}
	if got := searcher.calls.Load(); got != providerFailureThreshold {
		t.Fatalf("blocked provider must not be called, calls=%d", got)
	}

	now = now.Add(providerBlockBase + time.Second)
	searcher.err = nil
	if _, err := executor.Execute(context.Background(), site, "q"); err != nil {
		t.Fatalf("expected provider to recover after block, got %v", err)
	}

	diagnostics := executor.Diagnostics()
	if len(diagnostics) != 1 || diagnostics[0].Key != "netlify" || diagnostics[0].ConsecutiveFailures != 0 {
		t.Fatalf("unexpected diagnostics: %#v", diagnostics)
	}
}

func TestExecutorCancelledContext(t *testing.T) {
	executor := NewExecutor(SearcherFunc(func(ctx context.Context, _ domain.ProviderSite, _ string) ([]domain.RawResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := executor.Execute(ctx, domain.ProviderSite{Key: "slow"}, "q")
	if !errors.Is(err, ErrSearchFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error, got %v", err)
	}
}
