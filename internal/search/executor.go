package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"danmustream/danmuservice/internal/domain"
)

// maxConcurrentSearches bounds the number of outbound provider searches in flight
// across all requests.
const maxConcurrentSearches = 16

// Searcher performs the provider-specific network search.
type Searcher interface {
	Search(ctx context.Context, site domain.ProviderSite, query string) ([]domain.RawResult, error)
}

type SearcherFunc func(ctx context.Context, site domain.ProviderSite, query string) ([]domain.RawResult, error)

func (f SearcherFunc) Search(ctx context.Context, site domain.ProviderSite, query string) ([]domain.RawResult, error) {
	return f(ctx, site, query)
}

// Executor runs one provider search. Every failure, whatever its cause, is reported as
// ErrSearchFailed with the cause wrapped for logging.
type Executor struct {
	searcher Searcher
	sem      *semaphore.Weighted
	health   *healthTracker
	now      func() time.Time
}

func NewExecutor(searcher Searcher) *Executor {
	return &Executor{
		searcher: searcher,
		sem:      semaphore.NewWeighted(maxConcurrentSearches),
		health:   newHealthTracker(),
		now:      time.Now,
	}
}

func (e *Executor) Execute(ctx context.Context, site domain.ProviderSite, query string) ([]domain.RawResult, error) {
	if e == nil || e.searcher == nil {
		return nil, fmt.Errorf("%w: searcher is not configured", ErrSearchFailed)
	}
	key := strings.ToLower(strings.TrimSpace(site.Key))

	ctx, span := otel.Tracer("danmu-search").Start(ctx, "danmu.provider.search")
	defer span.End()
	span.SetAttributes(attribute.String("danmu.provider", key))

	if blocked, until, lastErr := e.health.isBlocked(key, e.now()); blocked {
		span.SetStatus(codes.Error, "provider blocked")
		return nil, fmt.Errorf("%w: provider %s temporarily unhealthy until %s: %s",
			ErrSearchFailed, key, until.UTC().Format(time.RFC3339), lastErr)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		span.SetStatus(codes.Error, "concurrency wait cancelled")
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	defer e.sem.Release(1)

	startedAt := e.now()
	items, err := e.searcher.Search(ctx, site, query)
	e.health.record(key, query, err, e.now().Sub(startedAt), e.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider search failed")
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	span.SetAttributes(attribute.Int("danmu.raw_results", len(items)))
	return items, nil
}

func (e *Executor) Diagnostics() []domain.ProviderDiagnostics {
	if e == nil {
		return nil
	}
	return e.health.diagnostics()
}
