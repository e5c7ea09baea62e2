package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"danmustream/danmuservice/internal/domain"
	"danmustream/danmuservice/internal/metrics"
)

// DefaultProviderKey is used by the HTTP layer when a request does not name a provider.
// It is a placeholder carried over from the first deployment, which only had one
// provider; clients should always send resourceId.
const DefaultProviderKey = "netlify"

var (
	ErrMissingParameter = errors.New("missing required parameter: q or resourceId")
	ErrProviderNotFound = errors.New("danmu provider not found")
	ErrSearchFailed     = errors.New("search failed")
)

// ProviderConfig is the configuration service that owns the provider registry and the
// response cache duration.
type ProviderConfig interface {
	ListProviders(ctx context.Context) ([]domain.ProviderSite, error)
	CacheSeconds(ctx context.Context) (int, error)
}

type Service struct {
	config   ProviderConfig
	executor *Executor
}

func NewService(config ProviderConfig, executor *Executor) *Service {
	return &Service{
		config:   config,
		executor: executor,
	}
}

// Search validates the query, resolves its provider against a fresh registry snapshot,
// runs the provider search and filters the results by title. A blank text is missing;
// otherwise the text is used exactly as given, surrounding whitespace included.
func (s *Service) Search(ctx context.Context, query domain.SearchQuery) ([]domain.DanmuResult, error) {
	text := query.Text
	providerKey := strings.TrimSpace(query.ProviderKey)
	if strings.TrimSpace(text) == "" || providerKey == "" {
		metrics.SearchOutcomesTotal.WithLabelValues("missing_parameter").Inc()
		return nil, ErrMissingParameter
	}
	if s.config == nil {
		metrics.SearchOutcomesTotal.WithLabelValues("search_failed").Inc()
		return nil, fmt.Errorf("%w: provider config is not configured", ErrSearchFailed)
	}

	registry, err := s.config.ListProviders(ctx)
	if err != nil {
		metrics.SearchOutcomesTotal.WithLabelValues("search_failed").Inc()
		return nil, fmt.Errorf("%w: list providers: %w", ErrSearchFailed, err)
	}

	site, ok := Resolve(registry, providerKey)
	if !ok {
		metrics.SearchOutcomesTotal.WithLabelValues("provider_not_found").Inc()
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerKey)
	}

	results, err := s.searchAndFilter(ctx, site, text)
	if err != nil {
		metrics.SearchOutcomesTotal.WithLabelValues("search_failed").Inc()
		return nil, err
	}
	metrics.SearchOutcomesTotal.WithLabelValues("ok").Inc()
	return results, nil
}

// searchAndFilter turns a panic in the provider search or the filter into ErrSearchFailed.
func (s *Service) searchAndFilter(ctx context.Context, site domain.ProviderSite, text string) (results []domain.DanmuResult, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			results = nil
			err = fmt.Errorf("%w: panic: %v", ErrSearchFailed, recovered)
		}
	}()

	raw, err := s.executor.Execute(ctx, site, text)
	if err != nil {
		return nil, err
	}
	return Filter(raw, text), nil
}

// CacheSeconds returns the TTL advertised to clients; fallback is used when the
// configuration service cannot answer.
func (s *Service) CacheSeconds(ctx context.Context, fallback int) (int, error) {
	if s.config == nil {
		return fallback, nil
	}
	ttl, err := s.config.CacheSeconds(ctx)
	if err != nil {
		return fallback, err
	}
	return ttl, nil
}

func (s *Service) Providers(ctx context.Context) ([]domain.ProviderInfo, error) {
	if s.config == nil {
		return nil, nil
	}
	registry, err := s.config.ListProviders(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]domain.ProviderInfo, 0, len(registry))
	for _, site := range registry {
		name := site.Name
		if name == "" {
			name = site.Key
		}
		items = append(items, domain.ProviderInfo{
			Key:     site.Key,
			Name:    name,
			Enabled: site.Enabled,
		})
	}
	return items, nil
}

func (s *Service) ProviderDiagnostics() []domain.ProviderDiagnostics {
	return s.executor.Diagnostics()
}
