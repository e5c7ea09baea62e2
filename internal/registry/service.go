// Package registry provides the provider registry and the response cache duration.
// The base snapshot comes from a YAML file; a redis runtime store may add, replace or
// hide providers and override the cache duration without a restart.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"danmustream/danmuservice/internal/domain"
)

var ErrStoreNotConfigured = errors.New("runtime provider store is not configured")

type Service struct {
	base         []domain.ProviderSite
	cacheSeconds int
	store        RuntimeStore
	logger       *slog.Logger
}

type Option func(*Service)

func WithRuntimeStore(store RuntimeStore) Option {
	return func(s *Service) {
		s.store = store
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(base []domain.ProviderSite, cacheSeconds int, opts ...Option) *Service {
	if cacheSeconds < 0 {
		cacheSeconds = 0
	}
	copied := make([]domain.ProviderSite, 0, len(base))
	for _, site := range base {
		site = normalizeSite(site)
		if site.Key == "" {
			continue
		}
		copied = append(copied, site)
	}
	svc := &Service{
		base:         copied,
		cacheSeconds: cacheSeconds,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// ListProviders returns the enabled providers. Each call builds a new slice, so callers
// own their snapshot.
func (s *Service) ListProviders(ctx context.Context) ([]domain.ProviderSite, error) {
	sites, err := s.merged(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProviderSite, 0, len(sites))
	for _, site := range sites {
		if site.Enabled {
			out = append(out, site)
		}
	}
	return out, nil
}

func (s *Service) CacheSeconds(ctx context.Context) (int, error) {
	if s.store == nil {
		return s.cacheSeconds, nil
	}
	value, ok, err := s.store.CacheSeconds(ctx)
	if err != nil {
		return s.cacheSeconds, fmt.Errorf("load cache seconds: %w", err)
	}
	if !ok {
		return s.cacheSeconds, nil
	}
	return value, nil
}

// AllProviders lists every provider including disabled ones, for the settings API.
func (s *Service) AllProviders(ctx context.Context) ([]domain.ProviderSite, error) {
	return s.merged(ctx)
}

func (s *Service) UpsertProvider(ctx context.Context, site domain.ProviderSite) (domain.ProviderSite, error) {
	if s.store == nil {
		return domain.ProviderSite{}, ErrStoreNotConfigured
	}
	site = normalizeSite(site)
	if site.Key == "" {
		return domain.ProviderSite{}, errors.New("provider key is required")
	}
	if site.Enabled && site.API == "" {
		return domain.ProviderSite{}, errors.New("api is required for an enabled provider")
	}
	if err := s.store.Save(ctx, site); err != nil {
		return domain.ProviderSite{}, fmt.Errorf("save provider: %w", err)
	}
	s.logger.Info("danmu provider updated",
		slog.String("provider", site.Key),
		slog.Bool("enabled", site.Enabled),
	)
	return site, nil
}

// RemoveOverride drops the runtime override for key; a provider from the base file
// becomes visible again with its file settings.
func (s *Service) RemoveOverride(ctx context.Context, key string) error {
	if s.store == nil {
		return ErrStoreNotConfigured
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("provider key is required")
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete provider: %w", err)
	}
	s.logger.Info("danmu provider override removed", slog.String("provider", key))
	return nil
}

func (s *Service) merged(ctx context.Context) ([]domain.ProviderSite, error) {
	out := make([]domain.ProviderSite, len(s.base))
	copy(out, s.base)
	if s.store == nil {
		return out, nil
	}

	overrides, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load runtime providers: %w", err)
	}
	if len(overrides) == 0 {
		return out, nil
	}

	applied := make(map[string]struct{}, len(overrides))
	for index, site := range out {
		override, ok := overrides[site.Key]
		if !ok {
			continue
		}
		if _, done := applied[site.Key]; done {
			continue
		}
		out[index] = mergeSite(site, override)
		applied[site.Key] = struct{}{}
	}

	extra := make([]string, 0, len(overrides))
	for key := range overrides {
		if _, done := applied[key]; !done {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		out = append(out, overrides[key])
	}
	return out, nil
}

// mergeSite applies a runtime override; empty connection fields keep the base value.
func mergeSite(base, override domain.ProviderSite) domain.ProviderSite {
	merged := base
	merged.Enabled = override.Enabled
	if strings.TrimSpace(override.Name) != "" {
		merged.Name = override.Name
	}
	if strings.TrimSpace(override.API) != "" {
		merged.API = override.API
	}
	if strings.TrimSpace(override.Token) != "" {
		merged.Token = override.Token
	}
	return merged
}
