package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"danmustream/danmuservice/internal/domain"
	"danmustream/danmuservice/internal/registry"
	"danmustream/danmuservice/internal/search"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type SearchService interface {
	Search(ctx context.Context, query domain.SearchQuery) ([]domain.DanmuResult, error)
	CacheSeconds(ctx context.Context, fallback int) (int, error)
	Providers(ctx context.Context) ([]domain.ProviderInfo, error)
	ProviderDiagnostics() []domain.ProviderDiagnostics
}

type ProviderSettingsService interface {
	AllProviders(ctx context.Context) ([]domain.ProviderSite, error)
	UpsertProvider(ctx context.Context, site domain.ProviderSite) (domain.ProviderSite, error)
	RemoveOverride(ctx context.Context, key string) error
}

type Server struct {
	search               SearchService
	settings             ProviderSettingsService
	logger               *slog.Logger
	defaultProvider      string
	cacheSecondsFallback int
	rateLimitRPS         float64
	rateLimitBurst       int
}

const (
	defaultCacheSecondsFallback = 7200
	searchFailedMessage         = "search failed"
)

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithProviderSettings(settings ProviderSettingsService) ServerOption {
	return func(s *Server) {
		s.settings = settings
	}
}

// WithDefaultProvider sets the provider used when a request has no resourceId
// parameter. An empty key disables the fallback.
func WithDefaultProvider(key string) ServerOption {
	return func(s *Server) {
		s.defaultProvider = strings.TrimSpace(key)
	}
}

func WithCacheSecondsFallback(seconds int) ServerOption {
	return func(s *Server) {
		if seconds >= 0 {
			s.cacheSecondsFallback = seconds
		}
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 && burst > 0 {
			s.rateLimitRPS = rps
			s.rateLimitBurst = burst
		}
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search:               searchService,
		logger:               slog.Default(),
		defaultProvider:      search.DefaultProviderKey,
		cacheSecondsFallback: defaultCacheSecondsFallback,
		rateLimitRPS:         50,
		rateLimitBurst:       100,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/danmu/providers", s.handleProviders)
	mux.HandleFunc("/danmu/providers/health", s.handleProvidersHealth)
	mux.HandleFunc("/danmu/settings/providers", s.handleProviderSettings)
	mux.HandleFunc("/danmu", s.handleDanmu)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "danmu-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(s.rateLimitRPS, s.rateLimitBurst, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleDanmu(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/danmu" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeJSON(w, http.StatusInternalServerError, domain.SearchFailedResponse{
			Error:   searchFailedMessage,
			Results: []domain.DanmuResult{},
		})
		return
	}

	params := r.URL.Query()
	query := domain.SearchQuery{
		Text:        params.Get("q"),
		ProviderKey: s.providerKey(params),
	}

	results, err := s.search.Search(r.Context(), query)
	if err != nil {
		s.writeSearchError(w, r, query, err)
		return
	}

	s.logger.Info("danmu search completed",
		slog.String("query", truncate(query.Text, 80)),
		slog.String("provider", query.ProviderKey),
		slog.Int("results", len(results)),
	)
	s.applyCacheDirective(r.Context(), w)
	writeJSON(w, http.StatusOK, domain.DanmuSearchResponse{Results: results})
}

func (s *Server) writeSearchError(w http.ResponseWriter, r *http.Request, query domain.SearchQuery, err error) {
	switch {
	case errors.Is(err, search.ErrMissingParameter):
		s.applyCacheDirective(r.Context(), w)
		writeJSON(w, http.StatusOK, domain.MissingParameterResponse{
			Result: nil,
			Error:  search.ErrMissingParameter.Error(),
		})
	case errors.Is(err, search.ErrProviderNotFound):
		s.logger.Warn("danmu provider not found", slog.String("provider", query.ProviderKey))
		writeJSON(w, http.StatusNotFound, domain.ProviderNotFoundResponse{
			Error:  fmt.Sprintf("%s: %s", search.ErrProviderNotFound.Error(), strings.TrimSpace(query.ProviderKey)),
			Result: nil,
		})
	default:
		s.logger.Error("danmu search failed",
			slog.String("query", truncate(query.Text, 80)),
			slog.String("provider", query.ProviderKey),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, domain.SearchFailedResponse{
			Error:   searchFailedMessage,
			Results: []domain.DanmuResult{},
		})
	}
}

// providerKey reads resourceId. Only an absent parameter falls back to the default
// provider; an empty value is reported as a missing parameter.
func (s *Server) providerKey(params url.Values) string {
	if !params.Has("resourceId") {
		return s.defaultProvider
	}
	return params.Get("resourceId")
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/danmu/providers" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	items, err := s.search.Providers(r.Context())
	if err != nil {
		s.logger.Warn("list providers failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "provider registry unavailable")
		return
	}
	if items == nil {
		items = []domain.ProviderInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
	})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/danmu/providers/health" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	items := s.search.ProviderDiagnostics()
	if items == nil {
		items = []domain.ProviderDiagnostics{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     items,
	})
}

func (s *Server) handleProviderSettings(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/danmu/settings/providers" {
		http.NotFound(w, r)
		return
	}
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "provider settings service is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		sites, err := s.settings.AllProviders(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
			return
		}
		items := make([]domain.ProviderRuntimeConfig, 0, len(sites))
		for _, site := range sites {
			items = append(items, runtimeConfigView(site))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": items,
		})
	case http.MethodPut:
		var payload struct {
			Key     string `json:"key"`
			Name    string `json:"name"`
			API     string `json:"api"`
			Token   string `json:"token"`
			Enabled *bool  `json:"enabled"`
		}
		if err := decodeJSONBody(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		enabled := true
		if payload.Enabled != nil {
			enabled = *payload.Enabled
		}
		site, err := s.settings.UpsertProvider(r.Context(), domain.ProviderSite{
			Key:     payload.Key,
			Name:    payload.Name,
			API:     payload.API,
			Token:   payload.Token,
			Enabled: enabled,
		})
		if err != nil {
			s.writeSettingsError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, runtimeConfigView(site))
	case http.MethodDelete:
		key := strings.TrimSpace(r.URL.Query().Get("key"))
		if err := s.settings.RemoveOverride(r.Context(), key); err != nil {
			s.writeSettingsError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"key": key, "removed": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) writeSettingsError(w http.ResponseWriter, err error) {
	if errors.Is(err, registry.ErrStoreNotConfigured) {
		writeError(w, http.StatusNotImplemented, "not_configured", err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
}

func runtimeConfigView(site domain.ProviderSite) domain.ProviderRuntimeConfig {
	view := domain.ProviderRuntimeConfig{
		Key:      site.Key,
		Name:     site.Name,
		API:      site.API,
		Enabled:  site.Enabled,
		HasToken: site.Token != "",
	}
	if view.HasToken {
		view.TokenPreview = previewSecret(site.Token)
	}
	return view
}

func previewSecret(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + "****" + secret[len(secret)-2:]
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
