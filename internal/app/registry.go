package app

import (
	"log/slog"

	"danmustream/danmuservice/internal/domain"
	"danmustream/danmuservice/internal/registry"
)

// RegistryBase combines the registry file with the environment. DANMU_API_URL registers
// one provider under the default key unless the file already defines that key; a
// cacheSeconds value in the file wins over DANMU_CACHE_SECONDS.
func RegistryBase(cfg Config, file registry.FileConfig, logger *slog.Logger) ([]domain.ProviderSite, int) {
	if logger == nil {
		logger = slog.Default()
	}
	sites := append([]domain.ProviderSite(nil), file.Providers...)

	if cfg.DanmuAPIURL != "" && cfg.DefaultProvider != "" {
		defined := false
		for _, site := range sites {
			if site.Key == cfg.DefaultProvider {
				defined = true
				break
			}
		}
		if defined {
			logger.Warn("DANMU_API_URL ignored, provider already defined in registry file",
				slog.String("provider", cfg.DefaultProvider),
			)
		} else {
			sites = append(sites, domain.ProviderSite{
				Key:     cfg.DefaultProvider,
				Name:    cfg.DefaultProvider,
				API:     cfg.DanmuAPIURL,
				Enabled: true,
			})
		}
	}

	cacheSeconds := cfg.CacheSeconds
	if file.CacheSeconds != nil {
		cacheSeconds = *file.CacheSeconds
	}
	return sites, cacheSeconds
}
