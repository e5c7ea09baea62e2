package search

import (
	"github.com/samber/lo"

	"danmustream/danmuservice/internal/domain"
)

// Resolve looks up a provider by exact key. When the registry carries duplicate keys the
// first entry wins.
func Resolve(registry []domain.ProviderSite, key string) (domain.ProviderSite, bool) {
	return lo.Find(registry, func(site domain.ProviderSite) bool {
		return site.Key == key
	})
}
