package search

import (
	"strings"

	"github.com/samber/lo"

	"danmustream/danmuservice/internal/domain"
	"danmustream/danmuservice/internal/metrics"
)

// Filter keeps the results whose title contains text as a plain, case-sensitive substring.
// Providers already search by the same text; their matching is broader and unverified, so
// the check is repeated here. Result order is preserved; untitled results never pass.
func Filter(results []domain.RawResult, text string) []domain.DanmuResult {
	filtered := lo.FilterMap(results, func(item domain.RawResult, _ int) (domain.DanmuResult, bool) {
		if item.Title == "" || !strings.Contains(item.Title, text) {
			return domain.DanmuResult{}, false
		}
		episodes := item.Episodes
		if episodes == nil {
			episodes = []domain.EpisodeItem{}
		}
		return domain.DanmuResult{
			ID:       item.ID,
			Title:    item.Title,
			Episodes: episodes,
		}, true
	})
	if dropped := len(results) - len(filtered); dropped > 0 {
		metrics.FilteredResultsTotal.Add(float64(dropped))
	}
	return filtered
}
