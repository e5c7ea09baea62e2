package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
)

// CacheDirective renders the Cache-Control value advertised for danmu responses.
func CacheDirective(ttlSeconds int) string {
	if ttlSeconds < 0 {
		ttlSeconds = 0
	}
	return "public, max-age=" + strconv.Itoa(ttlSeconds)
}

func (s *Server) applyCacheDirective(ctx context.Context, w http.ResponseWriter) {
	ttl, err := s.search.CacheSeconds(ctx, s.cacheSecondsFallback)
	if err != nil {
		s.logger.Warn("cache seconds unavailable, using fallback",
			slog.Int("fallback", s.cacheSecondsFallback),
			slog.String("error", err.Error()),
		)
	}
	w.Header().Set("Cache-Control", CacheDirective(ttl))
}
