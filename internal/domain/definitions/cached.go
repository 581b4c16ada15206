package definitions

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ehr/proscore/internal/domain/scoring"
	"github.com/ehr/proscore/internal/platform/fhir"
)

const (
	DefaultCacheTTL = 30 * time.Minute
	cacheKeyPrefix  = "proscore:questionnaire:"
)

// cacheClient is the part of redis.Cmdable the cache uses.
type cacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedLoader keeps definitions found by the wrapped loader in redis.
// Redis failures are logged and bypassed; they never fail a lookup.
// Not-found results are not cached.
type CachedLoader struct {
	next   scoring.DefinitionLoader
	client cacheClient
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedLoader(next scoring.DefinitionLoader, client redis.Cmdable, ttl time.Duration, logger zerolog.Logger) *CachedLoader {
	return newCachedLoader(next, client, ttl, logger)
}

func newCachedLoader(next scoring.DefinitionLoader, client cacheClient, ttl time.Duration, logger zerolog.Logger) *CachedLoader {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedLoader{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "definition_cache").Logger(),
	}
}

func cacheKey(ref string) string {
	return cacheKeyPrefix + scoring.NormalizeRef(ref)
}

func (l *CachedLoader) LoadQuestionnaire(ctx context.Context, ref string) (*fhir.Questionnaire, error) {
	key := cacheKey(ref)
	data, err := l.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var q fhir.Questionnaire
		if jerr := json.Unmarshal(data, &q); jerr == nil {
			return &q, nil
		}
		l.logger.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		l.logger.Warn().Err(err).Str("key", key).Msg("definition cache read failed")
	}

	q, err := l.next.LoadQuestionnaire(ctx, ref)
	if err != nil || q == nil {
		return q, err
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return q, nil
	}
	if err := l.client.Set(ctx, key, raw, l.ttl).Err(); err != nil {
		l.logger.Warn().Err(err).Str("key", key).Msg("definition cache write failed")
	}
	return q, nil
}

// Invalidate drops the cached entry for ref.
func (l *CachedLoader) Invalidate(ctx context.Context, ref string) error {
	return l.client.Del(ctx, cacheKey(ref)).Err()
}
