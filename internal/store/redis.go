package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisStore implements CrawlStore on a shared Redis instance. The admission
// set relies on SADD's native test-and-add atomicity; bulk admission runs
// inside one MULTI/EXEC window so it cannot interleave with concurrent
// single-URL locks on the same key.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps an existing Redis client. All keys are namespaced with
// prefix and expire after ttl.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) crawlKey(id string) string {
	return s.prefix + "crawl:" + id
}

func (s *RedisStore) urlsKey(id string) string {
	return s.prefix + "crawl:" + id + ":urls"
}

func (s *RedisStore) jobsKey(id string) string {
	return s.prefix + "crawl:" + id + ":jobs"
}

// Save upserts the descriptor with a refreshed TTL.
func (s *RedisStore) Save(ctx context.Context, id string, desc *Descriptor) error {
	payload, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("failed to marshal crawl descriptor: %w", err)
	}

	if err := s.client.Set(ctx, s.crawlKey(id), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, s.crawlKey(id), err)
	}

	return nil
}

// Get reads the descriptor. An expired crawl and a never-created crawl both
// surface as ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, id string) (*Descriptor, error) {
	val, err := s.client.Get(ctx, s.crawlKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: get %s: %v", ErrUnavailable, s.crawlKey(id), err)
	}

	var desc Descriptor
	if err := json.Unmarshal([]byte(val), &desc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal crawl descriptor: %w", err)
	}

	return &desc, nil
}

// LockURL atomically tests-and-adds a URL to the crawl's admission set.
func (s *RedisStore) LockURL(ctx context.Context, id, url string) (bool, error) {
	added, err := s.client.SAdd(ctx, s.urlsKey(id), url).Result()
	if err != nil {
		return false, fmt.Errorf("%w: sadd %s: %v", ErrUnavailable, s.urlsKey(id), err)
	}

	// Keep the admission set on the same clock as the descriptor
	if err := s.client.Expire(ctx, s.urlsKey(id), s.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("crawl_id", id).Msg("Failed to refresh admission set TTL")
	}

	return added == 1, nil
}

// LockURLs bulk-admits URLs in a single MULTI/EXEC window. Each URL gets its
// own SADD so per-URL admission results are preserved; the transaction means
// the batch either fully executes or fully fails, never a silent subset.
func (s *RedisStore) LockURLs(ctx context.Context, id string, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	pipe := s.client.TxPipeline()
	cmds := make([]*redis.IntCmd, len(urls))
	for i, url := range urls {
		cmds[i] = pipe.SAdd(ctx, s.urlsKey(id), url)
	}
	pipe.Expire(ctx, s.urlsKey(id), s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: bulk sadd %s: %v", ErrUnavailable, s.urlsKey(id), err)
	}

	admitted := make([]string, 0, len(urls))
	for i, cmd := range cmds {
		if cmd.Val() == 1 {
			admitted = append(admitted, urls[i])
		}
	}

	log.Debug().
		Str("crawl_id", id).
		Int("requested", len(urls)).
		Int("admitted", len(admitted)).
		Msg("Bulk URL admission completed")

	return admitted, nil
}

// RegisterJob appends one job id to the crawl's registry.
func (s *RedisStore) RegisterJob(ctx context.Context, id, jobID string) error {
	return s.RegisterJobs(ctx, id, []string{jobID})
}

// RegisterJobs appends job ids to the registry. The registry grows
// monotonically; duplicates are tolerated since job ids are generated
// uniquely upstream.
func (s *RedisStore) RegisterJobs(ctx context.Context, id string, jobIDs []string) error {
	if len(jobIDs) == 0 {
		return nil
	}

	members := make([]interface{}, len(jobIDs))
	for i, jobID := range jobIDs {
		members[i] = jobID
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.jobsKey(id), members...)
	pipe.Expire(ctx, s.jobsKey(id), s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: rpush %s: %v", ErrUnavailable, s.jobsKey(id), err)
	}

	return nil
}

// JobCount returns how many jobs have been registered for the crawl.
func (s *RedisStore) JobCount(ctx context.Context, id string) (int, error) {
	count, err := s.client.LLen(ctx, s.jobsKey(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: llen %s: %v", ErrUnavailable, s.jobsKey(id), err)
	}
	return int(count), nil
}
