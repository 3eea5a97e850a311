package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisQueue implements Client on a Redis instance shared with the worker
// fleet. Jobs live in a sorted set scored by priority, payloads in plain
// keys, and results arrive on per-job lists that workers RPUSH to.
type RedisQueue struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisQueue wraps an existing Redis client. Payload and bookkeeping keys
// expire after ttl so abandoned jobs do not accumulate.
func NewRedisQueue(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisQueue {
	return &RedisQueue{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (q *RedisQueue) pendingKey() string {
	return q.prefix + "pending"
}

func (q *RedisQueue) payloadKey(jobID string) string {
	return q.prefix + "job:" + jobID
}

func (q *RedisQueue) resultKey(jobID string) string {
	return q.prefix + "result:" + jobID
}

func (q *RedisQueue) tenantKey(tenantID string) string {
	return q.prefix + "tenant:" + tenantID
}

type redisHandle struct {
	id       string
	tenantID string
	queue    *RedisQueue
}

func (h *redisHandle) ID() string {
	return h.id
}

// Remove deletes the job and its result so nothing lingers in the queue's
// history once the caller has consumed the outcome.
func (h *redisHandle) Remove(ctx context.Context) error {
	pipe := h.queue.client.TxPipeline()
	pipe.ZRem(ctx, h.queue.pendingKey(), h.id)
	pipe.Del(ctx, h.queue.payloadKey(h.id), h.queue.resultKey(h.id))
	pipe.SRem(ctx, h.queue.tenantKey(h.tenantID), h.id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: remove job %s: %v", ErrUnavailable, h.id, err)
	}

	return nil
}

// addToPipe stages the commands for one entry onto a pipeline.
func (q *RedisQueue) addToPipe(ctx context.Context, pipe redis.Pipeliner, entry Entry, payload []byte) {
	pipe.Set(ctx, q.payloadKey(entry.ID), payload, q.ttl)
	pipe.ZAdd(ctx, q.pendingKey(), redis.Z{
		Score:  float64(entry.Priority),
		Member: entry.ID,
	})
	pipe.SAdd(ctx, q.tenantKey(entry.Payload.TenantID), entry.ID)
	pipe.Expire(ctx, q.tenantKey(entry.Payload.TenantID), q.ttl)
}

// Enqueue places one job on the shared queue.
func (q *RedisQueue) Enqueue(ctx context.Context, entry Entry) (Handle, error) {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	pipe := q.client.TxPipeline()
	q.addToPipe(ctx, pipe, entry, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: enqueue job %s: %v", ErrUnavailable, entry.ID, err)
	}

	log.Debug().
		Str("job_id", entry.ID).
		Str("crawl_id", entry.Payload.CrawlID).
		Int("priority", entry.Priority).
		Msg("Enqueued job")

	return &redisHandle{id: entry.ID, tenantID: entry.Payload.TenantID, queue: q}, nil
}

// EnqueueBulk places a batch of jobs in one MULTI/EXEC window so consumers
// never observe a partially visible batch.
func (q *RedisQueue) EnqueueBulk(ctx context.Context, entries []Entry) ([]Handle, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	pipe := q.client.TxPipeline()
	for _, entry := range entries {
		payload, err := json.Marshal(entry.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal job payload %s: %w", entry.ID, err)
		}
		q.addToPipe(ctx, pipe, entry, payload)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: bulk enqueue of %d jobs: %v", ErrUnavailable, len(entries), err)
	}

	handles := make([]Handle, len(entries))
	for i, entry := range entries {
		handles[i] = &redisHandle{id: entry.ID, tenantID: entry.Payload.TenantID, queue: q}
	}

	log.Debug().
		Int("job_count", len(entries)).
		Str("crawl_id", entries[0].Payload.CrawlID).
		Msg("Bulk enqueued jobs")

	return handles, nil
}

// WaitFor blocks on the job's result list until a worker publishes the
// outcome or the timeout elapses. Only the calling goroutine parks; the
// Redis connection does the blocking via BRPOP.
func (q *RedisQueue) WaitFor(ctx context.Context, jobID string, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("wait timeout must be positive, got %s", timeout)
	}

	vals, err := q.client.BRPop(ctx, timeout, q.resultKey(jobID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrWaitTimeout
		}
		return nil, fmt.Errorf("%w: brpop %s: %v", ErrUnavailable, q.resultKey(jobID), err)
	}

	// BRPOP returns [key, value]
	if len(vals) != 2 {
		return nil, fmt.Errorf("unexpected brpop reply length %d", len(vals))
	}

	var result Result
	if err := json.Unmarshal([]byte(vals[1]), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job result: %w", err)
	}

	return &result, nil
}

// TenantLoad counts the tenant's jobs currently tracked on the queue.
func (q *RedisQueue) TenantLoad(ctx context.Context, tenantID string) (int64, error) {
	count, err := q.client.SCard(ctx, q.tenantKey(tenantID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: scard %s: %v", ErrUnavailable, q.tenantKey(tenantID), err)
	}
	return count, nil
}
