package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process Client used by tests and local development.
// It honours the same batch-visibility and wait-with-timeout semantics as
// RedisQueue.
type MemoryQueue struct {
	mu         sync.Mutex
	entries    map[string]Entry
	results    map[string]chan *Result
	tenantJobs map[string]map[string]struct{}
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		entries:    make(map[string]Entry),
		results:    make(map[string]chan *Result),
		tenantJobs: make(map[string]map[string]struct{}),
	}
}

type memoryHandle struct {
	id       string
	tenantID string
	queue    *MemoryQueue
}

func (h *memoryHandle) ID() string {
	return h.id
}

func (h *memoryHandle) Remove(ctx context.Context) error {
	h.queue.mu.Lock()
	defer h.queue.mu.Unlock()

	delete(h.queue.entries, h.id)
	delete(h.queue.results, h.id)
	if jobs, ok := h.queue.tenantJobs[h.tenantID]; ok {
		delete(jobs, h.id)
	}

	return nil
}

// add stages one entry; callers must hold the mutex.
func (q *MemoryQueue) add(entry Entry) Handle {
	q.entries[entry.ID] = entry
	if q.tenantJobs[entry.Payload.TenantID] == nil {
		q.tenantJobs[entry.Payload.TenantID] = make(map[string]struct{})
	}
	q.tenantJobs[entry.Payload.TenantID][entry.ID] = struct{}{}

	return &memoryHandle{id: entry.ID, tenantID: entry.Payload.TenantID, queue: q}
}

// Enqueue places one job.
func (q *MemoryQueue) Enqueue(ctx context.Context, entry Entry) (Handle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.add(entry), nil
}

// EnqueueBulk places the whole batch under one lock acquisition.
func (q *MemoryQueue) EnqueueBulk(ctx context.Context, entries []Entry) ([]Handle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	handles := make([]Handle, len(entries))
	for i, entry := range entries {
		handles[i] = q.add(entry)
	}

	return handles, nil
}

// resultChan returns the job's result channel, creating it if needed.
func (q *MemoryQueue) resultChan(jobID string) chan *Result {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, ok := q.results[jobID]
	if !ok {
		ch = make(chan *Result, 1)
		q.results[jobID] = ch
	}
	return ch
}

// Complete publishes a job result, unblocking any WaitFor caller. Stands in
// for the external worker fleet in tests.
func (q *MemoryQueue) Complete(jobID string, result *Result) {
	q.resultChan(jobID) <- result
}

// WaitFor blocks until the job's result arrives or the timeout elapses.
func (q *MemoryQueue) WaitFor(ctx context.Context, jobID string, timeout time.Duration) (*Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-q.resultChan(jobID):
		return result, nil
	case <-timer.C:
		return nil, ErrWaitTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TenantLoad counts the tenant's in-flight jobs.
func (q *MemoryQueue) TenantLoad(ctx context.Context, tenantID string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return int64(len(q.tenantJobs[tenantID])), nil
}

// Entries returns a snapshot of the queued entries, for assertions in tests.
func (q *MemoryQueue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := make([]Entry, 0, len(q.entries))
	for _, entry := range q.entries {
		entries = append(entries, entry)
	}
	return entries
}
