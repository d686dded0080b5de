package dispatch

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sparoodata/mainai-sub000/internal/ids"
)

// InMemoryQueue implements Queue for tests and single-node development.
// Production deployments use the Postgres queue so jobs survive restarts.
type InMemoryQueue struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

var _ Queue = (*InMemoryQueue)(nil)

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{jobs: make(map[string]*Job)}
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, recipient, query, contextText string) (Job, error) {
	recipient = strings.TrimSpace(recipient)
	query = strings.TrimSpace(query)
	if recipient == "" || query == "" {
		return Job{}, ErrInvalidInput
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	job := &Job{
		ID:        ids.New(),
		Recipient: recipient,
		Query:     query,
		Context:   contextText,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q.jobs[job.ID] = job
	return *job, nil
}

func (q *InMemoryQueue) Claim(ctx context.Context) (Job, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var pending []*Job
	for _, job := range q.jobs {
		if job.Status == StatusPending {
			pending = append(pending, job)
		}
	}
	if len(pending) == 0 {
		return Job{}, false, nil
	}
	// ULIDs sort by creation time, so the smallest id is the oldest job.
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })

	job := pending[0]
	job.Status = StatusQuerying
	job.UpdatedAt = time.Now().UTC()
	return *job, true, nil
}

func (q *InMemoryQueue) SetStatus(ctx context.Context, id string, status Status) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (q *InMemoryQueue) Fail(ctx context.Context, id, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusFailed
	job.Error = reason
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (q *InMemoryQueue) Get(ctx context.Context, id string) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return *job, nil
}
