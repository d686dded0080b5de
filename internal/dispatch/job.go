package dispatch

import (
	"context"
	"errors"
	"time"
)

// Status tracks a report job through its pipeline. failed is an absorbing
// state reachable from any step.
type Status string

const (
	StatusPending    Status = "pending"
	StatusQuerying   Status = "querying"
	StatusRendering  Status = "rendering"
	StatusDelivering Status = "delivering"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

var (
	ErrJobNotFound  = errors.New("dispatch: job not found")
	ErrInvalidInput = errors.New("dispatch: invalid input")
)

// Job is one enqueued AI report request: who asked, what they asked, and
// an optional serialized snapshot of their domain data.
type Job struct {
	ID        string
	Recipient string
	Query     string
	Context   string
	Status    Status
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Queue is the durable work queue feeding report workers. Claim hands each
// pending job to exactly one worker even when several poll concurrently.
type Queue interface {
	Enqueue(ctx context.Context, recipient, query, contextText string) (Job, error)
	// Claim atomically moves the oldest pending job to querying and
	// returns it. ok is false when no pending job exists.
	Claim(ctx context.Context) (job Job, ok bool, err error)
	SetStatus(ctx context.Context, id string, status Status) error
	// Fail moves the job to the failed state and records the reason.
	Fail(ctx context.Context, id, reason string) error
	Get(ctx context.Context, id string) (Job, error)
}
