package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/sparoodata/mainai-sub000/internal/ids"
)

// PGQueue implements Queue on PostgreSQL. The claim step is a single
// conditional update over the oldest pending row, so concurrent workers
// never process the same job twice.
type PGQueue struct {
	db *sql.DB
}

var _ Queue = (*PGQueue)(nil)

func NewPGQueue(db *sql.DB) *PGQueue {
	return &PGQueue{db: db}
}

func (q *PGQueue) Enqueue(ctx context.Context, recipient, query, contextText string) (Job, error) {
	recipient = strings.TrimSpace(recipient)
	query = strings.TrimSpace(query)
	if recipient == "" || query == "" {
		return Job{}, ErrInvalidInput
	}

	var job Job
	err := q.db.QueryRowContext(ctx, `
		insert into report_jobs(id, recipient, query, context, status, created_at, updated_at)
		values ($1, $2, $3, $4, 'pending', now(), now())
		returning id, recipient, query, context, status, coalesce(error, ''), created_at, updated_at
	`, ids.New(), recipient, query, contextText).Scan(
		&job.ID, &job.Recipient, &job.Query, &job.Context, &job.Status,
		&job.Error, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return Job{}, err
	}
	return job, nil
}

func (q *PGQueue) Claim(ctx context.Context) (Job, bool, error) {
	var job Job
	err := q.db.QueryRowContext(ctx, `
		update report_jobs
		set status = 'querying', updated_at = now()
		where id = (
			select id from report_jobs
			where status = 'pending'
			order by created_at
			limit 1
			for update skip locked
		)
		returning id, recipient, query, context, status, coalesce(error, ''), created_at, updated_at
	`).Scan(
		&job.ID, &job.Recipient, &job.Query, &job.Context, &job.Status,
		&job.Error, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

func (q *PGQueue) SetStatus(ctx context.Context, id string, status Status) error {
	res, err := q.db.ExecContext(ctx, `
		update report_jobs set status = $2, updated_at = now() where id = $1
	`, id, string(status))
	if err != nil {
		return err
	}
	return checkFound(res)
}

func (q *PGQueue) Fail(ctx context.Context, id, reason string) error {
	res, err := q.db.ExecContext(ctx, `
		update report_jobs set status = 'failed', error = $2, updated_at = now() where id = $1
	`, id, reason)
	if err != nil {
		return err
	}
	return checkFound(res)
}

func (q *PGQueue) Get(ctx context.Context, id string) (Job, error) {
	var job Job
	err := q.db.QueryRowContext(ctx, `
		select id, recipient, query, context, status, coalesce(error, ''), created_at, updated_at
		from report_jobs where id = $1
	`, id).Scan(
		&job.ID, &job.Recipient, &job.Query, &job.Context, &job.Status,
		&job.Error, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, err
	}
	return job, nil
}

func checkFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}
