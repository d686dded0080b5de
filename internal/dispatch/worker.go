package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/sparoodata/mainai-sub000/internal/blob"
	"github.com/sparoodata/mainai-sub000/internal/ids"
	"github.com/sparoodata/mainai-sub000/internal/obs"
	"github.com/sparoodata/mainai-sub000/internal/report"
)

// AnswerClient produces an answer for a recipient's query. Satisfied by
// aiquery.Client.
type AnswerClient interface {
	Ask(ctx context.Context, contextText, queryText string) (string, error)
}

// Worker drains the report queue: ask the AI, render the answer, deliver
// the artifact. Each job moves pending, querying, rendering, delivering,
// done in order, with failed absorbing any AI error. Jobs are
// independent; several workers may run against the same queue.
type Worker struct {
	queue     Queue
	client    AnswerClient
	messenger Messenger
	archive   blob.ObjectStore // optional; nil disables archival
}

func NewWorker(queue Queue, client AnswerClient, messenger Messenger, archive blob.ObjectStore) *Worker {
	return &Worker{queue: queue, client: client, messenger: messenger, archive: archive}
}

// Run polls the queue until ctx ends, draining all claimable jobs each tick.
func (w *Worker) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		job, ok, err := w.queue.Claim(ctx)
		if err != nil {
			obs.LogRequest(map[string]any{"level": "error", "msg": "claim job", "error": err.Error()})
			return
		}
		if !ok {
			return
		}
		w.Process(ctx, job)
	}
}

// Process runs one claimed job to a terminal state. The job is expected to
// be in the querying state (Claim put it there).
func (w *Worker) Process(ctx context.Context, job Job) {
	answer, err := w.client.Ask(ctx, job.Context, job.Query)
	if err != nil {
		// No internal re-enqueue: AI failures are terminal for the job.
		w.fail(ctx, job, fmt.Sprintf("ai query: %v", err))
		return
	}

	if err := w.queue.SetStatus(ctx, job.ID, StatusRendering); err != nil {
		w.fail(ctx, job, fmt.Sprintf("set rendering: %v", err))
		return
	}
	artifact := report.Render(answer)

	if err := w.queue.SetStatus(ctx, job.ID, StatusDelivering); err != nil {
		w.fail(ctx, job, fmt.Sprintf("set delivering: %v", err))
		return
	}
	w.deliver(ctx, job, artifact)

	if err := w.queue.SetStatus(ctx, job.ID, StatusDone); err != nil {
		obs.LogRequest(map[string]any{
			"level": "error", "msg": "set done", "job_id": job.ID, "error": err.Error(),
		})
		return
	}
	obs.CountReportJob("done")
}

// deliver sends the artifact to the recipient. Delivery is fire-and-forget:
// the AI work and rendering already succeeded, so a lost message never
// fails the job.
func (w *Worker) deliver(ctx context.Context, job Job, artifact report.Artifact) {
	var err error
	switch artifact.Kind {
	case report.KindDocument:
		w.archiveDocument(ctx, job, artifact)
		err = w.messenger.SendDocument(ctx, job.Recipient, artifact.Data, artifact.Filename, artifact.MIME)
	default:
		err = w.messenger.SendText(ctx, job.Recipient, artifact.Text)
	}
	if err != nil {
		obs.LogRequest(map[string]any{
			"level": "warn", "msg": "delivery failed", "job_id": job.ID,
			"recipient": job.Recipient, "error": err.Error(),
		})
	}
}

func (w *Worker) archiveDocument(ctx context.Context, job Job, artifact report.Artifact) {
	if w.archive == nil {
		return
	}
	key := fmt.Sprintf("reports/%s/%s.pdf", job.Recipient, ids.New())
	if err := w.archive.Put(ctx, key, artifact.MIME, artifact.Data); err != nil {
		obs.LogRequest(map[string]any{
			"level": "warn", "msg": "archive report", "job_id": job.ID, "error": err.Error(),
		})
	}
}

func (w *Worker) fail(ctx context.Context, job Job, reason string) {
	if err := w.queue.Fail(ctx, job.ID, reason); err != nil {
		obs.LogRequest(map[string]any{
			"level": "error", "msg": "mark job failed", "job_id": job.ID, "error": err.Error(),
		})
	}
	obs.LogRequest(map[string]any{
		"level": "warn", "msg": "report job failed", "job_id": job.ID, "reason": reason,
	})
	obs.CountReportJob("failed")
}
