package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeClient struct {
	answer string
	err    error
	calls  int
}

func (c *fakeClient) Ask(ctx context.Context, contextText, queryText string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.answer, nil
}

type fakeMessenger struct {
	mu        sync.Mutex
	texts     []string
	documents [][]byte
	err       error
}

func (m *fakeMessenger) SendText(ctx context.Context, recipient, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return m.err
}

func (m *fakeMessenger) SendDocument(ctx context.Context, recipient string, data []byte, filename, mime string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = append(m.documents, data)
	return m.err
}

func TestWorkerProcessTextAnswer(t *testing.T) {
	queue := NewInMemoryQueue()
	client := &fakeClient{answer: "the rent is due on the first"}
	messenger := &fakeMessenger{}
	worker := NewWorker(queue, client, messenger, nil)

	ctx := context.Background()
	if _, err := queue.Enqueue(ctx, "user-1", "when is rent due", ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, ok, err := queue.Claim(ctx)
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	worker.Process(ctx, job)

	got, err := queue.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusDone {
		t.Fatalf("status = %q, want %q", got.Status, StatusDone)
	}
	if len(messenger.texts) != 1 || messenger.texts[0] != "the rent is due on the first" {
		t.Fatalf("texts = %v", messenger.texts)
	}
	if len(messenger.documents) != 0 {
		t.Fatalf("unexpected document delivery")
	}
}

func TestWorkerProcessTabularAnswer(t *testing.T) {
	queue := NewInMemoryQueue()
	client := &fakeClient{answer: `[{"unit":"A1","rent":1200},{"unit":"B2","rent":950}]`}
	messenger := &fakeMessenger{}
	worker := NewWorker(queue, client, messenger, nil)

	ctx := context.Background()
	if _, err := queue.Enqueue(ctx, "user-1", "list units and rents", ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, _, err := queue.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	worker.Process(ctx, job)

	got, err := queue.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusDone {
		t.Fatalf("status = %q, want %q", got.Status, StatusDone)
	}
	if len(messenger.documents) != 1 {
		t.Fatalf("documents = %d, want 1", len(messenger.documents))
	}
	if len(messenger.texts) != 0 {
		t.Fatalf("unexpected text delivery: %v", messenger.texts)
	}
}

func TestWorkerAIFailureMarksJobFailed(t *testing.T) {
	queue := NewInMemoryQueue()
	client := &fakeClient{err: errors.New("all credentials exhausted")}
	messenger := &fakeMessenger{}
	worker := NewWorker(queue, client, messenger, nil)

	ctx := context.Background()
	if _, err := queue.Enqueue(ctx, "user-1", "anything", ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, _, err := queue.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	worker.Process(ctx, job)

	got, err := queue.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("status = %q, want %q", got.Status, StatusFailed)
	}
	if got.Error == "" {
		t.Fatal("failed job should record a reason")
	}
	if len(messenger.texts) != 0 || len(messenger.documents) != 0 {
		t.Fatal("failed job must not be delivered")
	}
}

func TestWorkerDeliveryFailureStillCompletes(t *testing.T) {
	queue := NewInMemoryQueue()
	client := &fakeClient{answer: "all good"}
	messenger := &fakeMessenger{err: errors.New("gateway down")}
	worker := NewWorker(queue, client, messenger, nil)

	ctx := context.Background()
	if _, err := queue.Enqueue(ctx, "user-1", "status", ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, _, err := queue.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	worker.Process(ctx, job)

	got, err := queue.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusDone {
		t.Fatalf("status = %q, want %q; delivery errors are logged, not fatal", got.Status, StatusDone)
	}
}

func TestWorkerDrainEmptiesQueue(t *testing.T) {
	queue := NewInMemoryQueue()
	client := &fakeClient{answer: "ok"}
	messenger := &fakeMessenger{}
	worker := NewWorker(queue, client, messenger, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := queue.Enqueue(ctx, "user-1", "q", ""); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	worker.drain(ctx)

	if client.calls != 3 {
		t.Fatalf("calls = %d, want 3", client.calls)
	}
	if _, ok, err := queue.Claim(ctx); err != nil || ok {
		t.Fatalf("queue should be empty after drain: ok=%v err=%v", ok, err)
	}
}
