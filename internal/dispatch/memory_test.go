package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestQueueLifecycle(t *testing.T) {
	queue := NewInMemoryQueue()
	ctx := context.Background()

	job, err := queue.Enqueue(ctx, "user-7", "/ai list overdue tenants", `{"units":3}`)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.Status != StatusPending {
		t.Fatalf("status = %q, want %q", job.Status, StatusPending)
	}
	if job.ID == "" {
		t.Fatal("enqueue must assign an id")
	}

	claimed, ok, err := queue.Claim(ctx)
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if claimed.ID != job.ID {
		t.Fatalf("claimed %q, want %q", claimed.ID, job.ID)
	}
	if claimed.Status != StatusQuerying {
		t.Fatalf("claimed status = %q, want %q", claimed.Status, StatusQuerying)
	}

	if _, ok, _ := queue.Claim(ctx); ok {
		t.Fatal("second claim should find nothing")
	}

	for _, status := range []Status{StatusRendering, StatusDelivering, StatusDone} {
		if err := queue.SetStatus(ctx, job.ID, status); err != nil {
			t.Fatalf("set %s: %v", status, err)
		}
	}
	got, err := queue.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusDone {
		t.Fatalf("status = %q, want %q", got.Status, StatusDone)
	}
}

func TestQueueEnqueueValidation(t *testing.T) {
	queue := NewInMemoryQueue()
	ctx := context.Background()

	if _, err := queue.Enqueue(ctx, "", "query", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank recipient: err = %v, want ErrInvalidInput", err)
	}
	if _, err := queue.Enqueue(ctx, "user-1", "   ", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank query: err = %v, want ErrInvalidInput", err)
	}
}

func TestQueueClaimOldestFirst(t *testing.T) {
	queue := NewInMemoryQueue()
	ctx := context.Background()

	first, err := queue.Enqueue(ctx, "user-1", "first", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := queue.Enqueue(ctx, "user-1", "second", ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, ok, err := queue.Claim(ctx)
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if claimed.ID != first.ID {
		t.Fatalf("claimed %q, want oldest %q", claimed.ID, first.ID)
	}
}

func TestQueueConcurrentClaimSingleWinnerPerJob(t *testing.T) {
	queue := NewInMemoryQueue()
	ctx := context.Background()

	const jobs = 8
	for i := 0; i < jobs; i++ {
		if _, err := queue.Enqueue(ctx, "user-1", "q", ""); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	var (
		mu      sync.Mutex
		claimed = map[string]int{}
		wg      sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, ok, err := queue.Claim(ctx)
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if !ok {
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != jobs {
		t.Fatalf("claimed %d distinct jobs, want %d", len(claimed), jobs)
	}
	for id, n := range claimed {
		if n != 1 {
			t.Fatalf("job %s claimed %d times", id, n)
		}
	}
}

func TestQueueUnknownJob(t *testing.T) {
	queue := NewInMemoryQueue()
	ctx := context.Background()

	if err := queue.SetStatus(ctx, "missing", StatusDone); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("set status: err = %v, want ErrJobNotFound", err)
	}
	if err := queue.Fail(ctx, "missing", "boom"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("fail: err = %v, want ErrJobNotFound", err)
	}
	if _, err := queue.Get(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("get: err = %v, want ErrJobNotFound", err)
	}
}
