package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/z-wentao/slidecast/pkg/models"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue(2)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if err := q.Enqueue(ctx, &models.RenderJob{JobID: id}); err != nil {
			t.Fatalf("Enqueue %s: %v", id, err)
		}
	}
	if err := q.Enqueue(ctx, &models.RenderJob{JobID: "c"}); err == nil {
		t.Fatalf("full queue should reject")
	}
	for _, want := range []string{"a", "b"} {
		job, err := q.Dequeue(ctx)
		if err != nil || job.JobID != want {
			t.Fatalf("Dequeue: want=%s got=%v err=%v", want, job, err)
		}
	}
}

func TestMemoryQueueNackRequeue(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()
	job := &models.RenderJob{JobID: "a"}
	q.Enqueue(ctx, job)
	got, _ := q.Dequeue(ctx)

	if err := q.Nack(got, false); err != nil || q.Len() != 0 {
		t.Fatalf("nack without requeue: len=%d err=%v", q.Len(), err)
	}
	if err := q.Nack(got, true); err != nil || q.Len() != 1 {
		t.Fatalf("nack with requeue: len=%d err=%v", q.Len(), err)
	}
	if err := q.Ack(got); err != nil {
		t.Fatalf("Ack: %v", err)
	}
}

func TestMemoryQueueDequeueUnblocks(t *testing.T) {
	q := NewMemoryQueue(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline, got %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		done <- err
	}()
	q.Close()
	q.Close()
	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("want ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Dequeue did not return after Close")
	}
	if err := q.Enqueue(context.Background(), &models.RenderJob{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("enqueue after close: %v", err)
	}
}

func TestMessageRoundTripKeepsRequest(t *testing.T) {
	job := &models.RenderJob{
		JobID:    "j",
		VideoID:  "v",
		Status:   models.StatusProcessing,
		Progress: 50,
		Request:  models.RenderRequest{Transcripts: []string{"Hi"}, FPS: 24},
	}
	back := toMessage(job).job()
	if back.JobID != "j" || back.VideoID != "v" || back.Request.FPS != 24 || back.Status != models.StatusPending || back.Progress != 0 {
		t.Fatalf("unexpected job: %+v", back)
	}
}
