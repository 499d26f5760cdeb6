package dialer

import (
	"context"
	"testing"
	"time"

	"softphone-dialer/internal/calls"
)

func TestPoll_PicksUpNewRecords(t *testing.T) {
	h := newHarness(t, Config{}, calls.Record{ID: "1", Phone: "111"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		h.c.Poll(ctx, 5*time.Millisecond)
		close(done)
	}()

	h.repo.Seed(calls.Record{ID: "2", Phone: "222"})

	deadline := time.Now().Add(2 * time.Second)
	for len(h.c.Snapshot().Queue.Records) != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("poll did not refresh the queue: %+v", h.c.Snapshot().Queue.Records)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("poll did not stop on cancel")
	}
}

func TestPoll_DisabledWithoutInterval(t *testing.T) {
	h := newHarness(t, Config{})
	returned := make(chan struct{})
	go func() {
		h.c.Poll(context.Background(), 0)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatalf("poll with zero interval should return immediately")
	}
}
