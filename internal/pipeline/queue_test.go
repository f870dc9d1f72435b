package pipeline

import (
	"context"
	"testing"
	"time"
)

func TestQueueDropsPartialsWhileBusy(t *testing.T) {
	q := NewQueue(2)
	if !q.TryEnqueue(Task{Text: "he"}) {
		t.Fatal("partial into empty queue should be accepted")
	}
	for _, text := range []string{"hel", "hell", "hello"} {
		if q.TryEnqueue(Task{Text: text}) {
			t.Fatalf("partial %q accepted while queue busy", text)
		}
	}
	if q.Len() != 1 {
		t.Fatalf("len = %d, want 1", q.Len())
	}

	if _, ok := q.Dequeue(); !ok {
		t.Fatal("expected task")
	}
	if !q.TryEnqueue(Task{Text: "hello w"}) {
		t.Fatal("partial after drain should be accepted")
	}
}

func TestQueueAcceptsFinalBehindStalePartial(t *testing.T) {
	q := NewQueue(2)
	q.TryEnqueue(Task{Text: "stale"})
	if !q.TryEnqueue(Task{Text: "done", Final: true, Seq: 1}) {
		t.Fatal("final must always be accepted")
	}
	if q.Len() != 2 {
		t.Fatalf("len = %d, want 2", q.Len())
	}
	first, _ := q.Dequeue()
	second, _ := q.Dequeue()
	if first.Text != "stale" || second.Text != "done" {
		t.Fatalf("unexpected order %q, %q", first.Text, second.Text)
	}
}

func TestQueueCapacityKeepsStalePartialWithFinal(t *testing.T) {
	for _, capacity := range []int{0, 1} {
		q := NewQueue(capacity)
		q.TryEnqueue(Task{Text: "stale"})
		q.TryEnqueue(Task{Text: "done", Final: true, Seq: 1})
		if q.Len() != 2 {
			t.Fatalf("capacity %d: len = %d, want stale partial and final", capacity, q.Len())
		}
	}
}

func TestQueueNeverDropsFinals(t *testing.T) {
	q := NewQueue(2)
	q.TryEnqueue(Task{Text: "stale"})
	for i := 1; i <= 4; i++ {
		if !q.TryEnqueue(Task{Text: "final", Final: true, Seq: uint64(i)}) {
			t.Fatalf("final %d rejected", i)
		}
	}
	var seqs []uint64
	for {
		task, ok := q.Dequeue()
		if !ok {
			break
		}
		if !task.Final {
			t.Fatalf("stale partial survived past capacity")
		}
		seqs = append(seqs, task.Seq)
	}
	if len(seqs) != 4 {
		t.Fatalf("got %d finals, want 4", len(seqs))
	}
	for i, seq := range seqs {
		if seq != uint64(i+1) {
			t.Fatalf("finals out of order: %v", seqs)
		}
	}
}

func TestQueueWaitWakesOnEnqueue(t *testing.T) {
	q := NewQueue(2)
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.TryEnqueue(Task{Text: "x", Final: true})
	}()
	start := time.Now()
	task, ok := q.Wait(context.Background(), 5*time.Second)
	if !ok || task.Text != "x" {
		t.Fatalf("unexpected wait result %+v %v", task, ok)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("wait did not wake on enqueue")
	}
}

func TestQueueWaitHonoursContextAndPoll(t *testing.T) {
	q := NewQueue(2)
	if _, ok := q.Wait(context.Background(), 10*time.Millisecond); ok {
		t.Fatal("expected empty result after poll interval")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := q.Wait(ctx, time.Hour); ok {
		t.Fatal("expected empty result for cancelled context")
	}
}

func TestQueueClear(t *testing.T) {
	q := NewQueue(2)
	q.TryEnqueue(Task{Text: "a", Final: true})
	q.TryEnqueue(Task{Text: "b", Final: true})
	q.Clear()
	if q.Len() != 0 {
		t.Fatalf("len = %d after clear", q.Len())
	}
	if !q.TryEnqueue(Task{Text: "p"}) {
		t.Fatal("partial should be accepted after clear")
	}
}
