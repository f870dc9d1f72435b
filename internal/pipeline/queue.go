package pipeline

import (
	"context"
	"sync"
	"time"
)

// Task is one unit of translation work. It carries no engine settings; the
// translator reads the live options when it runs the task.
type Task struct {
	Text  string
	Final bool
	Seq   uint64
}

// Queue is the hand-off between the transcriber and the translator. A partial
// is accepted only into an empty queue. A final is always accepted; if that
// pushes the queue past capacity, queued partials are discarded first since a
// later final supersedes them.
type Queue struct {
	mu       sync.Mutex
	items    []Task
	capacity int
	signal   chan struct{}
}

// NewQueue raises capacities below 2 to 2 so a final always fits behind a
// stale partial.
func NewQueue(capacity int) *Queue {
	if capacity < 2 {
		capacity = 2
	}
	return &Queue{
		items:    make([]Task, 0, capacity),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// TryEnqueue reports whether the task was queued. A dropped partial is not an
// error.
func (q *Queue) TryEnqueue(task Task) bool {
	q.mu.Lock()
	if !task.Final && len(q.items) > 0 {
		q.mu.Unlock()
		return false
	}
	if task.Final && len(q.items) >= q.capacity {
		q.evictPartials()
	}
	q.items = append(q.items, task)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// evictPartials must be called with mu held.
func (q *Queue) evictPartials() {
	kept := q.items[:0]
	for _, t := range q.items {
		if t.Final {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = Task{}
	}
	q.items = kept
}

// Dequeue pops the head without blocking.
func (q *Queue) Dequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Task{}, false
	}
	task := q.items[0]
	q.items[0] = Task{}
	q.items = q.items[1:]
	return task, true
}

// Wait blocks until a task is available, ctx ends, or poll elapses. The poll
// bound keeps callers checking their own stop conditions.
func (q *Queue) Wait(ctx context.Context, poll time.Duration) (Task, bool) {
	if task, ok := q.Dequeue(); ok {
		return task, true
	}
	timer := time.NewTimer(poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Task{}, false
	case <-q.signal:
	case <-timer.C:
	}
	return q.Dequeue()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.items)
	q.items = q.items[:0]
	select {
	case <-q.signal:
	default:
	}
}
