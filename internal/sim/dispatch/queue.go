package dispatch

import "sync"

// Result is the outcome of one background job. Err is set when the job
// returned an error or panicked; Value is then the zero value.
type Result[T any] struct {
	Value T
	Err   error
}

// Pending is a finished job waiting to be handed to its callback on the
// consumer goroutine.
type Pending[T any] struct {
	Done   func(Result[T])
	Result Result[T]
}

// Queue is the hand-off point between workers and the single consumer for
// one category of work. The lock is held only while appending or swapping
// the slice, never while a job or callback runs.
type Queue[T any] struct {
	mu    sync.Mutex
	items []Pending[T]
}

func (q *Queue[T]) Push(p Pending[T]) {
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) take() []Pending[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Drain runs callbacks in completion order until the queue is empty,
// including results that arrive while draining. It must only be called from
// the consumer goroutine.
func (q *Queue[T]) Drain() int {
	n := 0
	for {
		batch := q.take()
		if len(batch) == 0 {
			return n
		}
		for _, p := range batch {
			if p.Done != nil {
				p.Done(p.Result)
			}
			n++
		}
	}
}
