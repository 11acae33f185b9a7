// Package writequeue contains an asynchronous write queue that detaches
// the goroutine producing outbound packets (fan-out from a stream) from
// the goroutine that owns the socket or TCP connection they're written
// to, so a slow peer never blocks the producer.
package writequeue

import (
	"context"

	"github.com/bluenviron/rtsprelay/internal/ringbuffer"
)

// Queue is a bounded, single-consumer queue of write jobs.
type Queue struct {
	// BufferSize is the queue capacity; must be a power of two.
	BufferSize int

	// OnError is invoked once, from the consumer goroutine, when a job
	// returns an error; the consumer stops after that job. Closing the
	// queue does not invoke it.
	OnError func(context.Context, error)

	running   bool
	buffer    *ringbuffer.RingBuffer[func() error]
	ctx       context.Context
	ctxCancel func()
	done      chan struct{}
}

// Initialize allocates the internal buffer. Must be called before Start.
func (q *Queue) Initialize() {
	q.buffer, _ = ringbuffer.New[func() error](uint64(q.BufferSize))
	q.ctx, q.ctxCancel = context.WithCancel(context.Background())
	q.done = make(chan struct{})
}

// Start spawns the consumer goroutine.
func (q *Queue) Start() {
	q.running = true
	go q.run()
}

// Close stops the consumer and waits for it to exit.
func (q *Queue) Close() {
	q.ctxCancel()
	q.buffer.Close()

	if q.running {
		<-q.done
	}
}

// Push enqueues a write job. Returns false if the queue is full or closed,
// in which case the caller should treat this as backpressure: drop the
// packet rather than block.
func (q *Queue) Push(cb func() error) bool {
	return q.buffer.Push(cb)
}

func (q *Queue) run() {
	defer close(q.done)

	err := q.runInner()
	if err != nil && q.OnError != nil {
		q.OnError(q.ctx, err)
	}
}

func (q *Queue) runInner() error {
	for {
		cb, ok := q.buffer.Pull()
		if !ok {
			return nil
		}

		if err := cb(); err != nil {
			return err
		}
	}
}
