// Package memory provides a bounded in-process crawl queue.
package memory

import (
	"context"

	"github.com/sitebrain/sitebrain/internal/core"
)

// Queue is a channel-backed queue. Enqueue blocks once the buffer is full,
// which applies backpressure to the dispatcher instead of dropping work.
type Queue struct {
	ch chan core.CrawlRequest
}

func New(depth int) *Queue {
	if depth <= 0 {
		depth = 128
	}
	return &Queue{ch: make(chan core.CrawlRequest, depth)}
}

func (q *Queue) Enqueue(ctx context.Context, req core.CrawlRequest) error {
	select {
	case q.ch <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Dequeue(ctx context.Context) (core.CrawlRequest, error) {
	select {
	case req := <-q.ch:
		return req, nil
	case <-ctx.Done():
		return core.CrawlRequest{}, ctx.Err()
	}
}

// Len reports the number of queued requests.
func (q *Queue) Len() int {
	return len(q.ch)
}
