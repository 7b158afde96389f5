package module

import (
	"context"
	"sync"
)

// Completion carries the result of an asynchronous handler.
type Completion struct {
	mu     sync.Mutex
	chunks []any
	err    error
	ended  bool
	done   chan struct{}
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Data delivers a chunk of the response. Calls after End are ignored.
func (c *Completion) Data(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.chunks = append(c.chunks, v)
}

// End finishes the response.
func (c *Completion) End() {
	c.finish(nil)
}

// Fail finishes the response with an error.
func (c *Completion) Fail(err error) {
	c.finish(err)
}

func (c *Completion) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.err = err
	c.ended = true
	close(c.done)
}

// Done is closed once End or Fail has been called.
func (c *Completion) Done() <-chan struct{} { return c.done }

// Wait blocks until the completion ends or ctx is cancelled. A single chunk
// is returned as is, several chunks as a slice, none as nil.
func (c *Completion) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	switch len(c.chunks) {
	case 0:
		return nil, nil
	case 1:
		return c.chunks[0], nil
	}
	out := make([]any, len(c.chunks))
	copy(out, c.chunks)
	return out, nil
}
