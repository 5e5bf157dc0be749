package pipeline

import (
	"context"
	"sync"
)

// CancelToken is a shared cooperative-cancellation flag for one job.
// The transition is write-once; a token is never reset.
type CancelToken struct {
	once sync.Once
	done chan struct{}
}

// NewCancelToken creates an untriggered token.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel requests cancellation. Idempotent and safe to call concurrently.
func (t *CancelToken) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// Cancelled is a cheap non-blocking read of the flag.
func (t *CancelToken) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when cancellation is requested.
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}

// Bind derives a context that is cancelled when either the parent is
// cancelled or the token fires. Subprocess channels observe the derived
// context on every diagnostic line, which bounds the reaction latency to
// one diagnostic-event interval.
func (t *CancelToken) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-t.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
