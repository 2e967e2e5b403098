package events

import (
	"context"
	"sync"
)

type deferredKey struct{}

type deferredQueue struct {
	mu  sync.Mutex
	fns []func(context.Context)
}

// WithDeferred returns a context that collects work registered through
// AfterCommit, and a flush function that runs it in registration order.
// The flush function is meant to be called once the transaction commits.
func WithDeferred(ctx context.Context) (context.Context, func(context.Context)) {
	q := &deferredQueue{}
	flush := func(ctx context.Context) {
		q.mu.Lock()
		fns := q.fns
		q.fns = nil
		q.mu.Unlock()

		for _, fn := range fns {
			fn(ctx)
		}
	}
	return context.WithValue(ctx, deferredKey{}, q), flush
}

// AfterCommit queues fn on ctx. Without a queue fn runs immediately.
func AfterCommit(ctx context.Context, fn func(context.Context)) {
	q, ok := ctx.Value(deferredKey{}).(*deferredQueue)
	if !ok {
		fn(ctx)
		return
	}

	q.mu.Lock()
	q.fns = append(q.fns, fn)
	q.mu.Unlock()
}
