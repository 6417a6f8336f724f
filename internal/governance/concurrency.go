package governance

import "context"

// ConcurrencyLimiter caps how many jobs execute their pipeline at once.
// Jobs over the cap wait in Acquire, staying pending in the store, rather
// than being rejected at submission.
type ConcurrencyLimiter struct {
	slots chan struct{}
}

// NewConcurrencyLimiter creates a limiter admitting max concurrent holders.
// A non-positive max disables limiting.
func NewConcurrencyLimiter(max int) *ConcurrencyLimiter {
	if max <= 0 {
		return &ConcurrencyLimiter{}
	}
	return &ConcurrencyLimiter{slots: make(chan struct{}, max)}
}

// Acquire blocks until a slot is free or the context ends.
func (l *ConcurrencyLimiter) Acquire(ctx context.Context) error {
	if l.slots == nil {
		return nil
	}
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot acquired with Acquire.
func (l *ConcurrencyLimiter) Release() {
	if l.slots == nil {
		return
	}
	<-l.slots
}

// InUse reports the number of currently held slots.
func (l *ConcurrencyLimiter) InUse() int {
	if l.slots == nil {
		return 0
	}
	return len(l.slots)
}
