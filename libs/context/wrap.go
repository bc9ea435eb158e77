package context

import "context"

// valueFallback pairs a fresh context with an older one, serving values from
// either. Approach from github.com/posener/ctxutil.
type valueFallback struct {
	context.Context
	fallback context.Context
}

func (c *valueFallback) Value(k interface{}) interface{} {
	if v := c.Context.Value(k); v != nil {
		return v
	}
	return c.fallback.Value(k)
}

// Wrap returns a context that takes cancellation and deadline from next while
// still resolving values stored on wrapped.
func Wrap(wrapped, next context.Context) context.Context {
	return &valueFallback{Context: next, fallback: wrapped}
}
