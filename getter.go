package mycache

import "context"

// Getter loads the value for a key not present in any cache level. It is
// the "origin loader" capability of spec.md §6: key uniquely identifies
// its output; Get writes to dest but must not close it; it may set
// cc.NoStore to prevent storage of the result, and it must honor ctx
// cancellation.
type Getter interface {
	Get(ctx context.Context, key string, dest Sink, cc *CacheControl) error
}

// GetterFunc adapts a plain function to Getter.
type GetterFunc func(ctx context.Context, key string, dest Sink, cc *CacheControl) error

// Get implements Getter.
func (f GetterFunc) Get(ctx context.Context, key string, dest Sink, cc *CacheControl) error {
	return f(ctx, key, dest, cc)
}
