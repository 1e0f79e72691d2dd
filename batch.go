package mycache

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// defaultBatchConcurrency bounds how many keys GetMulti fetches at
// once, mirroring the teacher's batch.go semaphore-bounded fan-out.
var defaultBatchConcurrency = 100

// GetMulti is a convenience batch-get built from repeated single-key
// Get calls fanned out with errgroup and a bounded semaphore channel.
// There is no batched wire request; each key still travels through the
// normal owner-resolution, single-flight, and cache path on its own.
func (g *Group) GetMulti(ctx context.Context, keys []string) (map[string][]byte, map[string]error) {
	values := make(map[string][]byte, len(keys))
	errs := make(map[string]error)
	if len(keys) == 0 {
		return values, errs
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, defaultBatchConcurrency)

	for _, key := range keys {
		key := key
		eg.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-egCtx.Done():
				mu.Lock()
				errs[key] = egCtx.Err()
				mu.Unlock()
				return nil
			}

			var buf []byte
			err := g.GetAsync(egCtx, key, AllocatingByteSliceSink(&buf), nil)

			mu.Lock()
			if err != nil {
				errs[key] = err
			} else {
				values[key] = buf
			}
			mu.Unlock()
			return nil
		})
	}

	eg.Wait()
	return values, errs
}
