package mycache

// CacheControl carries per-request caching directives between an origin
// loader and the cache layers above it (spec.md §4.5/§4.6/§6). A nil
// CacheControl anywhere in the pipeline is equivalent to a fresh zero
// value (noStore == false).
type CacheControl struct {
	// NoStore, when set by the origin loader during a fill, tells the
	// memory and disk caches not to retain the value; the caller of
	// GetAsync still receives it. It also propagates outward across the
	// wire protocol via the Cache-Control: no-store response header.
	NoStore bool
}

func defaultCacheControl(cc *CacheControl) *CacheControl {
	if cc == nil {
		return &CacheControl{}
	}
	return cc
}
