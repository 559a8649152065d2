// Package cache provides the in-process store behind the registry's
// cache-aside reads.
//
// Reads check the cache first and fill it on a miss. Writers delete the
// affected keys after their transaction commits and before returning, so a
// reader can only observe a stale entry between commit and invalidation.
//
// The LRU backend is bounded by entry count. Noop satisfies the same
// interface when caching is disabled in config.
package cache
