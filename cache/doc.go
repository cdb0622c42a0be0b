// Package cache provides the Page Cache contract and its default stores.
//
// # Overview
//
// A page is cached under the key
//
//	<fingerprint>:<token>
//
// where fingerprint identifies the logical query and token identifies the
// position inside it (the cursor token, or FirstPageToken / LastPageToken for
// a request without a cursor). Values are opaque byte slices wrapped in an
// Entry envelope that records when they were stored and for how long they are
// valid. Every read checks the envelope against the clock, so a page is never
// served after its TTL even if the backend has not expired it yet.
//
// # Basic Usage
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store, runner, err := cache.NewStore(client, cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	if runner != nil {
//		go runner.Run(ctx)
//	}
//
//	payload, err := store.Get(ctx, fp, cache.FirstPageToken)
//	switch {
//	case errors.Is(err, cache.ErrMiss):
//		// fetch and Put
//	case errors.Is(err, cache.ErrCacheUnavailable):
//		// bypass the cache
//	}
//
// # Eviction
//
// Evict removes every page of one fingerprint. The Redis store keeps a
// secondary index set per fingerprint, so eviction costs one SMEMBERS and
// one DEL per cached page. EvictAll walks the registry of known fingerprints.
//
// # Tiers
//
// Setting Config.Local puts an in-process sturdyc tier in front of Redis.
// With Config.BroadcastChannel set, evictions are also published over Redis
// pub/sub and every peer drops the fingerprint from its own in-process tier.
//
// # Error Handling
//
// All backend failures wrap ErrCacheUnavailable. Entries that cannot be
// decoded are reported as ErrMiss and overwritten by the next Put.
package cache
