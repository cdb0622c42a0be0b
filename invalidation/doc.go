// Package invalidation consumes feed mutation events and evicts the cached
// pages they affect.
//
// A Listener pulls messages from a Source one at a time, decodes each into a
// FeedMutationEvent, resolves the affected query fingerprints (from the event
// or from a FeedIndex) and evicts them from the page cache. Every message is
// committed once handled, including malformed ones, which are parked in a
// DeadLetter instead. Cached pages carry a TTL, so an eviction that is lost
// after its retries only delays freshness until that TTL elapses.
//
// KafkaSource and KafkaPublisher bind the listener and the write path to
// Kafka with the feed id as partition key, which keeps the events of one
// feed ordered. RedisFeedIndex records which fingerprints serve a feed.
package invalidation
