// Package rediscache adapts the teacher's store/redis.RedisCheckpointStore
// idiom (client + key prefix + TTL) into an optional cache in front of
// DocumentStore.Search: hot-path excerpt search results are cached per
// (doc_id, needle) and invalidated on re-ingest. It is pluggable and off
// by default — the core's correctness never depends on Redis being
// reachable, only its hit rate.
package rediscache
