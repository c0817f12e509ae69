/*
Package cache provides the multi-tier adaptive cache that backs the
coding-standard rule services: a bounded in-memory LRU tier, an optional
disk-backed persistent tier, and an SLA-aware orchestrator on top.

# Architecture

Callers talk to the orchestrator; the tiers never talk to each other:

	┌─────────────────────────────────────────────┐
	│              Rule Services                  │
	│      (registry, search, hot-reload)         │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│            TieredCache                      │  ← This Package
	│   read-through promotion, write-through,    │
	│   SLA checks, warmup, origin tracking       │
	└─────────────────────────────────────────────┘
	          │                       │
	┌───────────────────┐   ┌───────────────────────┐
	│   MemoryCache     │   │   PersistentCache     │
	│ LRU + TTL expiry  │   │ disk files + gzip +   │
	│ pressure eviction │   │ JSON index, optional  │
	└───────────────────┘   └───────────────────────┘

# Read path

Get checks the memory tier first. On a memory miss the persistent tier
is queried (concurrent loads for the same key are collapsed via
singleflight) and a hit is promoted into the memory tier with the
configured memory TTL. A promotion staged while a concurrent Delete
removed the key is detected through a tombstone generation counter and
discarded, so deletes are never resurrected.

A degraded persistent tier never fails a read: its errors are logged
and treated as misses, silently reducing the cache to memory-only
operation. The drop in hit rate is visible through the statistics
engine, not through returned errors.

# Observability

Every operation outcome is reported as a CacheEvent to the configured
sinks (the stats engine and the Prometheus collector). Sinks are pure
observers; they never block or mutate cache state. SLA violations are
recorded against the configured performance targets with severity
graded by how far the measured value overshot its target.

# Lifecycle

Both tiers own their periodic sweep goroutines, started on construction
and stopped by Destroy/Close. Destroy is idempotent and safe to call at
any time; reads after Destroy return misses.
*/
package cache
