// Package store is the persistence collaborator of the pipeline. It defines
// the Store interface consumed by the bus, dispatcher, ingestor, and alert
// engine, with two implementations: a thread-safe in-memory store with TTL
// eviction of old metric points, and a PostgreSQL store backed by pgxpool.
package store
