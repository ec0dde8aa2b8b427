// Package inmemorystore provides an ephemeral, thread-safe, in-memory
// implementation of the runstore.Store interface.
//
// # Purpose
//
// This is the default record store for a single gridci process. Records and
// build counters live only as long as the process, which suits one-shot CLI
// runs and tests.
//
// # Concurrency Model
//
// Records are kept in a sync.Map keyed by "<job>#<build>". Jobs in a parallel
// group write disjoint keys, so LoadOrStore gives write-once semantics without
// a global lock. Build counters and the per-job index are guarded by a mutex
// because allocation must be strictly sequential per job.
//
// For history that outlives the process use redisstore or pgstore.
package inmemorystore
