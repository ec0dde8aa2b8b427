// Package runstore defines where job executions are recorded.
//
// A Store hands out build numbers, keeps the write-once RunResult of every
// execution, and applies a job's retention policy. Implementations live in
// their own packages: inmemorystore, redisstore and pgstore.
package runstore
