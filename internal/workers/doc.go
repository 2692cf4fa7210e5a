// Package workers runs ingest work under two concurrency models.
//
// CPU-bound chunk work runs on a pool of long-lived worker goroutines that
// communicate purely by message passing: a chunk is sent on a worker's request
// channel and the outcome comes back on a per-request reply channel. Workers
// are created lazily up to the pool limit and retired on fault or idle
// timeout; a free-list channel acts as the wait queue when the pool is
// saturated.
//
// I/O-bound work runs as plain goroutines bounded by a weighted semaphore,
// with per-item retries and exponential backoff.
//
// [Coordinator.RunMixed] combines both tracks and an optional sequential
// follow-up phase.
//
// Failure semantics throughout: a failed item or chunk never aborts the
// surrounding call. Failures are retried while budget remains and then
// recorded in the returned results; only configuration errors propagate to
// the caller. Timeouts mean "stop waiting", not "force-stop" - a timed-out
// worker stays off the free list until it actually finishes its chunk.
package workers
