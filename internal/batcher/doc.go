// Package batcher merges many individually requested Spotify lookups into few
// API-sized batch calls.
//
// The core type is [Batcher]. Callers enqueue (resource type, id) pairs with a
// fetch function and receive a [Ticket] that settles once the id's batch has
// been dispatched. Concurrent requests for the same pending id share one
// underlying settlement, so the fetch function is invoked at most once per id.
//
// Queues are keyed by (resource type, priority). A queue flushes immediately
// when it reaches the resource type's current optimal batch size or when the
// priority is high; otherwise a short debounce timer is re-armed on each
// arrival, capped by a maximum queue age.
//
// Batch sizes adapt to observed performance. The batcher keeps a rolling,
// time-windowed set of response samples per resource type: with at least five
// samples in the window, the optimal size shrinks by 30% when responses are
// slow or error-prone and grows by 20% when they are fast and clean, clamped
// between a floor of 10 and the resource type's ceiling.
//
// Dispatch chunks a queue into groups no larger than the optimal size and
// calls the fetch function one chunk at a time, paced by a rate limiter so a
// flush does not burst the remote rate limit. A failed chunk rejects only its
// own items; sibling chunks settle normally.
package batcher
