// Package skip decides, without any I/O, whether a unit of ingest work can be
// omitted.
//
// The core type is [Gate]. Every check is synchronous and side-effect-free
// beyond the gate's own bookkeeping: checks consult cached values, timestamps,
// dependency states, and process memory that callers pass in or that the gate
// recorded on earlier calls. A check returns a [Decision], never an error.
//
// Checks can be invoked individually or combined through [Gate.Evaluate],
// which runs whichever conditions are present in a fixed order (cache, batch,
// time, dependency, resource) and returns the first skip verdict.
//
// Batch and dependency change detection uses a structural fingerprint (item
// count plus a sample of the first and last items) rather than a content
// hash. Two batches of equal length that agree on their boundary items are
// considered unchanged even if interior items differ. This is a deliberate,
// known limitation: the fingerprint is a cheap heuristic, not a correctness
// guarantee.
package skip
