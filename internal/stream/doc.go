// Package stream composes a pull-based source, transform and batch stages,
// and a destination sink into a flow-controlled pipeline.
//
// Stages are connected by unbuffered channels, so a stage that cannot accept
// more input pauses upstream production until it is ready again; each such
// pause is counted as one backpressure event on the run's metrics.
//
// Transform stages apply a function per item, optionally through a
// read-through cache collaborator. A batch stage accumulates items to a
// configured size (flushing the remainder at stream end), consults a skip
// gate before invoking its handler, and may delegate oversized batches to
// bounded-concurrency execution. The batch stage, when present, is the last
// stage before the destination; nesting size-based accumulators on one data
// path is rejected at construction time so only a single flush policy is
// ever active.
//
// A run completes successfully only when the source is exhausted and every
// accumulated batch has flushed. Item and batch failures are dropped and
// counted when the pipeline is configured to continue on error; otherwise
// the first unrecoverable stage failure aborts the run and releases all
// in-flight work.
package stream
