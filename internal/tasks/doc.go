// Package tasks implements the library ingestion workflow.
//
// The core abstraction is [IngestEngine], which orchestrates one full
// ingest: admission through the skip gate, a streaming pipeline from the
// saved-tracks source through normalization into batched persistence, and
// artist/album enrichment through the request batcher under the worker
// coordinator. Operations emit progress updates via channels for
// non-blocking status reporting to the CLI layer.
//
// # Admission
//
// Before any remote call, the engine evaluates the skip gate: a completed
// run newer than the configured minimum interval skips the whole ingest
// unless forced. The decision and its estimated saving are reported on the
// returned summary.
//
// # Enrichment
//
// Each pipeline batch hands its distinct artist and album ids, plus its
// track ids for audio-features lookup when a feature repository is wired, to
// the request batcher as high-priority manual batches. Ids with a live
// metadata cache entry are not refetched. The enrichment waits run
// concurrently under the coordinator's bounded executor.
package tasks
