// Package repositories provides the persistence layer for ingested library
// data.
//
// Each repository implements models.Repository[T] for a specific entity
// type, handling CRUD operations, soft deletes, and sequence generation.
// The batch repositories additionally expose SaveBatch, an upsert keyed on
// (service, service_id) that serves as the pipeline's persistence sink.
//
// MetadataCache is a TTL'd read-through cache over the metadata_cache table,
// used by pipeline transform stages to avoid refetching remote metadata.
package repositories
