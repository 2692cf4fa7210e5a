// Package models defines domain entities and persistence interfaces for the
// spotify-organiser ingestion service.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs representing Spotify data
//   - [Track] : Song metadata with ISRC and artist/album references
//   - [Artist] : Artist metadata with genres for playlist grouping
//   - [Album] : Album metadata
//   - [SavedTrack] : A library entry pairing a track with its added-at timestamp
//
// 2. Persistent Entities: Database-backed models with full lifecycle management
//   - [PersistedTrack] : Ingested tracks with service IDs for dedup
//   - [PersistedArtist] : Enriched artist metadata (genres drive organisation)
//   - [PersistedAlbum] : Enriched album metadata
//   - [IngestRun] : One ingestion execution with its final counters
//
// All persistent entities implement the Model interface providing ID generation,
// timestamps, validation, and soft delete support. The Repository[T] interface
// defines standard CRUD operations for database access.
package models
