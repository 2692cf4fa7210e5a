// Package services implements the Spotify Web API client used by the
// ingestion subsystem.
//
// # Client
//
// [Client] wraps an OAuth2-authenticated HTTP client with rate limiting.
// Token refresh is handled by [oauth2.TokenSource]; request pacing by
// [rate.Limiter]. Every non-2xx response is classified into the shared
// error taxonomy via shared.ClassifyStatus, so callers can retry on
// [shared.ErrTransientRemote] and fail fast on [shared.ErrPermanentRemote].
//
// # Batch Endpoints
//
// The batch fetchers (TracksBatch, ArtistsBatch, AlbumsBatch,
// AudioFeaturesBatch) accept up to the per-resource endpoint ceiling and
// return results aligned to the requested ID order, with nil slots for IDs
// the service does not know. They satisfy the batcher's FetchFunc shape.
//
// # Library Source
//
// [LibrarySource] streams the authenticated user's saved tracks page by
// page, pulling the next page lazily as the pipeline drains the current one.
package services
