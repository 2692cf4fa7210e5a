package models

import (
	"fmt"
	"strings"
	"time"
)

// base carries the lifecycle fields shared by all persistent entities.
type base struct {
	id        string
	sequence  int
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

func (b *base) ID() string           { return b.id }
func (b *base) Sequence() int        { return b.sequence }
func (b *base) CreatedAt() time.Time { return b.createdAt }
func (b *base) UpdatedAt() time.Time { return b.updatedAt }
func (b *base) DeletedAt() *time.Time { return b.deletedAt }

// SetID assigns the entity ID. Repositories call this with a generated UUID on Create.
func (b *base) SetID(id string) { b.id = id }

// SetSequence assigns the human-readable sequence number.
func (b *base) SetSequence(seq int) { b.sequence = seq }

// Touch updates the updatedAt timestamp to now.
func (b *base) Touch() { b.updatedAt = time.Now() }

// MarkDeleted records a soft delete timestamp.
func (b *base) MarkDeleted(at time.Time) { b.deletedAt = &at }

// Restore hydrates lifecycle fields from database columns.
func (b *base) Restore(id string, sequence int, createdAt, updatedAt time.Time, deletedAt *time.Time) {
	b.id = id
	b.sequence = sequence
	b.createdAt = createdAt
	b.updatedAt = updatedAt
	b.deletedAt = deletedAt
}

// PersistedTrack is a library track stored in the database.
//
// The (service, serviceID) pair is unique and drives ingest deduplication.
type PersistedTrack struct {
	base
	service    string
	serviceID  string
	title      string
	artist     string
	artistIDs  string // comma-joined service IDs
	album      string
	albumID    string
	durationMS int
	isrc       string
	popularity int
	addedAt    time.Time
}

// NewPersistedTrack creates a PersistedTrack from a service DTO.
func NewPersistedTrack(sequence int, service string, track Track, addedAt time.Time) *PersistedTrack {
	now := time.Now()
	return &PersistedTrack{
		base:       base{sequence: sequence, createdAt: now, updatedAt: now},
		service:    service,
		serviceID:  track.ID,
		title:      track.Title,
		artist:     track.Artist,
		artistIDs:  strings.Join(track.ArtistIDs, ","),
		album:      track.Album,
		albumID:    track.AlbumID,
		durationMS: track.DurationMS,
		isrc:       track.ISRC,
		popularity: track.Popularity,
		addedAt:    addedAt,
	}
}

func (t *PersistedTrack) Service() string    { return t.service }
func (t *PersistedTrack) ServiceID() string  { return t.serviceID }
func (t *PersistedTrack) Title() string      { return t.title }
func (t *PersistedTrack) Artist() string     { return t.artist }
func (t *PersistedTrack) ArtistIDs() string  { return t.artistIDs }
func (t *PersistedTrack) Album() string      { return t.album }
func (t *PersistedTrack) AlbumID() string    { return t.albumID }
func (t *PersistedTrack) DurationMS() int    { return t.durationMS }
func (t *PersistedTrack) ISRC() string       { return t.isrc }
func (t *PersistedTrack) Popularity() int    { return t.popularity }
func (t *PersistedTrack) AddedAt() time.Time { return t.addedAt }

// Validate checks required fields before persistence.
func (t *PersistedTrack) Validate() error {
	if t.id == "" {
		return fmt.Errorf("track id is required")
	}
	if t.service == "" {
		return fmt.Errorf("track service is required")
	}
	if t.serviceID == "" {
		return fmt.Errorf("track service_id is required")
	}
	if t.title == "" {
		return fmt.Errorf("track title is required")
	}
	return nil
}

// RestoreTrackFields hydrates domain fields from database columns.
func (t *PersistedTrack) RestoreTrackFields(service, serviceID, title, artist, artistIDs, album, albumID string, durationMS int, isrc string, popularity int, addedAt time.Time) {
	t.service = service
	t.serviceID = serviceID
	t.title = title
	t.artist = artist
	t.artistIDs = artistIDs
	t.album = album
	t.albumID = albumID
	t.durationMS = durationMS
	t.isrc = isrc
	t.popularity = popularity
	t.addedAt = addedAt
}

// PersistedArtist is enriched artist metadata stored in the database.
// Genre tags are the primary grouping signal for generated playlists.
type PersistedArtist struct {
	base
	service    string
	serviceID  string
	name       string
	genres     string // comma-joined genre tags
	popularity int
}

// NewPersistedArtist creates a PersistedArtist from a service DTO.
func NewPersistedArtist(sequence int, service string, artist Artist) *PersistedArtist {
	now := time.Now()
	return &PersistedArtist{
		base:       base{sequence: sequence, createdAt: now, updatedAt: now},
		service:    service,
		serviceID:  artist.ID,
		name:       artist.Name,
		genres:     strings.Join(artist.Genres, ","),
		popularity: artist.Popularity,
	}
}

func (a *PersistedArtist) Service() string   { return a.service }
func (a *PersistedArtist) ServiceID() string { return a.serviceID }
func (a *PersistedArtist) Name() string      { return a.name }
func (a *PersistedArtist) Genres() string    { return a.genres }
func (a *PersistedArtist) Popularity() int   { return a.popularity }

// GenreList splits the stored genre tags into a slice.
func (a *PersistedArtist) GenreList() []string {
	if a.genres == "" {
		return nil
	}
	return strings.Split(a.genres, ",")
}

func (a *PersistedArtist) Validate() error {
	if a.id == "" {
		return fmt.Errorf("artist id is required")
	}
	if a.serviceID == "" {
		return fmt.Errorf("artist service_id is required")
	}
	if a.name == "" {
		return fmt.Errorf("artist name is required")
	}
	return nil
}

// RestoreArtistFields hydrates domain fields from database columns.
func (a *PersistedArtist) RestoreArtistFields(service, serviceID, name, genres string, popularity int) {
	a.service = service
	a.serviceID = serviceID
	a.name = name
	a.genres = genres
	a.popularity = popularity
}

// PersistedAlbum is enriched album metadata stored in the database.
type PersistedAlbum struct {
	base
	service     string
	serviceID   string
	name        string
	artist      string
	releaseDate string
	totalTracks int
}

// NewPersistedAlbum creates a PersistedAlbum from a service DTO.
func NewPersistedAlbum(sequence int, service string, album Album) *PersistedAlbum {
	now := time.Now()
	return &PersistedAlbum{
		base:        base{sequence: sequence, createdAt: now, updatedAt: now},
		service:     service,
		serviceID:   album.ID,
		name:        album.Name,
		artist:      album.Artist,
		releaseDate: album.ReleaseDate,
		totalTracks: album.TotalTracks,
	}
}

func (a *PersistedAlbum) Service() string     { return a.service }
func (a *PersistedAlbum) ServiceID() string   { return a.serviceID }
func (a *PersistedAlbum) Name() string        { return a.name }
func (a *PersistedAlbum) Artist() string      { return a.artist }
func (a *PersistedAlbum) ReleaseDate() string { return a.releaseDate }
func (a *PersistedAlbum) TotalTracks() int    { return a.totalTracks }

func (a *PersistedAlbum) Validate() error {
	if a.id == "" {
		return fmt.Errorf("album id is required")
	}
	if a.serviceID == "" {
		return fmt.Errorf("album service_id is required")
	}
	if a.name == "" {
		return fmt.Errorf("album name is required")
	}
	return nil
}

// RestoreAlbumFields hydrates domain fields from database columns.
func (a *PersistedAlbum) RestoreAlbumFields(service, serviceID, name, artist, releaseDate string, totalTracks int) {
	a.service = service
	a.serviceID = serviceID
	a.name = name
	a.artist = artist
	a.releaseDate = releaseDate
	a.totalTracks = totalTracks
}

// IngestRun records one ingestion execution and its final counters.
type IngestRun struct {
	base
	startedAt          time.Time
	finishedAt         *time.Time
	status             string
	itemsProcessed     int
	itemsDropped       int
	errorCount         int
	backpressureEvents int
}

// Ingest run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// NewIngestRun creates a running IngestRun starting now.
func NewIngestRun(sequence int) *IngestRun {
	now := time.Now()
	return &IngestRun{
		base:      base{sequence: sequence, createdAt: now, updatedAt: now},
		startedAt: now,
		status:    RunStatusRunning,
	}
}

func (r *IngestRun) StartedAt() time.Time    { return r.startedAt }
func (r *IngestRun) FinishedAt() *time.Time  { return r.finishedAt }
func (r *IngestRun) Status() string          { return r.status }
func (r *IngestRun) ItemsProcessed() int     { return r.itemsProcessed }
func (r *IngestRun) ItemsDropped() int       { return r.itemsDropped }
func (r *IngestRun) ErrorCount() int         { return r.errorCount }
func (r *IngestRun) BackpressureEvents() int { return r.backpressureEvents }

// Finish records the terminal status and counters for the run.
func (r *IngestRun) Finish(status string, processed, dropped, errs, backpressure int) {
	now := time.Now()
	r.finishedAt = &now
	r.status = status
	r.itemsProcessed = processed
	r.itemsDropped = dropped
	r.errorCount = errs
	r.backpressureEvents = backpressure
	r.Touch()
}

func (r *IngestRun) Validate() error {
	if r.id == "" {
		return fmt.Errorf("run id is required")
	}
	switch r.status {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed:
	default:
		return fmt.Errorf("invalid run status %q", r.status)
	}
	return nil
}

// RestoreRunFields hydrates domain fields from database columns.
func (r *IngestRun) RestoreRunFields(startedAt time.Time, finishedAt *time.Time, status string, processed, dropped, errs, backpressure int) {
	r.startedAt = startedAt
	r.finishedAt = finishedAt
	r.status = status
	r.itemsProcessed = processed
	r.itemsDropped = dropped
	r.errorCount = errs
	r.backpressureEvents = backpressure
}
