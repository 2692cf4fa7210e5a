package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vishkrish200/spotify-organiser/internal/models"
	"github.com/vishkrish200/spotify-organiser/internal/shared"
)

// TrackRepository implements models.Repository[*models.PersistedTrack].
//
// Tracks are keyed on (service, service_id) so repeated ingests upsert
// rather than duplicate.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

const trackColumns = `id, sequence, service, service_id, title, artist, artist_ids, album, album_id, duration_ms, isrc, popularity, added_at, created_at, updated_at, deleted_at`

// Create inserts a new [models.PersistedTrack] into the database with generated ID and sequence
func (r *TrackRepository) Create(track *models.PersistedTrack) error {
	sequence, err := NextSequence(r.db, "tracks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	track.SetID(shared.GenerateID())
	track.SetSequence(sequence)

	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO tracks (id, sequence, service, service_id, title, artist, artist_ids, album, album_id, duration_ms, isrc, popularity, added_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		track.ID(),
		sequence,
		track.Service(),
		track.ServiceID(),
		track.Title(),
		track.Artist(),
		track.ArtistIDs(),
		track.Album(),
		track.AlbumID(),
		track.DurationMS(),
		track.ISRC(),
		track.Popularity(),
		track.AddedAt(),
		track.CreatedAt(),
		track.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}

	return nil
}

// Get retrieves a track by ID, excluding soft-deleted tracks
func (r *TrackRepository) Get(id string) (*models.PersistedTrack, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ? AND deleted_at IS NULL`
	return scanTrack(r.db.QueryRow(query, id))
}

// GetByServiceID retrieves a track by service and service_id
func (r *TrackRepository) GetByServiceID(service, serviceID string) (*models.PersistedTrack, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE service = ? AND service_id = ? AND deleted_at IS NULL`
	return scanTrack(r.db.QueryRow(query, service, serviceID))
}

// GetByISRC retrieves a track by ISRC code
func (r *TrackRepository) GetByISRC(isrc string) (*models.PersistedTrack, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE isrc = ? AND deleted_at IS NULL LIMIT 1`
	return scanTrack(r.db.QueryRow(query, isrc))
}

// Update modifies an existing track in the database
func (r *TrackRepository) Update(track *models.PersistedTrack) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	track.Touch()

	query := `
		UPDATE tracks
		SET title = ?, artist = ?, artist_ids = ?, album = ?, album_id = ?, duration_ms = ?, isrc = ?, popularity = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		track.Title(),
		track.Artist(),
		track.ArtistIDs(),
		track.Album(),
		track.AlbumID(),
		track.DurationMS(),
		track.ISRC(),
		track.Popularity(),
		track.UpdatedAt(),
		track.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("track not found or already deleted: %s", track.ID())
	}

	return nil
}

// Delete soft-deletes a track by ID
func (r *TrackRepository) Delete(id string) error {
	query := `UPDATE tracks SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("track not found or already deleted: %s", id)
	}

	return nil
}

// List retrieves all tracks matching the given criteria, excluding soft-deleted tracks
func (r *TrackRepository) List(criteria map[string]any) ([]*models.PersistedTrack, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE deleted_at IS NULL`
	args := []any{}

	if service, ok := criteria["service"].(string); ok && service != "" {
		query += " AND service = ?"
		args = append(args, service)
	}
	if isrc, ok := criteria["isrc"].(string); ok && isrc != "" {
		query += " AND isrc = ?"
		args = append(args, isrc)
	}
	if artistID, ok := criteria["artist_id"].(string); ok && artistID != "" {
		query += " AND artist_ids LIKE ?"
		args = append(args, "%"+artistID+"%")
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.PersistedTrack
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tracks, nil
}

// Count returns the number of live track rows.
func (r *TrackRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM tracks WHERE deleted_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return n, nil
}

// SaveBatch upserts a batch of saved tracks inside one transaction and
// returns the number of rows written. Existing rows keep their id, sequence,
// and created_at; metadata columns are refreshed.
func (r *TrackRepository) SaveBatch(service string, saved []models.SavedTrack) (int, error) {
	if len(saved) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO tracks (id, sequence, service, service_id, title, artist, artist_ids, album, album_id, duration_ms, isrc, popularity, added_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(service, service_id) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			artist_ids = excluded.artist_ids,
			album = excluded.album,
			album_id = excluded.album_id,
			duration_ms = excluded.duration_ms,
			isrc = excluded.isrc,
			popularity = excluded.popularity,
			added_at = excluded.added_at,
			updated_at = excluded.updated_at,
			deleted_at = NULL
	`

	stmt, err := tx.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, item := range saved {
		sequence, err := nextSequenceTx(tx, "tracks")
		if err != nil {
			return 0, err
		}

		track := models.NewPersistedTrack(sequence, service, item.Track, item.AddedAt)
		track.SetID(shared.GenerateID())
		if err := track.Validate(); err != nil {
			return 0, fmt.Errorf("validation failed for %s: %w", item.Track.ID, err)
		}

		if _, err := stmt.Exec(
			track.ID(),
			sequence,
			track.Service(),
			track.ServiceID(),
			track.Title(),
			track.Artist(),
			track.ArtistIDs(),
			track.Album(),
			track.AlbumID(),
			track.DurationMS(),
			track.ISRC(),
			track.Popularity(),
			track.AddedAt(),
			track.CreatedAt(),
			track.UpdatedAt(),
		); err != nil {
			return 0, fmt.Errorf("failed to upsert track %s: %w", track.ServiceID(), err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit batch: %w", err)
	}
	return written, nil
}

// scanTrack scans one row into a [models.PersistedTrack]. Accepts either
// *sql.Row or *sql.Rows through the rowScanner interface.
func scanTrack(row rowScanner) (*models.PersistedTrack, error) {
	var (
		id         string
		sequence   int
		service    string
		serviceID  string
		title      string
		artist     sql.NullString
		artistIDs  sql.NullString
		album      sql.NullString
		albumID    sql.NullString
		durationMS int
		isrc       sql.NullString
		popularity int
		addedAt    sql.NullTime
		createdAt  time.Time
		updatedAt  time.Time
		deletedAt  sql.NullTime
	)

	err := row.Scan(&id, &sequence, &service, &serviceID, &title, &artist, &artistIDs, &album, &albumID, &durationMS, &isrc, &popularity, &addedAt, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("track not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	track := &models.PersistedTrack{}
	var deleted *time.Time
	if deletedAt.Valid {
		deleted = &deletedAt.Time
	}
	track.Restore(id, sequence, createdAt, updatedAt, deleted)
	track.RestoreTrackFields(service, serviceID, title, artist.String, artistIDs.String, album.String, albumID.String, durationMS, isrc.String, popularity, addedAt.Time)

	return track, nil
}
