package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vishkrish200/spotify-organiser/internal/models"
	"github.com/vishkrish200/spotify-organiser/internal/shared"
)

// AlbumRepository implements models.Repository[*models.PersistedAlbum].
type AlbumRepository struct {
	db *sql.DB
}

// NewAlbumRepository creates a new AlbumRepository with the given database connection
func NewAlbumRepository(db *sql.DB) *AlbumRepository {
	return &AlbumRepository{db: db}
}

const albumColumns = `id, sequence, service, service_id, name, artist, release_date, total_tracks, created_at, updated_at, deleted_at`

// Create inserts a new [models.PersistedAlbum] with generated ID and sequence
func (r *AlbumRepository) Create(album *models.PersistedAlbum) error {
	sequence, err := NextSequence(r.db, "albums")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	album.SetID(shared.GenerateID())
	album.SetSequence(sequence)

	if err := album.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO albums (id, sequence, service, service_id, name, artist, release_date, total_tracks, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		album.ID(),
		sequence,
		album.Service(),
		album.ServiceID(),
		album.Name(),
		album.Artist(),
		album.ReleaseDate(),
		album.TotalTracks(),
		album.CreatedAt(),
		album.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert album: %w", err)
	}

	return nil
}

// Get retrieves an album by ID, excluding soft-deleted albums
func (r *AlbumRepository) Get(id string) (*models.PersistedAlbum, error) {
	query := `SELECT ` + albumColumns + ` FROM albums WHERE id = ? AND deleted_at IS NULL`
	return scanAlbum(r.db.QueryRow(query, id))
}

// GetByServiceID retrieves an album by service and service_id
func (r *AlbumRepository) GetByServiceID(service, serviceID string) (*models.PersistedAlbum, error) {
	query := `SELECT ` + albumColumns + ` FROM albums WHERE service = ? AND service_id = ? AND deleted_at IS NULL`
	return scanAlbum(r.db.QueryRow(query, service, serviceID))
}

// Update modifies an existing album in the database
func (r *AlbumRepository) Update(album *models.PersistedAlbum) error {
	if err := album.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	album.Touch()

	query := `
		UPDATE albums
		SET name = ?, artist = ?, release_date = ?, total_tracks = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, album.Name(), album.Artist(), album.ReleaseDate(), album.TotalTracks(), album.UpdatedAt(), album.ID())
	if err != nil {
		return fmt.Errorf("failed to update album: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("album not found or already deleted: %s", album.ID())
	}

	return nil
}

// Delete soft-deletes an album by ID
func (r *AlbumRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE albums SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete album: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("album not found or already deleted: %s", id)
	}

	return nil
}

// List retrieves all albums matching the given criteria
func (r *AlbumRepository) List(criteria map[string]any) ([]*models.PersistedAlbum, error) {
	query := `SELECT ` + albumColumns + ` FROM albums WHERE deleted_at IS NULL`
	args := []any{}

	if service, ok := criteria["service"].(string); ok && service != "" {
		query += " AND service = ?"
		args = append(args, service)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query albums: %w", err)
	}
	defer rows.Close()

	var albums []*models.PersistedAlbum
	for rows.Next() {
		album, err := scanAlbum(rows)
		if err != nil {
			return nil, err
		}
		albums = append(albums, album)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return albums, nil
}

// SaveBatch upserts albums inside one transaction and returns the number of
// rows written.
func (r *AlbumRepository) SaveBatch(service string, albums []models.Album) (int, error) {
	if len(albums) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO albums (id, sequence, service, service_id, name, artist, release_date, total_tracks, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(service, service_id) DO UPDATE SET
			name = excluded.name,
			artist = excluded.artist,
			release_date = excluded.release_date,
			total_tracks = excluded.total_tracks,
			updated_at = excluded.updated_at,
			deleted_at = NULL
	`

	stmt, err := tx.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, dto := range albums {
		sequence, err := nextSequenceTx(tx, "albums")
		if err != nil {
			return 0, err
		}

		album := models.NewPersistedAlbum(sequence, service, dto)
		album.SetID(shared.GenerateID())
		if err := album.Validate(); err != nil {
			return 0, fmt.Errorf("validation failed for %s: %w", dto.ID, err)
		}

		if _, err := stmt.Exec(
			album.ID(),
			sequence,
			album.Service(),
			album.ServiceID(),
			album.Name(),
			album.Artist(),
			album.ReleaseDate(),
			album.TotalTracks(),
			album.CreatedAt(),
			album.UpdatedAt(),
		); err != nil {
			return 0, fmt.Errorf("failed to upsert album %s: %w", album.ServiceID(), err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit batch: %w", err)
	}
	return written, nil
}

func scanAlbum(row rowScanner) (*models.PersistedAlbum, error) {
	var (
		id          string
		sequence    int
		service     string
		serviceID   string
		name        string
		artist      sql.NullString
		releaseDate sql.NullString
		totalTracks int
		createdAt   time.Time
		updatedAt   time.Time
		deletedAt   sql.NullTime
	)

	err := row.Scan(&id, &sequence, &service, &serviceID, &name, &artist, &releaseDate, &totalTracks, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("album not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan album: %w", err)
	}

	album := &models.PersistedAlbum{}
	var deleted *time.Time
	if deletedAt.Valid {
		deleted = &deletedAt.Time
	}
	album.Restore(id, sequence, createdAt, updatedAt, deleted)
	album.RestoreAlbumFields(service, serviceID, name, artist.String, releaseDate.String, totalTracks)

	return album, nil
}
