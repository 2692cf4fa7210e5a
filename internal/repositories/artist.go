package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vishkrish200/spotify-organiser/internal/models"
	"github.com/vishkrish200/spotify-organiser/internal/shared"
)

// ArtistRepository implements models.Repository[*models.PersistedArtist].
type ArtistRepository struct {
	db *sql.DB
}

// NewArtistRepository creates a new ArtistRepository with the given database connection
func NewArtistRepository(db *sql.DB) *ArtistRepository {
	return &ArtistRepository{db: db}
}

const artistColumns = `id, sequence, service, service_id, name, genres, popularity, created_at, updated_at, deleted_at`

// Create inserts a new [models.PersistedArtist] with generated ID and sequence
func (r *ArtistRepository) Create(artist *models.PersistedArtist) error {
	sequence, err := NextSequence(r.db, "artists")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	artist.SetID(shared.GenerateID())
	artist.SetSequence(sequence)

	if err := artist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO artists (id, sequence, service, service_id, name, genres, popularity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		artist.ID(),
		sequence,
		artist.Service(),
		artist.ServiceID(),
		artist.Name(),
		artist.Genres(),
		artist.Popularity(),
		artist.CreatedAt(),
		artist.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert artist: %w", err)
	}

	return nil
}

// Get retrieves an artist by ID, excluding soft-deleted artists
func (r *ArtistRepository) Get(id string) (*models.PersistedArtist, error) {
	query := `SELECT ` + artistColumns + ` FROM artists WHERE id = ? AND deleted_at IS NULL`
	return scanArtist(r.db.QueryRow(query, id))
}

// GetByServiceID retrieves an artist by service and service_id
func (r *ArtistRepository) GetByServiceID(service, serviceID string) (*models.PersistedArtist, error) {
	query := `SELECT ` + artistColumns + ` FROM artists WHERE service = ? AND service_id = ? AND deleted_at IS NULL`
	return scanArtist(r.db.QueryRow(query, service, serviceID))
}

// Update modifies an existing artist in the database
func (r *ArtistRepository) Update(artist *models.PersistedArtist) error {
	if err := artist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	artist.Touch()

	query := `
		UPDATE artists
		SET name = ?, genres = ?, popularity = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, artist.Name(), artist.Genres(), artist.Popularity(), artist.UpdatedAt(), artist.ID())
	if err != nil {
		return fmt.Errorf("failed to update artist: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("artist not found or already deleted: %s", artist.ID())
	}

	return nil
}

// Delete soft-deletes an artist by ID
func (r *ArtistRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE artists SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete artist: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("artist not found or already deleted: %s", id)
	}

	return nil
}

// List retrieves all artists matching the given criteria
func (r *ArtistRepository) List(criteria map[string]any) ([]*models.PersistedArtist, error) {
	query := `SELECT ` + artistColumns + ` FROM artists WHERE deleted_at IS NULL`
	args := []any{}

	if service, ok := criteria["service"].(string); ok && service != "" {
		query += " AND service = ?"
		args = append(args, service)
	}
	if genre, ok := criteria["genre"].(string); ok && genre != "" {
		query += " AND genres LIKE ?"
		args = append(args, "%"+genre+"%")
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query artists: %w", err)
	}
	defer rows.Close()

	var artists []*models.PersistedArtist
	for rows.Next() {
		artist, err := scanArtist(rows)
		if err != nil {
			return nil, err
		}
		artists = append(artists, artist)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return artists, nil
}

// SaveBatch upserts enriched artists inside one transaction and returns the
// number of rows written.
func (r *ArtistRepository) SaveBatch(service string, artists []models.Artist) (int, error) {
	if len(artists) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO artists (id, sequence, service, service_id, name, genres, popularity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(service, service_id) DO UPDATE SET
			name = excluded.name,
			genres = excluded.genres,
			popularity = excluded.popularity,
			updated_at = excluded.updated_at,
			deleted_at = NULL
	`

	stmt, err := tx.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, dto := range artists {
		sequence, err := nextSequenceTx(tx, "artists")
		if err != nil {
			return 0, err
		}

		artist := models.NewPersistedArtist(sequence, service, dto)
		artist.SetID(shared.GenerateID())
		if err := artist.Validate(); err != nil {
			return 0, fmt.Errorf("validation failed for %s: %w", dto.ID, err)
		}

		if _, err := stmt.Exec(
			artist.ID(),
			sequence,
			artist.Service(),
			artist.ServiceID(),
			artist.Name(),
			artist.Genres(),
			artist.Popularity(),
			artist.CreatedAt(),
			artist.UpdatedAt(),
		); err != nil {
			return 0, fmt.Errorf("failed to upsert artist %s: %w", artist.ServiceID(), err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit batch: %w", err)
	}
	return written, nil
}

func scanArtist(row rowScanner) (*models.PersistedArtist, error) {
	var (
		id         string
		sequence   int
		service    string
		serviceID  string
		name       string
		genres     sql.NullString
		popularity int
		createdAt  time.Time
		updatedAt  time.Time
		deletedAt  sql.NullTime
	)

	err := row.Scan(&id, &sequence, &service, &serviceID, &name, &genres, &popularity, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artist not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan artist: %w", err)
	}

	artist := &models.PersistedArtist{}
	var deleted *time.Time
	if deletedAt.Valid {
		deleted = &deletedAt.Time
	}
	artist.Restore(id, sequence, createdAt, updatedAt, deleted)
	artist.RestoreArtistFields(service, serviceID, name, genres.String, popularity)

	return artist, nil
}
