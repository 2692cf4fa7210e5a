package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vishkrish200/spotify-organiser/internal/models"
)

// FeatureRepository stores per-track audio analysis summaries. Features are a
// derived view keyed by (service, track id), so rows carry no generated ID,
// sequence, or soft-delete marker.
type FeatureRepository struct {
	db *sql.DB
}

// NewFeatureRepository creates a new FeatureRepository with the given database connection
func NewFeatureRepository(db *sql.DB) *FeatureRepository {
	return &FeatureRepository{db: db}
}

// Get retrieves the audio features for one track.
func (r *FeatureRepository) Get(service, trackID string) (*models.AudioFeatures, error) {
	query := `
		SELECT track_id, danceability, energy, valence, tempo, acousticness, instrumentalness
		FROM audio_features WHERE service = ? AND track_id = ?
	`

	var f models.AudioFeatures
	err := r.db.QueryRow(query, service, trackID).Scan(
		&f.TrackID,
		&f.Danceability,
		&f.Energy,
		&f.Valence,
		&f.Tempo,
		&f.Acousticness,
		&f.Instrumentalness,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("audio features not found for track %s", trackID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan audio features: %w", err)
	}

	return &f, nil
}

// Count returns the number of tracks with stored features.
func (r *FeatureRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM audio_features`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audio features: %w", err)
	}
	return count, nil
}

// SaveBatch upserts feature rows inside one transaction and returns the
// number of rows written.
func (r *FeatureRepository) SaveBatch(service string, features []models.AudioFeatures) (int, error) {
	if len(features) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO audio_features (service, track_id, danceability, energy, valence, tempo, acousticness, instrumentalness, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(service, track_id) DO UPDATE SET
			danceability = excluded.danceability,
			energy = excluded.energy,
			valence = excluded.valence,
			tempo = excluded.tempo,
			acousticness = excluded.acousticness,
			instrumentalness = excluded.instrumentalness,
			updated_at = excluded.updated_at
	`

	stmt, err := tx.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	written := 0
	for _, f := range features {
		if f.TrackID == "" {
			return 0, fmt.Errorf("audio features without track id")
		}
		if _, err := stmt.Exec(
			service,
			f.TrackID,
			f.Danceability,
			f.Energy,
			f.Valence,
			f.Tempo,
			f.Acousticness,
			f.Instrumentalness,
			now,
			now,
		); err != nil {
			return 0, fmt.Errorf("failed to upsert features for %s: %w", f.TrackID, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit batch: %w", err)
	}
	return written, nil
}
