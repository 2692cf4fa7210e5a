// package models defines the data model for the library organiser service
package models

import (
	"time"
)

// Model defines the base interface for all persistent models in the organiser service.
// Implementations include PersistedTrack, PersistedArtist, IngestRun, etc.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// Track represents a song fetched from the remote service.
type Track struct {
	ID         string   // Service-assigned track ID
	Title      string   // Track title
	Artist     string   // Primary artist name
	ArtistIDs  []string // Service IDs of all credited artists
	Album      string   // Album name
	AlbumID    string   // Service ID of the album
	DurationMS int      // Duration in milliseconds
	ISRC       string   // International Standard Recording Code
	Popularity int      // Service popularity score 0-100
}

// Artist represents an artist fetched from the remote service.
type Artist struct {
	ID         string   // Service-assigned artist ID
	Name       string   // Artist name
	Genres     []string // Genre tags used for library grouping
	Popularity int      // Service popularity score 0-100
}

// Album represents an album fetched from the remote service.
type Album struct {
	ID          string // Service-assigned album ID
	Name        string // Album name
	Artist      string // Primary artist name
	ReleaseDate string // Release date as reported by the service
	TotalTracks int    // Track count on the album
}

// SavedTrack pairs a library track with the time the user saved it.
type SavedTrack struct {
	Track   Track
	AddedAt time.Time
}

// AudioFeatures holds the audio analysis summary for a track.
type AudioFeatures struct {
	TrackID          string  // Service-assigned track ID
	Danceability     float64 // 0.0 to 1.0
	Energy           float64 // 0.0 to 1.0
	Valence          float64 // Musical positiveness, 0.0 to 1.0
	Tempo            float64 // Estimated tempo in BPM
	Acousticness     float64 // 0.0 to 1.0
	Instrumentalness float64 // 0.0 to 1.0
}
