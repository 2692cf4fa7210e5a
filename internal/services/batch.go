package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/vishkrish200/spotify-organiser/internal/models"
	"github.com/vishkrish200/spotify-organiser/internal/shared"
)

// Per-endpoint ID ceilings imposed by the Spotify Web API.
const (
	MaxTracksPerRequest        = 50
	MaxArtistsPerRequest       = 50
	MaxAlbumsPerRequest        = 20
	MaxAudioFeaturesPerRequest = 100
)

// TrackFromAPI converts a wire track into the ingest model.
func TrackFromAPI(st SpotifyTrack) models.Track {
	track := models.Track{
		ID:         st.ID,
		Title:      st.Name,
		Album:      st.Album.Name,
		AlbumID:    st.Album.ID,
		DurationMS: st.DurationMS,
		ISRC:       st.ExternalIDs.ISRC,
		Popularity: st.Popularity,
	}
	for _, a := range st.Artists {
		track.ArtistIDs = append(track.ArtistIDs, a.ID)
	}
	if len(st.Artists) > 0 {
		track.Artist = st.Artists[0].Name
	}
	return track
}

// ArtistFromAPI converts a wire artist into the ingest model.
func ArtistFromAPI(sa SpotifyArtist) models.Artist {
	return models.Artist{
		ID:         sa.ID,
		Name:       sa.Name,
		Genres:     sa.Genres,
		Popularity: sa.Popularity,
	}
}

// AlbumFromAPI converts a wire album into the ingest model.
func AlbumFromAPI(sa SpotifyAlbum) models.Album {
	album := models.Album{
		ID:          sa.ID,
		Name:        sa.Name,
		ReleaseDate: sa.ReleaseDate,
		TotalTracks: sa.TotalTracks,
	}
	if len(sa.Artists) > 0 {
		album.Artist = sa.Artists[0].Name
	}
	return album
}

// FeaturesFromAPI converts wire audio features into the ingest model.
func FeaturesFromAPI(sf SpotifyAudioFeatures) models.AudioFeatures {
	return models.AudioFeatures{
		TrackID:          sf.ID,
		Danceability:     sf.Danceability,
		Energy:           sf.Energy,
		Valence:          sf.Valence,
		Tempo:            sf.Tempo,
		Acousticness:     sf.Acousticness,
		Instrumentalness: sf.Instrumentalness,
	}
}

func idsParam(ids []string) string {
	return url.QueryEscape(strings.Join(ids, ","))
}

// TracksBatch fetches up to 50 tracks. Results are aligned to the requested
// ID order; IDs the service does not know yield nil slots.
func (c *Client) TracksBatch(ctx context.Context, ids []string) ([]any, error) {
	if len(ids) == 0 || len(ids) > MaxTracksPerRequest {
		return nil, fmt.Errorf("%w: tracks batch takes 1-%d ids, got %d", shared.ErrValidation, MaxTracksPerRequest, len(ids))
	}

	var response struct {
		Tracks []*SpotifyTrack `json:"tracks"`
	}
	if err := c.get(ctx, "/tracks?ids="+idsParam(ids), &response); err != nil {
		return nil, err
	}

	byID := make(map[string]models.Track, len(response.Tracks))
	for _, st := range response.Tracks {
		if st != nil {
			byID[st.ID] = TrackFromAPI(*st)
		}
	}
	return alignByID(ids, byID), nil
}

// ArtistsBatch fetches up to 50 artists, aligned to the requested ID order.
func (c *Client) ArtistsBatch(ctx context.Context, ids []string) ([]any, error) {
	if len(ids) == 0 || len(ids) > MaxArtistsPerRequest {
		return nil, fmt.Errorf("%w: artists batch takes 1-%d ids, got %d", shared.ErrValidation, MaxArtistsPerRequest, len(ids))
	}

	var response struct {
		Artists []*SpotifyArtist `json:"artists"`
	}
	if err := c.get(ctx, "/artists?ids="+idsParam(ids), &response); err != nil {
		return nil, err
	}

	byID := make(map[string]models.Artist, len(response.Artists))
	for _, sa := range response.Artists {
		if sa != nil {
			byID[sa.ID] = ArtistFromAPI(*sa)
		}
	}
	return alignByID(ids, byID), nil
}

// AlbumsBatch fetches up to 20 albums, aligned to the requested ID order.
func (c *Client) AlbumsBatch(ctx context.Context, ids []string) ([]any, error) {
	if len(ids) == 0 || len(ids) > MaxAlbumsPerRequest {
		return nil, fmt.Errorf("%w: albums batch takes 1-%d ids, got %d", shared.ErrValidation, MaxAlbumsPerRequest, len(ids))
	}

	var response struct {
		Albums []*SpotifyAlbum `json:"albums"`
	}
	if err := c.get(ctx, "/albums?ids="+idsParam(ids), &response); err != nil {
		return nil, err
	}

	byID := make(map[string]models.Album, len(response.Albums))
	for _, sa := range response.Albums {
		if sa != nil {
			byID[sa.ID] = AlbumFromAPI(*sa)
		}
	}
	return alignByID(ids, byID), nil
}

// AudioFeaturesBatch fetches audio features for up to 100 tracks, aligned to
// the requested ID order.
func (c *Client) AudioFeaturesBatch(ctx context.Context, ids []string) ([]any, error) {
	if len(ids) == 0 || len(ids) > MaxAudioFeaturesPerRequest {
		return nil, fmt.Errorf("%w: audio features batch takes 1-%d ids, got %d", shared.ErrValidation, MaxAudioFeaturesPerRequest, len(ids))
	}

	var response struct {
		AudioFeatures []*SpotifyAudioFeatures `json:"audio_features"`
	}
	if err := c.get(ctx, "/audio-features?ids="+idsParam(ids), &response); err != nil {
		return nil, err
	}

	byID := make(map[string]models.AudioFeatures, len(response.AudioFeatures))
	for _, sf := range response.AudioFeatures {
		if sf != nil {
			byID[sf.ID] = FeaturesFromAPI(*sf)
		}
	}
	return alignByID(ids, byID), nil
}

// alignByID projects fetched values back onto the requested ID order.
func alignByID[T any](ids []string, byID map[string]T) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		if v, ok := byID[id]; ok {
			out[i] = v
		}
	}
	return out
}
