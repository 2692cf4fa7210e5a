// Spotify API client for library ingestion
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/vishkrish200/spotify-organiser/internal/shared"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	defaultRateLimit = 5 // requests per second
)

type externalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	Explicit    bool            `json:"explicit"`
	ExternalIDs externalIDs     `json:"external_ids"`
	Popularity  int             `json:"popularity"`
	URI         string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres"`
	Popularity int      `json:"popularity"`
	URI        string   `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	ReleaseDate string          `json:"release_date"`
	TotalTracks int             `json:"total_tracks"`
	URI         string          `json:"uri"`
}

// SpotifyAudioFeatures represents the audio analysis summary for a track.
type SpotifyAudioFeatures struct {
	ID               string  `json:"id"`
	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	Valence          float64 `json:"valence"`
	Tempo            float64 `json:"tempo"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
}

// SpotifySavedTrack represents a track saved in the user's library.
type SpotifySavedTrack struct {
	AddedAt string       `json:"added_at"`
	Track   SpotifyTrack `json:"track"`
}

// SpotifyPaginatedTracks represents a paginated response of saved tracks.
type SpotifyPaginatedTracks struct {
	Items    []SpotifySavedTrack `json:"items"`
	Total    int                 `json:"total"`
	Limit    int                 `json:"limit"`
	Offset   int                 `json:"offset"`
	Next     *string             `json:"next"`
	Previous *string             `json:"previous"`
}

// ClientOptions overrides client defaults, primarily for tests.
type ClientOptions struct {
	BaseURL    string       // defaults to the public API base
	HTTPClient *http.Client // bypasses OAuth2 when set
	RateLimit  float64      // requests per second (default 5)
	Logger     *log.Logger
}

// Client is a rate-limited, OAuth2-authenticated Spotify Web API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewClient builds a client from stored credentials. A refresh token enables
// automatic token renewal through [oauth2.TokenSource]; an access token alone
// authenticates until it expires.
func NewClient(ctx context.Context, creds shared.SpotifyConfig, opts ClientOptions) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		switch {
		case creds.RefreshToken != "":
			conf := &oauth2.Config{
				ClientID:     creds.ClientID,
				ClientSecret: creds.ClientSecret,
				Endpoint:     oauth2.Endpoint{TokenURL: spotifyTokenURL},
			}
			token := &oauth2.Token{
				AccessToken:  creds.AccessToken,
				RefreshToken: creds.RefreshToken,
				Expiry:       time.Now(), // force refresh on first use
			}
			httpClient = oauth2.NewClient(ctx, conf.TokenSource(ctx, token))
		case creds.AccessToken != "":
			src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken})
			httpClient = oauth2.NewClient(ctx, src)
		default:
			return nil, fmt.Errorf("%w: spotify access or refresh token required", shared.ErrMissingCredentials)
		}
	}

	return &Client{
		baseURL:    opts.BaseURL,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		logger:     opts.Logger,
	}, nil
}

// get performs a rate-limited GET against the API and decodes the JSON body
// into result. Non-2xx statuses are classified into the error taxonomy.
func (c *Client) get(ctx context.Context, endpoint string, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTransientRemote, err)
	}
	defer resp.Body.Close()

	if err := shared.ClassifyStatus(resp.StatusCode); err != nil {
		c.logger.Debug("spotify request rejected", "endpoint", endpoint, "status", resp.StatusCode)
		return fmt.Errorf("GET %s: %w", endpoint, err)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: decode %s: %v", shared.ErrAPIRequest, endpoint, err)
		}
	}
	return nil
}

// SavedTracks retrieves one page of the user's saved tracks.
func (c *Client) SavedTracks(ctx context.Context, limit, offset int) (*SpotifyPaginatedTracks, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	var page SpotifyPaginatedTracks
	endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=%d", limit, offset)
	if err := c.get(ctx, endpoint, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
