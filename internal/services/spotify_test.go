package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/vishkrish200/spotify-organiser/internal/models"
	"github.com/vishkrish200/spotify-organiser/internal/shared"
	th "github.com/vishkrish200/spotify-organiser/internal/testing"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), shared.SpotifyConfig{}, ClientOptions{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		RateLimit:  1000,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClient(t *testing.T) {
	t.Run("Missing Credentials", func(t *testing.T) {
		_, err := NewClient(context.Background(), shared.SpotifyConfig{}, ClientOptions{})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected missing credentials error, got %v", err)
		}
	})

	t.Run("Access Token Only", func(t *testing.T) {
		client, err := NewClient(context.Background(), shared.SpotifyConfig{AccessToken: "tok"}, ClientOptions{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if client == nil {
			t.Fatal("expected client to be created")
		}
	})
}

func TestStatusClassification(t *testing.T) {
	t.Run("Rate Limited Is Transient", func(t *testing.T) {
		client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))

		_, err := client.TracksBatch(context.Background(), []string{"t1"})
		if !errors.Is(err, shared.ErrTransientRemote) {
			t.Errorf("expected transient error for 429, got %v", err)
		}
	})

	t.Run("Not Found Is Permanent", func(t *testing.T) {
		client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		_, err := client.TracksBatch(context.Background(), []string{"t1"})
		if !errors.Is(err, shared.ErrPermanentRemote) {
			t.Errorf("expected permanent error for 404, got %v", err)
		}
	})

	t.Run("Transport Failure Is Transient", func(t *testing.T) {
		httpClient := &http.Client{
			Transport: th.NewMockRoundTripper(nil, errors.New("connection reset")),
		}
		client, err := NewClient(context.Background(), shared.SpotifyConfig{}, ClientOptions{
			BaseURL:    "http://spotify.invalid",
			HTTPClient: httpClient,
			RateLimit:  1000,
		})
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}

		_, err = client.TracksBatch(context.Background(), []string{"t1"})
		if !errors.Is(err, shared.ErrTransientRemote) {
			t.Errorf("expected transient error for transport failure, got %v", err)
		}
	})
}

func TestTracksBatch(t *testing.T) {
	t.Run("Preserves Request Order", func(t *testing.T) {
		client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Respond out of order; the client must realign.
			json.NewEncoder(w).Encode(map[string]any{
				"tracks": []map[string]any{
					{"id": "t2", "name": "Second"},
					{"id": "t1", "name": "First"},
				},
			})
		}))

		results, err := client.TracksBatch(context.Background(), []string{"t1", "t2"})
		if err != nil {
			t.Fatalf("TracksBatch: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}
		if track := results[0].(models.Track); track.Title != "First" {
			t.Errorf("expected first slot to be 'First', got %q", track.Title)
		}
		if track := results[1].(models.Track); track.Title != "Second" {
			t.Errorf("expected second slot to be 'Second', got %q", track.Title)
		}
	})

	t.Run("Unknown ID Yields Nil Slot", func(t *testing.T) {
		client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"tracks": []any{
					map[string]any{"id": "t1", "name": "First"},
					nil,
				},
			})
		}))

		results, err := client.TracksBatch(context.Background(), []string{"t1", "missing"})
		if err != nil {
			t.Fatalf("TracksBatch: %v", err)
		}
		if results[1] != nil {
			t.Errorf("expected nil slot for unknown id, got %v", results[1])
		}
	})

	t.Run("Rejects Oversized Batch", func(t *testing.T) {
		client := testClient(t, http.NotFoundHandler())

		ids := make([]string, MaxTracksPerRequest+1)
		for i := range ids {
			ids[i] = fmt.Sprintf("t%d", i)
		}
		_, err := client.TracksBatch(context.Background(), ids)
		if !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestAlbumsBatchCeiling(t *testing.T) {
	client := testClient(t, http.NotFoundHandler())

	ids := make([]string, MaxAlbumsPerRequest+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("a%d", i)
	}
	_, err := client.AlbumsBatch(context.Background(), ids)
	if !errors.Is(err, shared.ErrValidation) {
		t.Errorf("expected validation error for %d albums, got %v", len(ids), err)
	}
}

func TestLibrarySource(t *testing.T) {
	const total = 7
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		var items []map[string]any
		for i := offset; i < total && i < offset+limit; i++ {
			items = append(items, map[string]any{
				"added_at": "2024-03-01T12:00:00Z",
				"track": map[string]any{
					"id":   fmt.Sprintf("t%d", i),
					"name": fmt.Sprintf("Track %d", i),
					"artists": []map[string]any{
						{"id": "ar1", "name": "Artist"},
					},
				},
			})
		}

		resp := map[string]any{"items": items, "total": total, "limit": limit, "offset": offset}
		if offset+limit < total {
			next := "more"
			resp["next"] = next
		}
		json.NewEncoder(w).Encode(resp)
	}))

	source := NewLibrarySource(client, 3)

	var got []models.SavedTrack
	for {
		item, ok, err := source.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, item.(models.SavedTrack))
	}

	if len(got) != total {
		t.Fatalf("expected %d saved tracks, got %d", total, len(got))
	}
	if source.Total() != total {
		t.Errorf("expected total %d, got %d", total, source.Total())
	}
	if got[0].Track.ID != "t0" || got[6].Track.ID != "t6" {
		t.Errorf("unexpected track order: first %s last %s", got[0].Track.ID, got[6].Track.ID)
	}
	if got[0].Track.Artist != "Artist" {
		t.Errorf("expected artist mapping, got %q", got[0].Track.Artist)
	}
	if got[0].AddedAt.IsZero() {
		t.Error("expected added_at to be parsed")
	}
}
