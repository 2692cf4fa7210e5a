package services

import (
	"context"
	"time"

	"github.com/vishkrish200/spotify-organiser/internal/models"
)

// LibrarySource walks the authenticated user's saved tracks one page
// at a time. It satisfies the pipeline Source interface: each Next call
// yields one models.SavedTrack, fetching the following page only when the
// current one is exhausted.
type LibrarySource struct {
	client   *Client
	pageSize int

	buf    []models.SavedTrack
	pos    int
	offset int
	total  int
	done   bool
}

// NewLibrarySource creates a saved-track source. pageSize is clamped to the
// endpoint maximum of 50.
func NewLibrarySource(client *Client, pageSize int) *LibrarySource {
	if pageSize <= 0 || pageSize > 50 {
		pageSize = 50
	}
	return &LibrarySource{client: client, pageSize: pageSize}
}

// Total reports the library size as of the last fetched page. Zero until the
// first page arrives.
func (s *LibrarySource) Total() int { return s.total }

// Next returns the next saved track, ok=false once the library is exhausted.
func (s *LibrarySource) Next(ctx context.Context) (any, bool, error) {
	if s.pos < len(s.buf) {
		item := s.buf[s.pos]
		s.pos++
		return item, true, nil
	}
	if s.done {
		return nil, false, nil
	}

	page, err := s.client.SavedTracks(ctx, s.pageSize, s.offset)
	if err != nil {
		return nil, false, err
	}

	s.total = page.Total
	s.offset += len(page.Items)
	if page.Next == nil || len(page.Items) == 0 {
		s.done = true
	}
	if len(page.Items) == 0 {
		return nil, false, nil
	}

	s.buf = s.buf[:0]
	for _, item := range page.Items {
		saved := models.SavedTrack{Track: TrackFromAPI(item.Track)}
		if at, err := time.Parse(time.RFC3339, item.AddedAt); err == nil {
			saved.AddedAt = at
		}
		s.buf = append(s.buf, saved)
	}
	s.pos = 1
	return s.buf[0], true, nil
}
