package formatter

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vishkrish200/spotify-organiser/internal/models"
	"github.com/vishkrish200/spotify-organiser/internal/stream"
	"github.com/vishkrish200/spotify-organiser/internal/tasks"
	th "github.com/vishkrish200/spotify-organiser/internal/testing"
)

func sampleTracks() []*models.PersistedTrack {
	added := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	one := models.NewPersistedTrack(1, "spotify", models.Track{
		ID:         "track1",
		Title:      "Song One",
		Artist:     "Artist One",
		Album:      "Album One",
		DurationMS: 180000,
		ISRC:       "USRC12345678",
		Popularity: 61,
	}, added)
	two := models.NewPersistedTrack(2, "spotify", models.Track{
		ID:         "track2",
		Title:      "Song Two",
		Artist:     "Artist Two",
		Album:      "Album Two",
		DurationMS: 240000,
		ISRC:       "USRC87654321",
		Popularity: 35,
	}, added)
	return []*models.PersistedTrack{one, two}
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(sampleTracks())
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "ID,Title,Artist,Album,DurationMS,ISRC,Popularity,AddedAt") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "track1") {
			t.Errorf("CSV missing track1 ID")
		}
		if !strings.Contains(output, "Song One") {
			t.Errorf("CSV missing track1 title")
		}
		if !strings.Contains(output, "USRC12345678") {
			t.Errorf("CSV missing track1 ISRC")
		}
		if !strings.Contains(output, "2026-03-01T12:00:00Z") {
			t.Errorf("CSV missing added-at timestamp")
		}
	})

	t.Run("WriteCSVExport", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.csv")

		written, err := WriteCSVExport(sampleTracks(), path)
		if err != nil {
			t.Fatalf("WriteCSVExport failed: %v", err)
		}
		if written != path {
			t.Errorf("expected path %s, got %s", path, written)
		}

		th.AssertFileExists(t, path)
		content := th.MustReadFile(t, path)
		if !strings.Contains(content, "Song Two") {
			t.Errorf("written CSV missing track, got: %s", content)
		}
	})
}

func TestRenderSummary(t *testing.T) {
	t.Run("Completed Run", func(t *testing.T) {
		run := models.NewIngestRun(1)
		run.SetID("run-id")
		run.Finish(models.RunStatusCompleted, 120, 3, 1, 7)

		out := RenderSummary(&tasks.IngestSummary{
			Run: run,
			Pipeline: &stream.RunResult{
				ItemsProcessed:     120,
				ItemsDropped:       3,
				BatchesFlushed:     3,
				BackpressureEvents: 7,
				Errors:             1,
			},
			ArtistsSaved:  10,
			AlbumsSaved:   5,
			FeaturesSaved: 117,
			Elapsed:       1500 * time.Millisecond,
		})

		for _, want := range []string{"run-id", "completed", "120", "1.5s", "10", "5", "117"} {
			if !strings.Contains(out, want) {
				t.Errorf("summary missing %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("Skipped Run", func(t *testing.T) {
		out := RenderSummary(&tasks.IngestSummary{
			Skipped:    true,
			SkipReason: "too_soon",
			Elapsed:    2 * time.Millisecond,
		})
		if !strings.Contains(out, "skipped") || !strings.Contains(out, "too_soon") {
			t.Errorf("expected skip rendering, got:\n%s", out)
		}
	})
}

func TestRenderStatus(t *testing.T) {
	run := models.NewIngestRun(1)
	run.SetID("run-id")
	run.Finish(models.RunStatusFailed, 40, 2, 4, 0)

	out := RenderStatus(&tasks.StatusReport{
		Runs:        []*models.IngestRun{run},
		TrackCount:  40,
		CacheHits:   9,
		CacheMisses: 3,
	})

	for _, want := range []string{"40", "failed", "processed=40", "errors=4", "9"} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q, got:\n%s", want, out)
		}
	}

	empty := RenderStatus(&tasks.StatusReport{})
	if !strings.Contains(empty, "no runs recorded") {
		t.Errorf("expected empty-state message, got:\n%s", empty)
	}
}
