// package formatter renders ingest summaries and status reports for the
// terminal and exports the stored library to CSV.
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/vishkrish200/spotify-organiser/internal/models"
	"github.com/vishkrish200/spotify-organiser/internal/tasks"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true).MarginBottom(1)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262")).Italic(true)
	labelStyle = lipgloss.NewStyle().Width(22)
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case models.RunStatusCompleted:
		return okStyle
	case models.RunStatusFailed:
		return errStyle
	default:
		return warnStyle
	}
}

func row(label, value string) string {
	return labelStyle.Render(label) + value + "\n"
}

// RenderSummary formats the outcome of a single ingest run.
func RenderSummary(s *tasks.IngestSummary) string {
	var buf strings.Builder

	buf.WriteString(titleStyle.Render("Library Ingest") + "\n")

	if s.Skipped {
		buf.WriteString(warnStyle.Render("skipped") + dimStyle.Render(" ("+s.SkipReason+")") + "\n")
		buf.WriteString(row("Elapsed", s.Elapsed.Round(time.Millisecond).String()))
		return buf.String()
	}

	if s.Run != nil {
		buf.WriteString(row("Run", s.Run.ID()))
		buf.WriteString(row("Status", statusStyle(s.Run.Status()).Render(s.Run.Status())))
	}
	if s.Pipeline != nil {
		buf.WriteString(row("Tracks processed", strconv.FormatInt(s.Pipeline.ItemsProcessed, 10)))
		if s.Pipeline.ItemsDropped > 0 {
			buf.WriteString(row("Tracks dropped", warnStyle.Render(strconv.FormatInt(s.Pipeline.ItemsDropped, 10))))
		}
		buf.WriteString(row("Batches flushed", strconv.FormatInt(s.Pipeline.BatchesFlushed, 10)))
		if s.Pipeline.BatchesSkipped > 0 {
			buf.WriteString(row("Batches skipped", strconv.FormatInt(s.Pipeline.BatchesSkipped, 10)))
		}
		if s.Pipeline.BackpressureEvents > 0 {
			buf.WriteString(row("Backpressure", warnStyle.Render(strconv.FormatInt(s.Pipeline.BackpressureEvents, 10))))
		}
		if s.Pipeline.Errors > 0 {
			buf.WriteString(row("Errors", errStyle.Render(strconv.FormatInt(s.Pipeline.Errors, 10))))
			for _, sample := range s.Pipeline.ErrorSamples() {
				buf.WriteString(dimStyle.Render("  "+sample) + "\n")
			}
		}
	}
	buf.WriteString(row("Artists enriched", strconv.Itoa(s.ArtistsSaved)))
	buf.WriteString(row("Albums enriched", strconv.Itoa(s.AlbumsSaved)))
	buf.WriteString(row("Features enriched", strconv.Itoa(s.FeaturesSaved)))
	buf.WriteString(row("Elapsed", s.Elapsed.Round(time.Millisecond).String()))

	return buf.String()
}

// RenderStatus formats recent runs and library counts.
func RenderStatus(r *tasks.StatusReport) string {
	var buf strings.Builder

	buf.WriteString(titleStyle.Render("Library Status") + "\n")
	buf.WriteString(row("Tracks", strconv.Itoa(r.TrackCount)))
	buf.WriteString(row("Cache hits", strconv.FormatInt(r.CacheHits, 10)))
	buf.WriteString(row("Cache misses", strconv.FormatInt(r.CacheMisses, 10)))

	if len(r.Runs) == 0 {
		buf.WriteString(dimStyle.Render("no runs recorded") + "\n")
		return buf.String()
	}

	buf.WriteString("\nRecent runs:\n")
	for _, run := range r.Runs {
		line := fmt.Sprintf("  %s  %s  processed=%d dropped=%d errors=%d",
			run.StartedAt().Format("2006-01-02 15:04"),
			statusStyle(run.Status()).Render(run.Status()),
			run.ItemsProcessed(), run.ItemsDropped(), run.ErrorCount())
		buf.WriteString(line + "\n")
	}

	return buf.String()
}

// ExportToCSV converts stored tracks to CSV with columns:
// ID, Title, Artist, Album, DurationMS, ISRC, Popularity, AddedAt
func ExportToCSV(tracks []*models.PersistedTrack) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Artist", "Album", "DurationMS", "ISRC", "Popularity", "AddedAt"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range tracks {
		record := []string{
			track.ServiceID(),
			track.Title(),
			track.Artist(),
			track.Album(),
			strconv.Itoa(track.DurationMS()),
			track.ISRC(),
			strconv.Itoa(track.Popularity()),
			track.AddedAt().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteCSVExport writes the library to a CSV file.
//
// Defaults to library_tracks.csv when no path is given.
func WriteCSVExport(tracks []*models.PersistedTrack, filepath string) (string, error) {
	if filepath == "" {
		filepath = "library_tracks.csv"
	}

	data, err := ExportToCSV(tracks)
	if err != nil {
		return "", fmt.Errorf("failed to generate CSV: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write CSV file: %w", err)
	}

	return filepath, nil
}
