package tasks

import "fmt"

// ProgressUpdate represents a progress event during an ingest run.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase, 0 when unknown
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	Admission Phase = iota
	FetchLibrary
	Enrich
	Persist
	Complete
)

func (p Phase) String() string {
	switch p {
	case Admission:
		return "admission"
	case FetchLibrary:
		return "fetch_library"
	case Enrich:
		return "enrich"
	case Persist:
		return "persist"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

func admissionUpdate(reason string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Admission,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Admission: %s", reason),
	}
}

func skippedUpdate(reason string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Ingest skipped: %s", reason),
	}
}

func fetchStartUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchLibrary,
		Message: "Streaming saved tracks from Spotify...",
	}
}

func enrichUpdate(batch, artists, albums, features int) ProgressUpdate {
	msg := fmt.Sprintf("[batch %d] Enriching %d artists, %d albums", batch, artists, albums)
	if features > 0 {
		msg += fmt.Sprintf(" and features for %d tracks", features)
	}
	return ProgressUpdate{
		Phase:   Enrich,
		Step:    batch,
		Message: msg + "...",
	}
}

func persistUpdate(batch, written int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Persist,
		Step:    batch,
		Message: fmt.Sprintf("[batch %d] ✓ %d tracks persisted", batch, written),
	}
}

func completeUpdate(processed, dropped int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Ingest complete: %d processed, %d dropped", processed, dropped),
	}
}
