package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/vishkrish200/spotify-organiser/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgressUpdate MsgKind = iota
	MsgIngestComplete
)

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// ingestCompleteMsg is the constructor for [MsgIngestComplete]
func ingestCompleteMsg(summary *tasks.IngestSummary, err error) Msg {
	return Msg{
		kind: MsgIngestComplete,
		data: struct {
			summary *tasks.IngestSummary
			err     error
		}{summary, err},
	}
}
