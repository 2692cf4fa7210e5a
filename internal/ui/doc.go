// Package ui implements an interactive ingest monitor using bubbletea's Elm architecture.
//
// The monitor runs a library ingest in the background and renders its
// progress updates live:
//  1. [RunningView] : Spinner plus the current pipeline phase and step counts
//  2. [ResultView] : Final run summary with counters and error samples
//
// The [Model] implements bubbletea's standard Init/Update/View pattern,
// receiving messages via the Msg union type. Progress updates flow through a
// channel from the IngestEngine, providing non-blocking status reporting
// during the run.
//
// Keyboard navigation uses vim-style bindings (r, esc, q) with contextual
// help displayed via charmbracelet/bubbles/help.
package ui
