// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI browses tracker history and can start a new run:
//  1. [HistoryView] : Browse song log entries, or recorded runs when a database is configured (tab)
//  2. [TracksView] : Songs logged by one entry
//  3. [RunDetailView] : Counters, cursor and target playlist of one run
//  4. [ConfirmView] : Confirm a new tracker run
//  5. [RunView] : Monitor real-time progress updates
//  6. [ResultView] : Summary of the finished run
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the tracker engine, providing non-blocking status reporting during runs.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
