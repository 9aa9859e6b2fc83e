package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/tracker"
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
	MsgHistoryLoaded MsgKind = iota
	MsgProgressUpdate
	MsgRunComplete
)

type historyData struct {
	entries []tracker.Entry
	runs    []*models.Run
	err     error
}

type runData struct {
	result *tracker.RunResult
	err    error
}

// historyLoadedMsg is the constructor for [MsgHistoryLoaded]
func historyLoadedMsg(entries []tracker.Entry, runs []*models.Run, err error) Msg {
	return Msg{kind: MsgHistoryLoaded, data: historyData{entries, runs, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tracker.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// runCompleteMsg is the constructor for [MsgRunComplete]
func runCompleteMsg(result *tracker.RunResult, err error) Msg {
	return Msg{kind: MsgRunComplete, data: runData{result, err}}
}
