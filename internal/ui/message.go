package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/studyctl/internal/chat"
	"github.com/desertthunder/studyctl/internal/models"
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
	MsgChatUpdates MsgKind = iota
	MsgTurnComplete
	MsgConversationSaved
	MsgHistoryLoaded
)

// chatUpdatesMsg is the constructor for [MsgChatUpdates]
func chatUpdatesMsg(updates []chat.Update) Msg {
	return Msg{kind: MsgChatUpdates, data: updates}
}

// turnCompleteMsg is the constructor for [MsgTurnComplete]
func turnCompleteMsg(err error) Msg {
	return Msg{kind: MsgTurnComplete, data: err}
}

// conversationSavedMsg is the constructor for [MsgConversationSaved]
func conversationSavedMsg(conv *models.Conversation, err error) Msg {
	return Msg{
		kind: MsgConversationSaved,
		data: struct {
			conv *models.Conversation
			err  error
		}{conv, err},
	}
}

// historyLoadedMsg is the constructor for [MsgHistoryLoaded]
func historyLoadedMsg(convs []*models.Conversation, err error) Msg {
	return Msg{
		kind: MsgHistoryLoaded,
		data: struct {
			convs []*models.Conversation
			err   error
		}{convs, err},
	}
}
